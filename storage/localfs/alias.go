package localfs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// Aliases is a filesystem alias provider. Keys are arbitrary bytes;
// each mapping is one file whose name is the hex-mangled key and
// whose contents are the target identifier's wire form.
type Aliases struct {
	root string
}

var _ storage.AliasProvider = (*Aliases)(nil)

func NewAliases(root string) (*Aliases, error) {
	if root == "" {
		return nil, errors.New("localfs: alias root directory is required")
	}
	for _, dir := range []string{root, filepath.Join(root, "staging")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Aliases{root: root}, nil
}

func (a *Aliases) Resolve(ctx context.Context, key []byte) (ident.Identifier, error) {
	b, err := os.ReadFile(a.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ident.Identifier{}, storage.ErrAliasNotFound
		}
		return ident.Identifier{}, err
	}
	id, rest, err := ident.Decode(b)
	if err != nil || len(rest) != 0 {
		return ident.Identifier{}, fmt.Errorf("localfs: malformed alias entry for %x: %w", key, ident.ErrInvalidIdentifier)
	}
	return id, nil
}

func (a *Aliases) Register(ctx context.Context, key []byte, id ident.Identifier) (ident.Identifier, error) {
	if !id.Defined() {
		return ident.Identifier{}, ident.ErrInvalidIdentifier
	}
	path := a.pathFor(key)

	// Stage the full entry first, then publish with a link. The link
	// either installs the complete file or fails, so a crash mid-write
	// never leaves a truncated entry at the final path.
	tmp, err := os.CreateTemp(filepath.Join(a.root, "staging"), "alias-*")
	if err != nil {
		return ident.Identifier{}, err
	}
	defer os.Remove(tmp.Name())

	if _, err := id.WriteTo(tmp); err != nil {
		tmp.Close()
		return ident.Identifier{}, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ident.Identifier{}, err
	}
	if err := tmp.Close(); err != nil {
		return ident.Identifier{}, err
	}
	if err := os.Chmod(tmp.Name(), 0o444); err != nil {
		return ident.Identifier{}, err
	}

	// Link makes the filesystem arbitrate first-writer-wins.
	if err := os.Link(tmp.Name(), path); err != nil {
		if os.IsExist(err) {
			existing, rerr := a.Resolve(ctx, key)
			if rerr != nil {
				return ident.Identifier{}, rerr
			}
			if existing == id {
				return id, nil
			}
			return ident.Identifier{}, fmt.Errorf("%w: key %x", storage.ErrAliasExists, key)
		}
		return ident.Identifier{}, err
	}
	return id, nil
}

func (a *Aliases) pathFor(key []byte) string {
	return filepath.Join(a.root, hex.EncodeToString(key)+".alias")
}
