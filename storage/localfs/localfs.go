// Package localfs provides filesystem-backed content and alias
// providers.
//
// Content is stored immutably, one file per hash-reference identifier,
// sharded by digest prefix. Writes land under a staging name and are
// renamed into place only after the uploader has verified the staged
// bytes against their identifier, so no reader ever observes a
// partially written file under a committed name.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// Store is a local filesystem content provider rooted at a directory.
type Store struct {
	root string
}

var _ storage.ContentProvider = (*Store)(nil)

// New constructs a Store rooted at root. Directories are created as
// needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	for _, dir := range []string{root, filepath.Join(root, "staging")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) GetReader(ctx context.Context, id ident.Identifier) (io.ReadCloser, error) {
	if r, ok := storage.InlineReader(id); ok {
		return r, nil
	}

	f, err := os.Open(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) GetWriter(ctx context.Context, id ident.Identifier) (storage.ContentWriter, error) {
	if id.IsInline() {
		return nil, nil
	}
	if _, err := os.Stat(s.pathFor(id)); err == nil {
		return nil, nil
	}

	return storage.NewUploader(id, func(ctx context.Context, data []byte) error {
		return s.commit(id, data)
	}), nil
}

// commit lands verified bytes under the committed name. A second
// writer finishing first is not an error: both verified the same
// identifier, so the copies are identical and one wins the rename.
func (s *Store) commit(id ident.Identifier, data []byte) error {
	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, "staging"), "upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o444); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) Stat(ctx context.Context, id ident.Identifier) (int64, error) {
	if id.IsInline() {
		return int64(id.Size()), nil
	}
	fi, err := os.Stat(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, storage.ErrNotFound
		}
		return 0, err
	}
	return fi.Size(), nil
}

func (s *Store) Delete(ctx context.Context, id ident.Identifier) error {
	if id.IsInline() {
		return nil
	}
	if err := os.Remove(s.pathFor(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) pathFor(id ident.Identifier) string {
	name := fmt.Sprintf("%s-%d", id.Hash(), id.Size())
	return filepath.Join(s.root, "blocks", name[:2], name)
}
