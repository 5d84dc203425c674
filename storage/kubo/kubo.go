// Package kubo provides a content provider backed by the local Kubo
// "ipfs" CLI.
//
// This is an optional adapter package. The core library remains
// backend agnostic; any external store can integrate by implementing
// storage.ContentProvider.
//
// Properties:
// - Offline: operates on the local IPFS repo; does not require a daemon.
// - Deterministic: no wall-clock usage; validates bytes against the
//   requested identifier.
// - Best-effort: relies on an external "ipfs" binary (configurable).
//
// Block contract: CIDv1 raw + sha2-256, matching ident.Sum.
//
// Warning: this adapter is not authoritative. Transport/reachability
// is not validity; identifier verification is.
package kubo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// Store is a content provider backed by the Kubo CLI. Inline
// identifiers are served from the identifier itself and never reach
// the CLI.
type Store struct {
	bin string
	env []string
}

var _ storage.ContentProvider = (*Store)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set
	// IPFS_PATH). If nil, the process environment is used.
	Env []string
}

func New(opts Options) *Store {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &Store{bin: bin, env: opts.Env}
}

func (s *Store) GetReader(ctx context.Context, id ident.Identifier) (io.ReadCloser, error) {
	if r, ok := storage.InlineReader(id); ok {
		return r, nil
	}
	if !id.Defined() {
		return nil, ident.ErrInvalidIdentifier
	}

	out, err := s.run(ctx, nil, "block", "get", id.Hash().String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !id.Matches(out) {
		return nil, storage.ErrCorrupted
	}
	return io.NopCloser(bytes.NewReader(out)), nil
}

func (s *Store) GetWriter(ctx context.Context, id ident.Identifier) (storage.ContentWriter, error) {
	if id.IsInline() {
		return nil, nil
	}
	if !id.Defined() {
		return nil, ident.ErrInvalidIdentifier
	}

	if _, err := s.Stat(ctx, id); err == nil {
		return nil, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	return storage.NewUploader(id, func(ctx context.Context, data []byte) error {
		// Store as a raw block with explicit parameters so the
		// resulting CID matches the ident.Sum contract.
		out, err := s.run(ctx, data,
			"block", "put",
			"--quiet",
			"--format=raw",
			"--mhtype=sha2-256",
			"--mhlen=32",
			"--cid-version=1",
			"/dev/stdin",
		)
		if err != nil {
			return err
		}
		got, err := cid.Decode(strings.TrimSpace(string(out)))
		if err != nil {
			return fmt.Errorf("kubo: unexpected block put output: %w", err)
		}
		if got != id.Hash() {
			return storage.ErrCorrupted
		}
		return nil
	}), nil
}

func (s *Store) Stat(ctx context.Context, id ident.Identifier) (int64, error) {
	if id.IsInline() {
		return int64(id.Size()), nil
	}
	if !id.Defined() {
		return 0, ident.ErrInvalidIdentifier
	}

	out, err := s.run(ctx, nil, "block", "stat", id.Hash().String())
	if err != nil {
		if isLikelyNotFound(err) {
			return 0, storage.ErrNotFound
		}
		return 0, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if rest, ok := strings.CutPrefix(line, "Size:"); ok {
			size, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("kubo: unexpected block stat output: %w", err)
			}
			return size, nil
		}
	}
	return 0, fmt.Errorf("kubo: block stat output missing size")
}

func (s *Store) Delete(ctx context.Context, id ident.Identifier) error {
	if id.IsInline() {
		return nil
	}
	if !id.Defined() {
		return ident.ErrInvalidIdentifier
	}

	// --force makes removal of absent blocks succeed, matching the
	// idempotent delete contract.
	_, err := s.run(ctx, nil, "block", "rm", "--force", id.Hash().String())
	return err
}

func (s *Store) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg := strings.TrimSpace(string(ee.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("kubo: %v", err)
		}
		return nil, fmt.Errorf("kubo: %s", msg)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find")
}
