// Package memory provides map-backed content and alias providers.
//
// The content store keeps a per-identifier reference count so repeated
// writes and idempotent deletes can be demonstrated without a real
// backend. It is intended for tests, tooling, and as the local side of
// a cache composite.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

type entry struct {
	refs int
	data []byte
}

// Store is an in-memory content provider. The zero value is not
// usable; construct with New.
type Store struct {
	mu      sync.Mutex
	entries map[ident.Identifier]*entry
}

var _ storage.ContentProvider = (*Store)(nil)

func New() *Store {
	return &Store{entries: map[ident.Identifier]*entry{}}
}

func (s *Store) GetReader(ctx context.Context, id ident.Identifier) (io.ReadCloser, error) {
	if r, ok := storage.InlineReader(id); ok {
		return r, nil
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

func (s *Store) GetWriter(ctx context.Context, id ident.Identifier) (storage.ContentWriter, error) {
	if id.IsInline() {
		return nil, nil
	}

	s.mu.Lock()
	_, exists := s.entries[id]
	s.mu.Unlock()
	if exists {
		return nil, nil
	}

	return storage.NewUploader(id, func(ctx context.Context, data []byte) error {
		return s.put(id, data)
	}), nil
}

// put merges concurrent writers racing the same identifier into a
// single stored copy. Stored bytes differing from newly uploaded
// bytes for the same identifier means a digest collision or a bug,
// and is fatal for that write.
func (s *Store) put(id ident.Identifier, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok {
		if !bytes.Equal(e.data, data) {
			return fmt.Errorf("%w: stored bytes diverge for %s", storage.ErrCorrupted, id)
		}
		e.refs++
		return nil
	}
	s.entries[id] = &entry{refs: 1, data: append([]byte(nil), data...)}
	return nil
}

func (s *Store) Stat(ctx context.Context, id ident.Identifier) (int64, error) {
	if id.IsInline() {
		return int64(id.Size()), nil
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return 0, storage.ErrNotFound
	}
	return int64(len(e.data)), nil
}

func (s *Store) Delete(ctx context.Context, id ident.Identifier) error {
	if id.IsInline() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	e.refs--
	if e.refs <= 0 {
		delete(s.entries, id)
	}
	return nil
}

// Refs reports the current reference count for id. Zero means absent.
func (s *Store) Refs(id ident.Identifier) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.refs
	}
	return 0
}

// Aliases is an in-memory alias provider.
type Aliases struct {
	mu      sync.Mutex
	aliases map[string]ident.Identifier
}

var _ storage.AliasProvider = (*Aliases)(nil)

func NewAliases() *Aliases {
	return &Aliases{aliases: map[string]ident.Identifier{}}
}

func (a *Aliases) Resolve(ctx context.Context, key []byte) (ident.Identifier, error) {
	a.mu.Lock()
	id, ok := a.aliases[string(key)]
	a.mu.Unlock()
	if !ok {
		return ident.Identifier{}, storage.ErrAliasNotFound
	}
	return id, nil
}

func (a *Aliases) Register(ctx context.Context, key []byte, id ident.Identifier) (ident.Identifier, error) {
	if !id.Defined() {
		return ident.Identifier{}, ident.ErrInvalidIdentifier
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.aliases[string(key)]; ok {
		if existing == id {
			return id, nil
		}
		return ident.Identifier{}, fmt.Errorf("%w: key %q", storage.ErrAliasExists, key)
	}
	a.aliases[string(key)] = id
	return id, nil
}
