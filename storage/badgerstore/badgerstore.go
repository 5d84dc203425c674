// Package badgerstore provides content and alias providers on top of
// a Badger key-value store. One Badger database holds both
// namespaces under disjoint key prefixes.
//
// Unlike localfs this backend gives transactional first-writer-wins
// alias registration and survives process restarts with a single
// directory, which suits daemon deployments.
package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	badger "github.com/dgraph-io/badger/v4"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

var (
	contentPrefix = []byte("c/")
	aliasPrefix   = []byte("a/")
)

// DB owns the underlying Badger database and hands out the two
// providers.
type DB struct {
	db *badger.DB
}

// Open opens (creating if needed) a Badger database at dir.
func Open(dir string) (*DB, error) {
	if dir == "" {
		return nil, errors.New("badgerstore: directory is required")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

// OpenInMemory opens an ephemeral database. Used by tests and
// tooling.
func OpenInMemory() (*DB, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// Content returns the content provider view of the database.
func (d *DB) Content() *Store { return &Store{db: d.db} }

// Aliases returns the alias provider view of the database.
func (d *DB) Aliases() *Aliases { return &Aliases{db: d.db} }

func contentKey(id ident.Identifier) []byte {
	return id.AppendWire(append([]byte(nil), contentPrefix...))
}

func aliasKey(key []byte) []byte {
	return append(append([]byte(nil), aliasPrefix...), key...)
}

// retry re-runs fn while Badger reports a transaction conflict.
// Conflicts only arise between writers racing the same key, and every
// write here is idempotent for equal values.
func retry(fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

// Store is the Badger content provider.
type Store struct {
	db *badger.DB
}

var _ storage.ContentProvider = (*Store)(nil)

func (s *Store) GetReader(ctx context.Context, id ident.Identifier) (io.ReadCloser, error) {
	if r, ok := storage.InlineReader(id); ok {
		return r, nil
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contentKey(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) GetWriter(ctx context.Context, id ident.Identifier) (storage.ContentWriter, error) {
	if id.IsInline() {
		return nil, nil
	}
	if _, err := s.Stat(ctx, id); err == nil {
		return nil, nil
	} else if !storage.IsNotFound(err) {
		return nil, err
	}

	return storage.NewUploader(id, func(ctx context.Context, data []byte) error {
		return s.put(id, data)
	}), nil
}

func (s *Store) put(id ident.Identifier, data []byte) error {
	key := contentKey(id)
	return retry(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			switch {
			case err == nil:
				// A racing writer landed first; converge when the
				// stored copy is identical.
				return item.Value(func(val []byte) error {
					if !bytes.Equal(val, data) {
						return fmt.Errorf("%w: stored bytes diverge for %s", storage.ErrCorrupted, id)
					}
					return nil
				})
			case errors.Is(err, badger.ErrKeyNotFound):
				return txn.Set(key, data)
			default:
				return err
			}
		})
	})
}

func (s *Store) Stat(ctx context.Context, id ident.Identifier) (int64, error) {
	if id.IsInline() {
		return int64(id.Size()), nil
	}

	var size int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contentKey(id))
		if err != nil {
			return err
		}
		size = item.ValueSize()
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return size, nil
}

func (s *Store) Delete(ctx context.Context, id ident.Identifier) error {
	if id.IsInline() {
		return nil
	}
	return retry(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(contentKey(id))
		})
	})
}

// Aliases is the Badger alias provider.
type Aliases struct {
	db *badger.DB
}

var _ storage.AliasProvider = (*Aliases)(nil)

func (a *Aliases) Resolve(ctx context.Context, key []byte) (ident.Identifier, error) {
	var raw []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(aliasKey(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ident.Identifier{}, storage.ErrAliasNotFound
	}
	if err != nil {
		return ident.Identifier{}, err
	}

	id, rest, err := ident.Decode(raw)
	if err != nil || len(rest) != 0 {
		return ident.Identifier{}, fmt.Errorf("badgerstore: malformed alias entry for %x: %w", key, ident.ErrInvalidIdentifier)
	}
	return id, nil
}

func (a *Aliases) Register(ctx context.Context, key []byte, id ident.Identifier) (ident.Identifier, error) {
	if !id.Defined() {
		return ident.Identifier{}, ident.ErrInvalidIdentifier
	}

	wire := id.AppendWire(nil)
	k := aliasKey(key)
	err := retry(func() error {
		return a.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(k)
			switch {
			case err == nil:
				return item.Value(func(val []byte) error {
					if !bytes.Equal(val, wire) {
						return fmt.Errorf("%w: key %x", storage.ErrAliasExists, key)
					}
					return nil
				})
			case errors.Is(err, badger.ErrKeyNotFound):
				return txn.Set(k, wire)
			default:
				return err
			}
		})
	})
	if err != nil {
		return ident.Identifier{}, err
	}
	return id, nil
}
