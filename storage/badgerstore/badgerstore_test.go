package badgerstore

import (
	"bytes"
	"context"
	"testing"

	badger "github.com/dgraph-io/badger/v4"

	"xdao.co/depot/storage"
	"xdao.co/depot/storage/testkit"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadger_ContentConformance(t *testing.T) {
	testkit.RunContentConformance(t, func(t *testing.T) storage.ContentProvider {
		t.Helper()
		return openTestDB(t).Content()
	})
}

func TestBadger_AliasConformance(t *testing.T) {
	testkit.RunAliasConformance(t, func(t *testing.T) storage.AliasProvider {
		t.Helper()
		return openTestDB(t).Aliases()
	})
}

func TestBadger_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	payload := bytes.Repeat([]byte{0xC3, 0x17}, 2000)

	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := storage.WriteBlob(ctx, db.Content(), payload)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	key := []byte("pinned")
	if _, err := db.Aliases().Register(ctx, key, id); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	got, err := storage.ReadBlob(ctx, db.Content(), id)
	if err != nil {
		t.Fatalf("ReadBlob after reopen: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch after reopen")
	}
	resolved, err := db.Aliases().Resolve(ctx, key)
	if err != nil || resolved != id {
		t.Fatalf("Resolve after reopen: got %v, %v", resolved, err)
	}
}

func TestBadger_NamespacesAreDisjoint(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// An alias whose key bytes collide with a content key layout must
	// not shadow content, and vice versa.
	payload := bytes.Repeat([]byte("shared-bytes"), 200)
	id, err := storage.WriteBlob(ctx, db.Content(), payload)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if _, err := db.Aliases().Register(ctx, id.AppendWire(nil), id); err != nil {
		t.Fatalf("Register with wire-shaped key: %v", err)
	}

	got, err := storage.ReadBlob(ctx, db.Content(), id)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("content read after alias write: %v", err)
	}
}

func TestBadger_KeyLayout(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	payload := bytes.Repeat([]byte("layout"), 200)
	id, err := storage.WriteBlob(ctx, db.Content(), payload)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if _, err := db.Aliases().Register(ctx, []byte("release"), id); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Content lives under c/, aliases under a/. Nothing else may
	// appear in the database.
	seen := map[string]int{}
	err = db.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			if len(k) < 2 {
				t.Fatalf("key too short: %q", k)
			}
			seen[string(k[:2])]++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if seen["c/"] != 1 || seen["a/"] != 1 || len(seen) != 2 {
		t.Fatalf("unexpected key layout: %v", seen)
	}
}
