package localfs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
	"xdao.co/depot/storage/testkit"
)

func TestLocalFS_ContentConformance(t *testing.T) {
	testkit.RunContentConformance(t, func(t *testing.T) storage.ContentProvider {
		t.Helper()
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}

func TestLocalFS_AliasConformance(t *testing.T) {
	testkit.RunAliasConformance(t, func(t *testing.T) storage.AliasProvider {
		t.Helper()
		a, err := NewAliases(t.TempDir())
		if err != nil {
			t.Fatalf("NewAliases: %v", err)
		}
		return a
	})
}

func TestLocalFS_NoStagingLeftovers(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := bytes.Repeat([]byte("staged"), 100)
	id, err := storage.Identify(s, payload)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}

	// An abandoned writer must leave nothing behind under the
	// committed namespace, and an aborted one no staging garbage.
	w, err := s.GetWriter(ctx, id)
	if err != nil {
		t.Fatalf("GetWriter: %v", err)
	}
	if _, err := w.Write(payload[:10]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Abort()

	if _, err := s.Stat(ctx, id); !storage.IsNotFound(err) {
		t.Fatalf("Stat after abort: got %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(root, "staging"))
	if err != nil {
		t.Fatalf("ReadDir staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging directory not empty after abort: %d entries", len(entries))
	}
}

func TestLocalFS_AliasEntryPublishedWhole(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	a, err := NewAliases(root)
	if err != nil {
		t.Fatalf("NewAliases: %v", err)
	}

	key := []byte("release/v1")
	id := ident.New(bytes.Repeat([]byte("target"), 20))
	if _, err := a.Register(ctx, key, id); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// The entry on disk must be the complete wire form, never a
	// truncated prefix left behind by an interrupted writer.
	b, err := os.ReadFile(a.pathFor(key))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got, rest, err := ident.Decode(b)
	if err != nil {
		t.Fatalf("Decode entry: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("trailing bytes in alias entry: %d", len(rest))
	}
	if got != id {
		t.Fatalf("entry mismatch: got %v, want %v", got, id)
	}

	entries, err := os.ReadDir(filepath.Join(root, "staging"))
	if err != nil {
		t.Fatalf("ReadDir staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging directory not empty after register: %d entries", len(entries))
	}
}

func TestLocalFS_AliasConflictLeavesEntryIntact(t *testing.T) {
	ctx := context.Background()
	a, err := NewAliases(t.TempDir())
	if err != nil {
		t.Fatalf("NewAliases: %v", err)
	}

	key := []byte("release/v2")
	first := ident.New([]byte("first target"))
	if _, err := a.Register(ctx, key, first); err != nil {
		t.Fatalf("Register: %v", err)
	}

	other := ident.New([]byte("other target"))
	if _, err := a.Register(ctx, key, other); !errors.Is(err, storage.ErrAliasExists) {
		t.Fatalf("conflicting register: got %v, want ErrAliasExists", err)
	}

	// The losing register must not disturb the committed entry, and a
	// retry with the winning identifier still converges.
	got, err := a.Resolve(ctx, key)
	if err != nil {
		t.Fatalf("Resolve after conflict: %v", err)
	}
	if got != first {
		t.Fatalf("resolved %v, want %v", got, first)
	}
	if _, err := a.Register(ctx, key, first); err != nil {
		t.Fatalf("re-register winner: %v", err)
	}
}

func TestLocalFS_CommittedFileIsReadOnly(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	payload := bytes.Repeat([]byte("immutable"), 100)
	id, err := storage.WriteBlob(ctx, s, payload)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}

	fi, err := os.Stat(s.pathFor(id))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Mode().Perm()&0o222 != 0 {
		t.Fatalf("committed file is writable: %v", fi.Mode())
	}
}
