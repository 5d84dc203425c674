// Package testkit provides conformance suites every content and alias
// provider implementation runs in its own tests.
package testkit

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"testing"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// NewContent constructs a fresh, empty content provider for a test.
// The returned provider MUST be isolated from other tests.
type NewContent func(t *testing.T) storage.ContentProvider

// NewAlias constructs a fresh, empty alias provider for a test.
type NewAlias func(t *testing.T) storage.AliasProvider

func RunContentConformance(t *testing.T, newProvider NewContent) {
	t.Helper()
	ctx := context.Background()

	// Pseudorandom so decorating providers (compression) cannot shrink
	// it below the inline threshold.
	payload := make([]byte, 8192)
	rand.New(rand.NewSource(42)).Read(payload)

	t.Run("WriteReadRoundTrip", func(t *testing.T) {
		p := newProvider(t)

		id, err := storage.WriteBlob(ctx, p, payload)
		if err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		if id.IsInline() {
			t.Fatalf("large payload must not be inline")
		}

		got, err := storage.ReadBlob(ctx, p, id)
		if err != nil {
			t.Fatalf("ReadBlob: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round trip mismatch: got %d bytes", len(got))
		}

		size, err := p.Stat(ctx, id)
		if err != nil {
			t.Fatalf("Stat: %v", err)
		}
		if size != int64(id.Size()) {
			t.Fatalf("Stat size: got %d want %d", size, id.Size())
		}
	})

	t.Run("SecondWriterIsDedup", func(t *testing.T) {
		p := newProvider(t)

		id, err := storage.WriteBlob(ctx, p, payload)
		if err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		w, err := p.GetWriter(ctx, id)
		if err != nil {
			t.Fatalf("GetWriter after write: %v", err)
		}
		if w != nil {
			w.Abort()
			t.Fatalf("GetWriter must return nil for existing content")
		}
	})

	t.Run("InlineRoundTrip", func(t *testing.T) {
		p := newProvider(t)
		small := []byte("hi")
		id := ident.New(small)

		// Inline payloads never hit the backend: readable without a
		// prior write, and the write path reports dedup.
		got, err := storage.ReadBlob(ctx, p, id)
		if err != nil {
			t.Fatalf("ReadBlob inline: %v", err)
		}
		if !bytes.Equal(got, small) {
			t.Fatalf("inline payload mismatch")
		}
		w, err := p.GetWriter(ctx, id)
		if err != nil {
			t.Fatalf("GetWriter inline: %v", err)
		}
		if w != nil {
			w.Abort()
			t.Fatalf("GetWriter must return nil for inline identifiers")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		p := newProvider(t)
		id := ident.New(bytes.Repeat([]byte("absent"), 100))

		if _, err := p.GetReader(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("GetReader absent: got %v want ErrNotFound", err)
		}
		if _, err := p.Stat(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("Stat absent: got %v want ErrNotFound", err)
		}
	})

	t.Run("MismatchedCommitPersistsNothing", func(t *testing.T) {
		p := newProvider(t)
		id, err := storage.Identify(p, payload)
		if err != nil {
			t.Fatalf("Identify: %v", err)
		}

		w, err := p.GetWriter(ctx, id)
		if err != nil {
			t.Fatalf("GetWriter: %v", err)
		}
		if _, err := w.Write([]byte("not the payload at all")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Commit(ctx); !errors.Is(err, storage.ErrCorrupted) {
			t.Fatalf("Commit mismatch: got %v want ErrCorrupted", err)
		}
		if _, err := p.Stat(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("mismatched commit must persist nothing, Stat got %v", err)
		}
	})

	t.Run("AbortPersistsNothing", func(t *testing.T) {
		p := newProvider(t)
		id, err := storage.Identify(p, payload)
		if err != nil {
			t.Fatalf("Identify: %v", err)
		}

		w, err := p.GetWriter(ctx, id)
		if err != nil {
			t.Fatalf("GetWriter: %v", err)
		}
		if _, err := w.Write(payload); err != nil {
			t.Fatalf("Write: %v", err)
		}
		w.Abort()
		if _, err := p.Stat(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("aborted write must persist nothing, Stat got %v", err)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		p := newProvider(t)
		id, err := storage.WriteBlob(ctx, p, payload)
		if err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}

		if err := p.Delete(ctx, id); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := p.Stat(ctx, id); !storage.IsNotFound(err) {
			t.Fatalf("Stat after delete: got %v want ErrNotFound", err)
		}
		if err := p.Delete(ctx, id); err != nil {
			t.Fatalf("Delete of absent id must succeed, got %v", err)
		}
	})

	t.Run("ConcurrentWritersConverge", func(t *testing.T) {
		p := newProvider(t)
		id, err := storage.Identify(p, payload)
		if err != nil {
			t.Fatalf("Identify: %v", err)
		}

		// Both writers are handed out before either commits; the
		// second commit discovers the content exists and succeeds.
		w1, err := p.GetWriter(ctx, id)
		if err != nil {
			t.Fatalf("GetWriter(1): %v", err)
		}
		w2, err := p.GetWriter(ctx, id)
		if err != nil {
			t.Fatalf("GetWriter(2): %v", err)
		}

		for i, w := range []storage.ContentWriter{w1, w2} {
			if _, err := w.Write(payload); err != nil {
				t.Fatalf("Write(%d): %v", i+1, err)
			}
			if err := w.Commit(ctx); err != nil {
				t.Fatalf("Commit(%d): %v", i+1, err)
			}
		}

		got, err := storage.ReadBlob(ctx, p, id)
		if err != nil {
			t.Fatalf("ReadBlob: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("converged copy mismatch")
		}
	})
}

func RunAliasConformance(t *testing.T, newAlias NewAlias) {
	t.Helper()
	ctx := context.Background()

	target := ident.New(bytes.Repeat([]byte("aliased content"), 32))
	other := ident.New(bytes.Repeat([]byte("different content"), 32))

	t.Run("RegisterResolveRoundTrip", func(t *testing.T) {
		a := newAlias(t)
		key := []byte("builds/latest")

		got, err := a.Register(ctx, key, target)
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if got != target {
			t.Fatalf("Register returned %v want %v", got, target)
		}

		resolved, err := a.Resolve(ctx, key)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if resolved != target {
			t.Fatalf("Resolve returned %v want %v", resolved, target)
		}
	})

	t.Run("ResolveMissing", func(t *testing.T) {
		a := newAlias(t)
		if _, err := a.Resolve(ctx, []byte("nope")); !errors.Is(err, storage.ErrAliasNotFound) {
			t.Fatalf("Resolve missing: got %v want ErrAliasNotFound", err)
		}
	})

	t.Run("ConflictingRegisterFails", func(t *testing.T) {
		a := newAlias(t)
		key := []byte("builds/latest")

		if _, err := a.Register(ctx, key, target); err != nil {
			t.Fatalf("Register: %v", err)
		}
		if _, err := a.Register(ctx, key, other); !errors.Is(err, storage.ErrAliasExists) {
			t.Fatalf("conflicting Register: got %v want ErrAliasExists", err)
		}

		// First writer wins: the original mapping is intact.
		resolved, err := a.Resolve(ctx, key)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if resolved != target {
			t.Fatalf("mapping overwritten: got %v", resolved)
		}
	})

	t.Run("SameIdentifierConverges", func(t *testing.T) {
		a := newAlias(t)
		key := []byte("builds/latest")

		if _, err := a.Register(ctx, key, target); err != nil {
			t.Fatalf("Register(1): %v", err)
		}
		if _, err := a.Register(ctx, key, target); err != nil {
			t.Fatalf("Register(2) with same identifier must succeed, got %v", err)
		}
	})

	t.Run("BinaryKeys", func(t *testing.T) {
		a := newAlias(t)
		key := []byte{0x00, 0xFF, '/', '.', '.', 0x01}

		if _, err := a.Register(ctx, key, target); err != nil {
			t.Fatalf("Register binary key: %v", err)
		}
		resolved, err := a.Resolve(ctx, key)
		if err != nil {
			t.Fatalf("Resolve binary key: %v", err)
		}
		if resolved != target {
			t.Fatalf("binary key mapping mismatch")
		}
	})
}
