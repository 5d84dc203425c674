package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
	"xdao.co/depot/storage/memory"
	"xdao.co/depot/storage/testkit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCache_ContentConformance(t *testing.T) {
	testkit.RunContentConformance(t, func(t *testing.T) storage.ContentProvider {
		t.Helper()
		return New(memory.New(), memory.New(), discardLogger())
	})
}

func TestCache_AliasConformance(t *testing.T) {
	testkit.RunAliasConformance(t, func(t *testing.T) storage.AliasProvider {
		t.Helper()
		return NewAliases(memory.NewAliases(), memory.NewAliases(), discardLogger())
	})
}

// brokenProvider fails every operation with a non-not-found error.
type brokenProvider struct{}

var errBroken = errors.New("backend offline")

func (brokenProvider) GetReader(context.Context, ident.Identifier) (io.ReadCloser, error) {
	return nil, errBroken
}
func (brokenProvider) GetWriter(context.Context, ident.Identifier) (storage.ContentWriter, error) {
	return nil, errBroken
}
func (brokenProvider) Stat(context.Context, ident.Identifier) (int64, error) { return 0, errBroken }
func (brokenProvider) Delete(context.Context, ident.Identifier) error        { return errBroken }

func TestCache_ReadPopulatesLocal(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	local := memory.New()
	payload := bytes.Repeat([]byte{0x5A, 0x01, 0x99}, 3000)

	id, err := storage.WriteBlob(ctx, remote, payload)
	if err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	p := New(remote, local, discardLogger())
	got, err := storage.ReadBlob(ctx, p, id)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}

	// Second read must succeed from the populated local side alone.
	offline := New(brokenProvider{}, local, discardLogger())
	got, err = storage.ReadBlob(ctx, offline, id)
	if err != nil {
		t.Fatalf("ReadBlob with remote offline: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("cached payload mismatch")
	}
}

func TestCache_LocalFaultSkipsPopulate(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	payload := bytes.Repeat([]byte{9, 8, 7}, 3000)

	id, err := storage.WriteBlob(ctx, remote, payload)
	if err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	// Local fails with a non-not-found error: the read still succeeds
	// from remote.
	p := New(remote, brokenProvider{}, discardLogger())
	got, err := storage.ReadBlob(ctx, p, id)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestCache_WriteMirrorsToLocal(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	local := memory.New()
	payload := bytes.Repeat([]byte{1, 2, 3, 4}, 3000)

	p := New(remote, local, discardLogger())
	id, err := storage.WriteBlob(ctx, p, payload)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}

	for name, backend := range map[string]*memory.Store{"remote": remote, "local": local} {
		if _, err := backend.Stat(ctx, id); err != nil {
			t.Fatalf("%s missing copy: %v", name, err)
		}
	}
}

func TestCache_LocalMirrorFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	remote := memory.New()
	payload := bytes.Repeat([]byte{4, 4, 2}, 3000)

	p := New(remote, brokenProvider{}, discardLogger())
	id, err := storage.WriteBlob(ctx, p, payload)
	if err != nil {
		t.Fatalf("WriteBlob with broken local: %v", err)
	}
	if _, err := remote.Stat(ctx, id); err != nil {
		t.Fatalf("remote copy missing: %v", err)
	}
}

type brokenAliases struct{}

func (brokenAliases) Resolve(context.Context, []byte) (ident.Identifier, error) {
	return ident.Identifier{}, errBroken
}
func (brokenAliases) Register(context.Context, []byte, ident.Identifier) (ident.Identifier, error) {
	return ident.Identifier{}, errBroken
}

func TestCacheAliases_ResolvePopulatesLocal(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewAliases()
	local := memory.NewAliases()
	key := []byte("models/current")
	id := ident.New(bytes.Repeat([]byte("weights"), 100))

	if _, err := remote.Register(ctx, key, id); err != nil {
		t.Fatalf("seed remote: %v", err)
	}

	a := NewAliases(remote, local, discardLogger())
	if got, err := a.Resolve(ctx, key); err != nil || got != id {
		t.Fatalf("Resolve: got %v, %v", got, err)
	}

	offline := NewAliases(brokenAliases{}, local, discardLogger())
	if got, err := offline.Resolve(ctx, key); err != nil || got != id {
		t.Fatalf("Resolve with remote offline: got %v, %v", got, err)
	}
}

func TestCacheAliases_RegisterConflictComesFromRemote(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewAliases()
	local := memory.NewAliases()
	key := []byte("k")
	id1 := ident.New(bytes.Repeat([]byte("one"), 100))
	id2 := ident.New(bytes.Repeat([]byte("two"), 100))

	a := NewAliases(remote, local, discardLogger())
	if _, err := a.Register(ctx, key, id1); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := a.Register(ctx, key, id2); !errors.Is(err, storage.ErrAliasExists) {
		t.Fatalf("conflicting Register: got %v want ErrAliasExists", err)
	}
	// Broken local never blocks a successful remote registration.
	b := NewAliases(remote, brokenAliases{}, discardLogger())
	if _, err := b.Register(ctx, []byte("k2"), id1); err != nil {
		t.Fatalf("Register with broken local: %v", err)
	}
}
