package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"xdao.co/depot/ident"
)

func randomPayload(n int) []byte {
	payload := make([]byte, n)
	rand.New(rand.NewSource(9)).Read(payload)
	return payload
}

func TestUploaderCommitVerifies(t *testing.T) {
	ctx := context.Background()
	payload := randomPayload(200)

	var committed []byte
	u := NewUploader(ident.New(payload), func(ctx context.Context, data []byte) error {
		committed = data
		return nil
	})
	if _, err := u.Write(payload[:100]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := u.Write(payload[100:]); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := u.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !bytes.Equal(committed, payload) {
		t.Fatal("commit saw different bytes than were staged")
	}
}

func TestUploaderCommitRejectsMismatch(t *testing.T) {
	ctx := context.Background()
	u := NewUploader(ident.New(randomPayload(200)), func(ctx context.Context, data []byte) error {
		t.Fatal("commit function called for mismatched bytes")
		return nil
	})
	if _, err := u.Write([]byte("wrong bytes entirely")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := u.Commit(ctx); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Commit: err = %v, want ErrCorrupted", err)
	}
	// The uploader is spent after a failed commit.
	if _, err := u.Write([]byte("more")); !errors.Is(err, ErrWriterClosed) {
		t.Fatalf("Write after Commit: err = %v, want ErrWriterClosed", err)
	}
}

func TestUploaderAbort(t *testing.T) {
	ctx := context.Background()
	u := NewUploader(ident.New(randomPayload(200)), func(ctx context.Context, data []byte) error {
		t.Fatal("commit function called after Abort")
		return nil
	})
	if _, err := u.Write([]byte("staged")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	u.Abort()
	if err := u.Commit(ctx); !errors.Is(err, ErrWriterClosed) {
		t.Fatalf("Commit after Abort: err = %v, want ErrWriterClosed", err)
	}
}

// fakeProvider exposes just enough surface to drive the blob helpers.
type fakeProvider struct {
	data    map[ident.Identifier][]byte
	writers int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{data: map[ident.Identifier][]byte{}}
}

func (f *fakeProvider) GetReader(ctx context.Context, id ident.Identifier) (io.ReadCloser, error) {
	if r, ok := InlineReader(id); ok {
		return r, nil
	}
	b, ok := f.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeProvider) GetWriter(ctx context.Context, id ident.Identifier) (ContentWriter, error) {
	if id.IsInline() {
		return nil, nil
	}
	if _, ok := f.data[id]; ok {
		return nil, nil
	}
	f.writers++
	return NewUploader(id, func(ctx context.Context, data []byte) error {
		f.data[id] = append([]byte(nil), data...)
		return nil
	}), nil
}

func (f *fakeProvider) Stat(ctx context.Context, id ident.Identifier) (int64, error) {
	if id.IsInline() {
		return int64(id.Size()), nil
	}
	b, ok := f.data[id]
	if !ok {
		return 0, ErrNotFound
	}
	return int64(len(b)), nil
}

func (f *fakeProvider) Delete(ctx context.Context, id ident.Identifier) error {
	delete(f.data, id)
	return nil
}

func TestWriteBlobDedup(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	payload := randomPayload(300)

	id1, err := WriteBlob(ctx, p, payload)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	id2, err := WriteBlob(ctx, p, payload)
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("identifiers differ: %s vs %s", id1, id2)
	}
	if p.writers != 1 {
		t.Fatalf("writers handed out = %d, want 1 (second write is a dedup no-op)", p.writers)
	}

	got, err := ReadBlob(ctx, p, id1)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch")
	}
}

func TestWriteBlobInlineSkipsBackend(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()

	id, err := WriteBlob(ctx, p, []byte("short"))
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if !id.IsInline() {
		t.Fatalf("expected inline identifier, got %s", id)
	}
	if p.writers != 0 || len(p.data) != 0 {
		t.Fatal("inline write reached the backend")
	}
	got, err := ReadBlob(ctx, p, id)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(got) != "short" {
		t.Fatalf("payload = %q", got)
	}
}
