package chunk

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
	"xdao.co/depot/storage/compress"
	"xdao.co/depot/storage/memory"
)

func randomPayload(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func TestWriteRead_RoundTrip(t *testing.T) {
	ctx := context.Background()

	sizes := map[string]int{
		"empty":          0,
		"tiny":           5,
		"one byte short": MaxChunkSize - 1,
		"exact boundary": MaxChunkSize,
		"one byte over":  MaxChunkSize + 1,
		"many chunks":    MaxChunkSize*3 + 10,
		"two boundaries": MaxChunkSize * 2,
	}

	for name, n := range sizes {
		t.Run(name, func(t *testing.T) {
			p := memory.New()
			payload := randomPayload(n)

			cid, err := Write(ctx, p, payload)
			if err != nil {
				t.Fatalf("Write: %v", err)
			}
			if cid.Size != uint64(n) {
				t.Fatalf("Size: got %d want %d", cid.Size, n)
			}

			got, err := Read(ctx, p, cid)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Fatalf("round trip mismatch at %d bytes", n)
			}
		})
	}
}

func TestWrite_ChunkCountAndDedup(t *testing.T) {
	ctx := context.Background()
	p := memory.New()

	// Two maximal chunks of identical bytes plus a short tail: the
	// identical chunks collapse to one stored copy.
	chunkData := randomPayload(MaxChunkSize)
	payload := append(append(append([]byte(nil), chunkData...), chunkData...), "tail"...)

	cid, err := Write(ctx, p, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	raw, err := storage.ReadBlob(ctx, p, cid.Content)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	m, err := DecodeManifest(raw)
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if len(m.Entries) != 3 {
		t.Fatalf("entries: got %d want 3", len(m.Entries))
	}
	if m.Entries[0] != m.Entries[1] {
		t.Fatalf("identical chunks produced distinct identifiers")
	}
	// The second write of the identical chunk was a dedup no-op: one
	// stored copy, one reference.
	if got := p.Refs(m.Entries[0]); got != 1 {
		t.Fatalf("dedup refcount: got %d want 1", got)
	}
}

func TestRead_OverCompressingProvider(t *testing.T) {
	ctx := context.Background()
	p := compress.New(memory.New(), compress.Zstd())
	payload := randomPayload(MaxChunkSize + 500)

	cid, err := Write(ctx, p, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(ctx, p, cid)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip over compression mismatch")
	}
}

func TestManifest_WireFormat(t *testing.T) {
	// A manifest over two chunks of sizes 4096 and 10: format byte 1
	// followed by two length-prefixed identifier entries in write
	// order.
	big := ident.New(randomPayload(4096))
	small := ident.New(randomPayload(10))
	m := &Manifest{Entries: []ident.Identifier{big, small}}

	b := m.Encode()
	if b[0] != 1 {
		t.Fatalf("format byte: got %d want 1", b[0])
	}
	if int(b[1]) != big.WireLen() {
		t.Fatalf("first entry length prefix: got %d want %d", b[1], big.WireLen())
	}

	decoded, err := DecodeManifest(b)
	if err != nil {
		t.Fatalf("DecodeManifest: %v", err)
	}
	if len(decoded.Entries) != 2 || decoded.Entries[0] != big || decoded.Entries[1] != small {
		t.Fatalf("decoded entries mismatch: %v", decoded.Entries)
	}
}

func TestDecodeManifest_Errors(t *testing.T) {
	if _, err := DecodeManifest(nil); !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("empty: got %v", err)
	}

	var unknown UnknownFormatError
	if _, err := DecodeManifest([]byte{0x7F}); !errors.As(err, &unknown) || byte(unknown) != 0x7F {
		t.Fatalf("unknown format: got %v", err)
	}

	id := ident.New([]byte("x"))
	good := (&Manifest{Entries: []ident.Identifier{id}}).Encode()
	if _, err := DecodeManifest(good[:len(good)-1]); !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("truncated: got %v", err)
	}
}

func TestChunkIdentifier_WireRoundTrip(t *testing.T) {
	c := Identifier{Size: 1 << 33, Content: ident.New(randomPayload(5000))}

	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	got, err := ReadIdentifier(&buf)
	if err != nil {
		t.Fatalf("ReadIdentifier: %v", err)
	}
	if got != c {
		t.Fatalf("round trip: got %v want %v", got, c)
	}
	if _, err := ReadIdentifier(&buf); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReader_LazyAndForwardOnly(t *testing.T) {
	ctx := context.Background()
	p := memory.New()
	payload := randomPayload(MaxChunkSize*2 + 7)

	cid, err := Write(ctx, p, payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := NewReader(ctx, p, cid)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	if r.Size() != cid.Size {
		t.Fatalf("Size: got %d want %d", r.Size(), cid.Size)
	}

	// Small reads crossing chunk boundaries still yield the exact
	// concatenation.
	var out bytes.Buffer
	buf := make([]byte, 1000)
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if !bytes.Equal(out.Bytes(), payload) {
		t.Fatalf("streamed payload mismatch")
	}
}
