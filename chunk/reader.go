package chunk

import (
	"context"
	"io"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// Reader concatenates a chunked object's bytes in manifest order. It
// is finite and forward-only: chunks are resolved lazily as the read
// position crosses into them, and restarting means constructing a new
// Reader. Chunk sizes are known from the manifest entries before any
// chunk is fetched.
type Reader struct {
	ctx      context.Context
	provider storage.ContentProvider
	entries  []ident.Identifier
	next     int
	cur      io.ReadCloser
	size     uint64
}

// NewReader resolves c's manifest in full and returns a Reader over
// the listed chunks. No chunk bytes are fetched yet.
func NewReader(ctx context.Context, p storage.ContentProvider, c Identifier) (*Reader, error) {
	raw, err := storage.ReadBlob(ctx, p, c.Content)
	if err != nil {
		return nil, err
	}
	m, err := DecodeManifest(raw)
	if err != nil {
		return nil, err
	}
	return &Reader{ctx: ctx, provider: p, entries: m.Entries, size: c.Size}, nil
}

// Size returns the logical size of the full payload.
func (r *Reader) Size() uint64 { return r.size }

func (r *Reader) Read(p []byte) (int, error) {
	for {
		if r.cur != nil {
			n, err := r.cur.Read(p)
			if err == io.EOF {
				if cerr := r.cur.Close(); cerr != nil {
					return n, cerr
				}
				r.cur = nil
				if n > 0 {
					return n, nil
				}
				continue
			}
			return n, err
		}

		if r.next >= len(r.entries) {
			return 0, io.EOF
		}
		rc, err := r.provider.GetReader(r.ctx, r.entries[r.next])
		if err != nil {
			return 0, err
		}
		r.next++
		r.cur = rc
	}
}

func (r *Reader) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}
