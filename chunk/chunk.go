// Package chunk splits large payloads into content-addressed chunks
// and reassembles them through a manifest.
//
// The chunking policy is a fixed maximum chunk size with a short final
// chunk. MaxChunkSize is a protocol constant: changing it changes the
// chunk identifiers existing writers derive for the same payload and
// therefore defeats deduplication against previously stored data.
package chunk

import (
	"context"
	"fmt"
	"io"

	"xdao.co/depot/storage"
)

// MaxChunkSize is the fixed chunk size; only the final chunk of a
// payload may be shorter.
const MaxChunkSize = 256 * 1024

// Write splits data into chunks, stores each through p's staged write
// path (identical chunks deduplicate by identifier equality), stores
// the manifest as one more content-addressed blob, and returns the
// chunk identifier wrapping the logical size and the manifest's
// identifier.
func Write(ctx context.Context, p storage.ContentProvider, data []byte) (Identifier, error) {
	m := &Manifest{}
	for off := 0; off < len(data); off += MaxChunkSize {
		end := off + MaxChunkSize
		if end > len(data) {
			end = len(data)
		}
		id, err := storage.WriteBlob(ctx, p, data[off:end])
		if err != nil {
			return Identifier{}, fmt.Errorf("chunk %d: %w", len(m.Entries), err)
		}
		m.Entries = append(m.Entries, id)
	}

	mid, err := storage.WriteBlob(ctx, p, m.Encode())
	if err != nil {
		return Identifier{}, fmt.Errorf("manifest: %w", err)
	}
	return Identifier{Size: uint64(len(data)), Content: mid}, nil
}

// Read reassembles the full payload addressed by c.
func Read(ctx context.Context, p storage.ContentProvider, c Identifier) ([]byte, error) {
	r, err := NewReader(ctx, p, c)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) != c.Size {
		return nil, fmt.Errorf("%w: reassembled %d bytes, manifest claims %d", ErrInvalidManifest, len(data), c.Size)
	}
	return data, nil
}
