// Package resource pairs typed metadata with chunked content.
//
// A Resource binds an application-defined metadata value to the chunk
// identifier of a payload. Resources are themselves stored as blobs:
// the record is CBOR-encoded deterministically, so the same metadata
// and payload always yield the same resource identifier.
package resource

import (
	"context"
	"fmt"

	"xdao.co/depot/chunk"
	"xdao.co/depot/ident"
	"xdao.co/depot/internal/codec"
	"xdao.co/depot/storage"
)

// Resource is a stored value of type M describing a chunked payload.
type Resource[M any] struct {
	Metadata M
	Chunk    chunk.Identifier
}

// record is the wire representation of a Resource. The chunk
// identifier travels in its binary form so the encoding does not
// depend on chunk.Identifier's field layout.
type record[M any] struct {
	Metadata M      `json:"metadata"`
	Chunk    []byte `json:"chunk"`
}

// Encode returns the deterministic encoding of the resource. Storing
// these bytes as a blob yields the resource's identifier.
func (r Resource[M]) Encode() ([]byte, error) {
	data, err := codec.Marshal(record[M]{
		Metadata: r.Metadata,
		Chunk:    r.Chunk.AppendWire(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding resource record: %w", err)
	}
	return data, nil
}

// Identifier returns the content identifier of the encoded resource
// without storing it.
func (r Resource[M]) Identifier(p storage.ContentProvider) (ident.Identifier, error) {
	data, err := r.Encode()
	if err != nil {
		return ident.Identifier{}, err
	}
	return storage.Identify(p, data)
}

// Store chunks payload into p, then stores the resource record built
// from metadata and the resulting chunk identifier. It returns the
// resource and the identifier of its stored record.
func Store[M any](ctx context.Context, p storage.ContentProvider, metadata M, payload []byte) (Resource[M], ident.Identifier, error) {
	cid, err := chunk.Write(ctx, p, payload)
	if err != nil {
		return Resource[M]{}, ident.Identifier{}, fmt.Errorf("storing resource payload: %w", err)
	}
	r := Resource[M]{Metadata: metadata, Chunk: cid}
	id, err := Put(ctx, p, r)
	if err != nil {
		return Resource[M]{}, ident.Identifier{}, err
	}
	return r, id, nil
}

// Put stores the encoded record of an already-built resource.
func Put[M any](ctx context.Context, p storage.ContentProvider, r Resource[M]) (ident.Identifier, error) {
	data, err := r.Encode()
	if err != nil {
		return ident.Identifier{}, err
	}
	id, err := storage.WriteBlob(ctx, p, data)
	if err != nil {
		return ident.Identifier{}, fmt.Errorf("storing resource record: %w", err)
	}
	return id, nil
}

// Load reads and decodes the resource record identified by id.
func Load[M any](ctx context.Context, p storage.ContentProvider, id ident.Identifier) (Resource[M], error) {
	data, err := storage.ReadBlob(ctx, p, id)
	if err != nil {
		return Resource[M]{}, fmt.Errorf("reading resource record: %w", err)
	}
	var rec record[M]
	if err := codec.Unmarshal(data, &rec); err != nil {
		return Resource[M]{}, fmt.Errorf("decoding resource record: %w", err)
	}
	cid, rest, err := chunk.DecodeIdentifier(rec.Chunk)
	if err != nil {
		return Resource[M]{}, fmt.Errorf("decoding resource chunk identifier: %w", err)
	}
	if len(rest) != 0 {
		return Resource[M]{}, fmt.Errorf("resource chunk identifier: %d trailing bytes", len(rest))
	}
	return Resource[M]{Metadata: rec.Metadata, Chunk: cid}, nil
}

// ReadPayload reassembles the resource's payload from p.
func ReadPayload[M any](ctx context.Context, p storage.ContentProvider, r Resource[M]) ([]byte, error) {
	return chunk.Read(ctx, p, r.Chunk)
}
