package storage

import (
	"context"
	"io"

	"xdao.co/depot/ident"
)

// IdentifierMaker is implemented by providers that own identifier
// derivation because the stored form differs from the caller's bytes
// (the compressing decorator). Providers that store bytes as-is rely
// on the default ident.New derivation.
type IdentifierMaker interface {
	Identify(data []byte) (ident.Identifier, error)
}

// Identify derives the Identifier data would be stored under by p.
func Identify(p ContentProvider, data []byte) (ident.Identifier, error) {
	if m, ok := p.(IdentifierMaker); ok {
		return m.Identify(data)
	}
	return ident.New(data), nil
}

// WriteBlob stores data through p's staged write path and returns its
// Identifier. Existing content is deduplicated: the second write of
// the same bytes is a no-op success.
func WriteBlob(ctx context.Context, p ContentProvider, data []byte) (ident.Identifier, error) {
	id, err := Identify(p, data)
	if err != nil {
		return ident.Identifier{}, err
	}
	if id.IsInline() {
		return id, nil
	}

	w, err := p.GetWriter(ctx, id)
	if err != nil {
		return ident.Identifier{}, err
	}
	if w == nil {
		return id, nil
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return ident.Identifier{}, err
	}
	if err := w.Commit(ctx); err != nil {
		return ident.Identifier{}, err
	}
	return id, nil
}

// ReadBlob reads the full payload addressed by id from p.
func ReadBlob(ctx context.Context, p ContentProvider, id ident.Identifier) ([]byte, error) {
	rc, err := p.GetReader(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
