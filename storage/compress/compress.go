// Package compress provides a transparent compression decorator over
// any content provider.
//
// For blobs that reach the backend, the wrapped provider's identifiers
// refer to compressed bytes; adapter and backend must agree on the
// codec out of band (it is not encoded in the identifier). The
// decorator therefore owns identifier derivation: Identify compresses
// and hashes, so callers going through storage.WriteBlob compose with
// it unchanged. Inline identifiers carry their raw payload and never
// touch the codec or the backend.
package compress

import (
	"bytes"
	"context"
	"io"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// Codec is one compression format. Compress is one-shot over a full
// payload; Decompress wraps a stream of compressed bytes.
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// Provider decorates a content provider with per-blob compression.
type Provider struct {
	inner storage.ContentProvider
	codec Codec
}

var (
	_ storage.ContentProvider = (*Provider)(nil)
	_ storage.IdentifierMaker = (*Provider)(nil)
)

// New wraps inner with codec. A nil codec selects zstd.
func New(inner storage.ContentProvider, codec Codec) *Provider {
	if codec == nil {
		codec = Zstd()
	}
	return &Provider{inner: inner, codec: codec}
}

// Identify derives the identifier data is stored under. Payloads
// below the inline threshold stay raw inline identifiers; anything
// larger is addressed by its compressed bytes. The hash-reference
// form is forced even when the compressed bytes would fit inline, so
// an inline identifier never holds codec output.
func (p *Provider) Identify(data []byte) (ident.Identifier, error) {
	if len(data) <= ident.InlineThreshold {
		return ident.New(data), nil
	}
	compressed, err := p.codec.Compress(data)
	if err != nil {
		return ident.Identifier{}, err
	}
	return ident.NewHashRef(ident.Sum(compressed), uint64(len(compressed))), nil
}

func (p *Provider) GetReader(ctx context.Context, id ident.Identifier) (io.ReadCloser, error) {
	if r, ok := storage.InlineReader(id); ok {
		return r, nil
	}

	compressed, err := p.inner.GetReader(ctx, id)
	if err != nil {
		return nil, err
	}
	plain, err := p.codec.Decompress(compressed)
	if err != nil {
		compressed.Close()
		return nil, err
	}
	return &closeBoth{ReadCloser: plain, inner: compressed}, nil
}

func (p *Provider) GetWriter(ctx context.Context, id ident.Identifier) (storage.ContentWriter, error) {
	if id.IsInline() {
		return nil, nil
	}
	iw, err := p.inner.GetWriter(ctx, id)
	if err != nil {
		return nil, err
	}
	if iw == nil {
		return nil, nil
	}
	return &writer{codec: p.codec, inner: iw}, nil
}

func (p *Provider) Stat(ctx context.Context, id ident.Identifier) (int64, error) {
	return p.inner.Stat(ctx, id)
}

func (p *Provider) Delete(ctx context.Context, id ident.Identifier) error {
	return p.inner.Delete(ctx, id)
}

// writer stages plaintext and compresses on commit. Verification
// against the identifier happens in the inner provider's uploader,
// which sees the compressed bytes.
type writer struct {
	codec  Codec
	buf    bytes.Buffer
	inner  storage.ContentWriter
	closed bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, storage.ErrWriterClosed
	}
	return w.buf.Write(p)
}

func (w *writer) Commit(ctx context.Context) error {
	if w.closed {
		return storage.ErrWriterClosed
	}
	w.closed = true

	compressed, err := w.codec.Compress(w.buf.Bytes())
	if err != nil {
		w.inner.Abort()
		return err
	}
	if _, err := w.inner.Write(compressed); err != nil {
		w.inner.Abort()
		return err
	}
	return w.inner.Commit(ctx)
}

func (w *writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.buf.Reset()
	w.inner.Abort()
}

type closeBoth struct {
	io.ReadCloser
	inner io.Closer
}

func (c *closeBoth) Close() error {
	err := c.ReadCloser.Close()
	if ierr := c.inner.Close(); err == nil {
		err = ierr
	}
	return err
}
