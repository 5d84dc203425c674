// Package cache composes a remote source-of-truth provider with a
// local cache.
//
// Reads try the local side first and fall through to remote on
// not-found; remote bytes are mirrored into the local side best
// effort. Writes go to remote first and are mirrored the same way.
// Mirror failures are logged, never propagated: correctness depends
// only on the remote side.
package cache

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
)

// Provider is the content cache composite.
type Provider struct {
	remote storage.ContentProvider
	local  storage.ContentProvider
	log    *slog.Logger
}

var _ storage.ContentProvider = (*Provider)(nil)

// New composes remote (source of truth) and local (cache). A nil
// logger selects slog.Default.
func New(remote, local storage.ContentProvider, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{remote: remote, local: local, log: log}
}

func (p *Provider) GetReader(ctx context.Context, id ident.Identifier) (io.ReadCloser, error) {
	if r, ok := storage.InlineReader(id); ok {
		return r, nil
	}

	r, err := p.local.GetReader(ctx, id)
	if err == nil {
		return r, nil
	}
	populate := storage.IsNotFound(err)
	if !populate {
		// A faulty local side falls through to remote but is not
		// trusted for cache population.
		p.log.Warn("cache: local read failed, falling through", "id", id.String(), "err", err)
	}

	data, err := storage.ReadBlob(ctx, p.remote, id)
	if err != nil {
		return nil, err
	}
	if populate {
		if err := p.mirror(ctx, id, data); err != nil {
			p.log.Warn("cache: local populate failed", "id", id.String(), "err", err)
		}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (p *Provider) GetWriter(ctx context.Context, id ident.Identifier) (storage.ContentWriter, error) {
	if id.IsInline() {
		return nil, nil
	}
	rw, err := p.remote.GetWriter(ctx, id)
	if err != nil {
		return nil, err
	}
	if rw == nil {
		return nil, nil
	}
	return &cacheWriter{p: p, id: id, remote: rw}, nil
}

func (p *Provider) Stat(ctx context.Context, id ident.Identifier) (int64, error) {
	if id.IsInline() {
		return int64(id.Size()), nil
	}
	size, err := p.local.Stat(ctx, id)
	if err == nil {
		return size, nil
	}
	if !storage.IsNotFound(err) {
		p.log.Warn("cache: local stat failed, falling through", "id", id.String(), "err", err)
	}
	return p.remote.Stat(ctx, id)
}

func (p *Provider) Delete(ctx context.Context, id ident.Identifier) error {
	if id.IsInline() {
		return nil
	}
	if err := p.local.Delete(ctx, id); err != nil {
		p.log.Warn("cache: local delete failed", "id", id.String(), "err", err)
	}
	return p.remote.Delete(ctx, id)
}

// mirror writes data into the local side through its own staged-write
// path, treating an existing copy as success.
func (p *Provider) mirror(ctx context.Context, id ident.Identifier, data []byte) error {
	w, err := p.local.GetWriter(ctx, id)
	if err != nil {
		return err
	}
	if w == nil {
		return nil
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return err
	}
	return w.Commit(ctx)
}

// cacheWriter delegates staging to the remote writer while keeping its
// own copy of the bytes for the best-effort local mirror after the
// remote commit succeeds.
type cacheWriter struct {
	p      *Provider
	id     ident.Identifier
	buf    bytes.Buffer
	remote storage.ContentWriter
	closed bool
}

func (w *cacheWriter) Write(b []byte) (int, error) {
	if w.closed {
		return 0, storage.ErrWriterClosed
	}
	if _, err := w.remote.Write(b); err != nil {
		return 0, err
	}
	return w.buf.Write(b)
}

func (w *cacheWriter) Commit(ctx context.Context) error {
	if w.closed {
		return storage.ErrWriterClosed
	}
	w.closed = true

	if err := w.remote.Commit(ctx); err != nil {
		return err
	}
	if err := w.p.mirror(ctx, w.id, w.buf.Bytes()); err != nil {
		w.p.log.Warn("cache: local mirror failed", "id", w.id.String(), "err", err)
	}
	return nil
}

func (w *cacheWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.buf.Reset()
	w.remote.Abort()
}
