package storage

import (
	"bytes"
	"context"
	"fmt"

	"xdao.co/depot/ident"
)

// Uploader is the standard ContentWriter implementation backends hand
// out. The write is a three-phase protocol: bytes stream into an
// owned in-memory buffer; Commit verifies the buffer against the
// target Identifier; only on a successful match is the backend's
// commit function invoked with the verified bytes.
//
// The buffer is exclusively owned by the Uploader and handed off to
// the commit function, never shared while writable. A second writer
// racing the same Identifier may find the content already present at
// commit time; backends treat that as success when the stored bytes
// are identical.
type Uploader struct {
	id     ident.Identifier
	buf    bytes.Buffer
	commit func(ctx context.Context, data []byte) error
	closed bool
}

// NewUploader builds an Uploader targeting id. commit is called at
// most once, and only with bytes that match id.
func NewUploader(id ident.Identifier, commit func(ctx context.Context, data []byte) error) *Uploader {
	return &Uploader{id: id, commit: commit}
}

func (u *Uploader) Write(p []byte) (int, error) {
	if u.closed {
		return 0, ErrWriterClosed
	}
	return u.buf.Write(p)
}

func (u *Uploader) Commit(ctx context.Context) error {
	if u.closed {
		return ErrWriterClosed
	}
	u.closed = true

	data := u.buf.Bytes()
	if !u.id.Matches(data) {
		return fmt.Errorf("%w: staged %d bytes for %s", ErrCorrupted, len(data), u.id)
	}
	return u.commit(ctx, data)
}

func (u *Uploader) Abort() {
	u.closed = true
	u.buf.Reset()
}
