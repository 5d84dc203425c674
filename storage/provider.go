// Package storage defines the content and alias provider contracts
// and the staged-write uploader shared by every backend.
package storage

import (
	"bytes"
	"context"
	"io"

	"xdao.co/depot/ident"
)

// ContentWriter is the staged-write sink returned by a provider's
// write path. Bytes are buffered until Commit, which verifies them
// against the target Identifier before anything is persisted.
type ContentWriter interface {
	io.Writer

	// Commit verifies the staged bytes against the target Identifier
	// and persists them. A mismatch fails with ErrCorrupted and
	// persists nothing.
	Commit(ctx context.Context) error

	// Abort discards the staged bytes. Aborting after Commit is a
	// no-op. An abandoned writer leaves no committed artifact.
	Abort()
}

// ContentProvider stores and retrieves bytes by Identifier.
//
// Contract:
// - Stored objects are immutable and keyed strictly by Identifier.
// - GetReader MUST return ErrNotFound when the identifier is absent.
// - GetWriter MUST return (nil, nil) when the content already exists;
//   callers treat that as success by deduplication, not an error.
// - Delete is idempotent: deleting an absent identifier succeeds.
// - Inline identifiers carry their payload and never hit the backend.
type ContentProvider interface {
	GetReader(ctx context.Context, id ident.Identifier) (io.ReadCloser, error)
	GetWriter(ctx context.Context, id ident.Identifier) (ContentWriter, error)

	// Stat probes existence and size without reading. Absent
	// identifiers fail with ErrNotFound.
	Stat(ctx context.Context, id ident.Identifier) (int64, error)

	Delete(ctx context.Context, id ident.Identifier) error
}

// AliasProvider maps caller-chosen keys to Identifiers. The alias
// namespace is disjoint from content data.
//
// Contract:
// - Resolve MUST return ErrAliasNotFound when the key is absent.
// - Register is first-writer-wins: re-registering a key with a
//   different Identifier fails with ErrAliasExists; re-registering
//   with the same Identifier succeeds, converging to one mapping.
type AliasProvider interface {
	Resolve(ctx context.Context, key []byte) (ident.Identifier, error)
	Register(ctx context.Context, key []byte, id ident.Identifier) (ident.Identifier, error)
}

// InlineReader returns a reader over an inline identifier's embedded
// payload, and false for hash references. Backends call this first in
// their read path so inline payloads never round-trip through storage.
func InlineReader(id ident.Identifier) (io.ReadCloser, bool) {
	if !id.IsInline() {
		return nil, false
	}
	return io.NopCloser(bytes.NewReader(id.InlineBytes())), true
}
