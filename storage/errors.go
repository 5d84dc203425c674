package storage

import "errors"

var (
	// ErrNotFound reports absent content. Expected and recoverable;
	// it is what drives cache fallthrough.
	ErrNotFound = errors.New("storage: content not found")

	// ErrAliasNotFound reports an absent alias key.
	ErrAliasNotFound = errors.New("storage: alias not found")

	// ErrAliasExists reports a first-writer-wins conflict: the key is
	// already bound to a different Identifier.
	ErrAliasExists = errors.New("storage: alias already exists")

	// ErrCorrupted reports bytes that do not match their own
	// Identifier. Fatal for that entry; other entries are unaffected.
	ErrCorrupted = errors.New("storage: bytes do not match identifier")

	// ErrWriterClosed reports use of a ContentWriter after Commit or
	// Abort.
	ErrWriterClosed = errors.New("storage: writer already closed")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAliasNotFound)
}
