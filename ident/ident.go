package ident

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
)

// InlineThreshold is the largest payload stored inline in an
// Identifier rather than behind a hash reference.
//
// This is a compatibility constant: changing it changes which
// identifiers existing writers and readers derive for the same bytes.
const InlineThreshold = 64

// hashRefTag is the wire tag for hash-referenced identifiers. Values
// 0x00..InlineThreshold are inline length prefixes; everything else
// is invalid.
const hashRefTag = 0xFE

var ErrInvalidIdentifier = errors.New("ident: invalid identifier")

// Kind discriminates the two identifier variants.
type Kind uint8

const (
	// KindInline embeds the payload directly in the identifier.
	KindInline Kind = iota + 1
	// KindHashRef addresses an externally stored payload by digest
	// and size.
	KindHashRef
)

// Identifier is the addressing value for stored content: either the
// payload itself (small payloads) or the digest and size of an
// externally stored payload.
//
// Identifiers are immutable values. Equality is structural (==) and
// they are usable as map keys.
type Identifier struct {
	kind   Kind
	inline string
	hash   cid.Cid
	size   uint64
}

// New derives the Identifier for data: inline when data fits
// InlineThreshold, a hash reference otherwise.
func New(data []byte) Identifier {
	if len(data) <= InlineThreshold {
		return Identifier{kind: KindInline, inline: string(data)}
	}
	return Identifier{kind: KindHashRef, hash: Sum(data), size: uint64(len(data))}
}

// NewHashRef constructs a hash-reference Identifier from an already
// computed digest. Callers are responsible for c matching the bytes.
func NewHashRef(c cid.Cid, size uint64) Identifier {
	return Identifier{kind: KindHashRef, hash: c, size: size}
}

// Defined reports whether id holds a value (the zero Identifier does
// not).
func (id Identifier) Defined() bool { return id.kind != 0 }

func (id Identifier) Kind() Kind { return id.kind }

// IsInline reports whether the payload is embedded in the identifier.
func (id Identifier) IsInline() bool { return id.kind == KindInline }

// InlineBytes returns the embedded payload. It returns nil for
// hash-reference identifiers.
func (id Identifier) InlineBytes() []byte {
	if id.kind != KindInline {
		return nil
	}
	return []byte(id.inline)
}

// Hash returns the payload digest of a hash-reference identifier, or
// cid.Undef for inline identifiers.
func (id Identifier) Hash() cid.Cid {
	if id.kind != KindHashRef {
		return cid.Undef
	}
	return id.hash
}

// Size returns the logical payload size in bytes.
func (id Identifier) Size() uint64 {
	if id.kind == KindInline {
		return uint64(len(id.inline))
	}
	return id.size
}

// Matches reports whether data reproduces this identifier: byte
// equality for inline identifiers, digest and size equality for hash
// references.
func (id Identifier) Matches(data []byte) bool {
	switch id.kind {
	case KindInline:
		return string(data) == id.inline
	case KindHashRef:
		return uint64(len(data)) == id.size && Sum(data) == id.hash
	default:
		return false
	}
}

// WireLen returns the encoded length in bytes.
func (id Identifier) WireLen() int {
	switch id.kind {
	case KindInline:
		return 1 + len(id.inline)
	case KindHashRef:
		return 1 + 1 + len(id.hash.Bytes()) + 8
	default:
		return 0
	}
}

// AppendWire appends the self-delimiting encoded form to b.
//
// Layout: a tag byte in 0x00..InlineThreshold is an inline length,
// followed by that many payload bytes. Tag 0xFE is a hash reference,
// followed by a one-byte digest length, the digest bytes, and the
// payload size as a big-endian uint64.
func (id Identifier) AppendWire(b []byte) []byte {
	switch id.kind {
	case KindInline:
		b = append(b, byte(len(id.inline)))
		return append(b, id.inline...)
	case KindHashRef:
		hb := id.hash.Bytes()
		b = append(b, hashRefTag, byte(len(hb)))
		b = append(b, hb...)
		return binary.BigEndian.AppendUint64(b, id.size)
	default:
		return b
	}
}

// WriteTo writes the encoded form to w. It implements io.WriterTo.
func (id Identifier) WriteTo(w io.Writer) (int64, error) {
	if !id.Defined() {
		return 0, ErrInvalidIdentifier
	}
	n, err := w.Write(id.AppendWire(nil))
	return int64(n), err
}

// Read decodes one Identifier from r.
//
// Malformed input fails with ErrInvalidIdentifier; a clean EOF before
// the tag byte is reported as io.EOF so callers can detect the end of
// an identifier sequence.
func Read(r io.Reader) (Identifier, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		if err == io.EOF {
			return Identifier{}, io.EOF
		}
		return Identifier{}, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}

	switch {
	case tag[0] <= InlineThreshold:
		buf := make([]byte, int(tag[0]))
		if _, err := io.ReadFull(r, buf); err != nil {
			return Identifier{}, fmt.Errorf("%w: truncated inline payload", ErrInvalidIdentifier)
		}
		return Identifier{kind: KindInline, inline: string(buf)}, nil

	case tag[0] == hashRefTag:
		var hlen [1]byte
		if _, err := io.ReadFull(r, hlen[:]); err != nil {
			return Identifier{}, fmt.Errorf("%w: truncated digest length", ErrInvalidIdentifier)
		}
		hb := make([]byte, int(hlen[0]))
		if _, err := io.ReadFull(r, hb); err != nil {
			return Identifier{}, fmt.Errorf("%w: truncated digest", ErrInvalidIdentifier)
		}
		c, err := cid.Cast(hb)
		if err != nil || !c.Defined() {
			return Identifier{}, fmt.Errorf("%w: bad digest", ErrInvalidIdentifier)
		}
		var sz [8]byte
		if _, err := io.ReadFull(r, sz[:]); err != nil {
			return Identifier{}, fmt.Errorf("%w: truncated size", ErrInvalidIdentifier)
		}
		return Identifier{kind: KindHashRef, hash: c, size: binary.BigEndian.Uint64(sz[:])}, nil

	default:
		return Identifier{}, fmt.Errorf("%w: unknown tag 0x%02x", ErrInvalidIdentifier, tag[0])
	}
}

// Decode decodes one Identifier from the front of b and returns the
// remaining bytes.
func Decode(b []byte) (Identifier, []byte, error) {
	r := bytes.NewReader(b)
	id, err := Read(r)
	if err != nil {
		return Identifier{}, nil, err
	}
	return id, b[len(b)-r.Len():], nil
}

// Compare orders identifiers by their encoded form. The order is
// total and stable across processes.
func (id Identifier) Compare(other Identifier) int {
	return bytes.Compare(id.AppendWire(nil), other.AppendWire(nil))
}

func (id Identifier) String() string {
	switch id.kind {
	case KindInline:
		return "inline:" + hex.EncodeToString([]byte(id.inline))
	case KindHashRef:
		return fmt.Sprintf("%s/%d", id.hash, id.size)
	default:
		return "undef"
	}
}
