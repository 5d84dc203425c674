package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"xdao.co/depot/ident"
)

// Format is the manifest layout byte.
type Format uint8

// FormatLinear is an ordered chunk list: the payload is the
// concatenation of the entries' bytes in manifest order.
const FormatLinear Format = 1

var ErrInvalidManifest = errors.New("chunk: invalid manifest")

// UnknownFormatError reports a manifest whose format byte this
// package does not understand.
type UnknownFormatError byte

func (e UnknownFormatError) Error() string {
	return fmt.Sprintf("chunk: unknown manifest format 0x%02x", byte(e))
}

// Manifest is the ordered chunk list of one logical object. Entry
// order is chunk concatenation order and is semantically meaningful.
type Manifest struct {
	Entries []ident.Identifier
}

// Encode serializes the manifest: one format byte, then each entry as
// a one-byte length prefix followed by the identifier's wire form.
func (m *Manifest) Encode() []byte {
	b := []byte{byte(FormatLinear)}
	for _, id := range m.Entries {
		b = append(b, byte(id.WireLen()))
		b = id.AppendWire(b)
	}
	return b
}

// DecodeManifest parses a serialized manifest. The entry list is read
// in full; there is no lazy parsing.
func DecodeManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidManifest)
	}
	if Format(data[0]) != FormatLinear {
		return nil, UnknownFormatError(data[0])
	}

	m := &Manifest{}
	rest := data[1:]
	for len(rest) > 0 {
		n := int(rest[0])
		rest = rest[1:]
		if n > len(rest) {
			return nil, fmt.Errorf("%w: truncated entry", ErrInvalidManifest)
		}
		id, tail, err := ident.Decode(rest[:n])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		if len(tail) != 0 {
			return nil, fmt.Errorf("%w: entry length disagrees with identifier", ErrInvalidManifest)
		}
		m.Entries = append(m.Entries, id)
		rest = rest[n:]
	}
	return m, nil
}

// ReadManifest reads a serialized manifest from r until EOF.
func ReadManifest(r io.Reader) (*Manifest, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return DecodeManifest(buf.Bytes())
}
