package chunk

import (
	"encoding/binary"
	"fmt"
	"io"

	"xdao.co/depot/ident"
)

// Identifier describes one chunked object: its logical (uncompressed,
// reassembled) size and the content identifier of its manifest.
type Identifier struct {
	Size    uint64
	Content ident.Identifier
}

// AppendWire appends the serialized form: big-endian size prefix, then
// the content identifier's self-delimiting wire form.
func (c Identifier) AppendWire(b []byte) []byte {
	b = binary.BigEndian.AppendUint64(b, c.Size)
	return c.Content.AppendWire(b)
}

func (c Identifier) WireLen() int { return 8 + c.Content.WireLen() }

func (c Identifier) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(c.AppendWire(nil))
	return int64(n), err
}

// ReadIdentifier decodes one chunk identifier from r.
func ReadIdentifier(r io.Reader) (Identifier, error) {
	var sz [8]byte
	if _, err := io.ReadFull(r, sz[:]); err != nil {
		if err == io.EOF {
			return Identifier{}, io.EOF
		}
		return Identifier{}, fmt.Errorf("%w: truncated size", ident.ErrInvalidIdentifier)
	}
	id, err := ident.Read(r)
	if err != nil {
		return Identifier{}, err
	}
	return Identifier{Size: binary.BigEndian.Uint64(sz[:]), Content: id}, nil
}

// DecodeIdentifier decodes one chunk identifier from the front of b
// and returns the remaining bytes.
func DecodeIdentifier(b []byte) (Identifier, []byte, error) {
	if len(b) < 8 {
		return Identifier{}, nil, fmt.Errorf("%w: truncated size", ident.ErrInvalidIdentifier)
	}
	size := binary.BigEndian.Uint64(b[:8])
	id, rest, err := ident.Decode(b[8:])
	if err != nil {
		return Identifier{}, nil, err
	}
	return Identifier{Size: size, Content: id}, rest, nil
}

func (c Identifier) String() string {
	return fmt.Sprintf("chunk(%d, %s)", c.Size, c.Content)
}
