package grpcstore

import (
	"encoding/binary"
	"fmt"

	"xdao.co/depot/ident"
)

// Request frames. The identifier wire form is self-delimiting, so
// frames concatenate it with variable-length fields without any outer
// framing beyond a uvarint length where the field is not
// self-delimiting.
//
//	put frame:      identifier || payload
//	register frame: uvarint(len(key)) || key || identifier

func encodePutFrame(id ident.Identifier, data []byte) []byte {
	b := id.AppendWire(nil)
	return append(b, data...)
}

func decodePutFrame(frame []byte) (ident.Identifier, []byte, error) {
	id, rest, err := ident.Decode(frame)
	if err != nil {
		return ident.Identifier{}, nil, err
	}
	return id, rest, nil
}

func encodeRegisterFrame(key []byte, id ident.Identifier) []byte {
	b := binary.AppendUvarint(nil, uint64(len(key)))
	b = append(b, key...)
	return id.AppendWire(b)
}

func decodeRegisterFrame(frame []byte) ([]byte, ident.Identifier, error) {
	klen, n := binary.Uvarint(frame)
	if n <= 0 || uint64(len(frame)-n) < klen {
		return nil, ident.Identifier{}, fmt.Errorf("grpcstore: malformed register frame")
	}
	key := frame[n : n+int(klen)]
	id, rest, err := ident.Decode(frame[n+int(klen):])
	if err != nil {
		return nil, ident.Identifier{}, err
	}
	if len(rest) != 0 {
		return nil, ident.Identifier{}, fmt.Errorf("grpcstore: trailing bytes in register frame")
	}
	return key, id, nil
}

func decodeIdentifier(b []byte) (ident.Identifier, error) {
	id, rest, err := ident.Decode(b)
	if err != nil {
		return ident.Identifier{}, err
	}
	if len(rest) != 0 {
		return ident.Identifier{}, fmt.Errorf("grpcstore: trailing bytes after identifier: %w", ident.ErrInvalidIdentifier)
	}
	return id, nil
}
