package ident

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestNew_InlineVsHashRef(t *testing.T) {
	small := []byte("hello")
	id := New(small)
	if !id.IsInline() {
		t.Fatalf("5-byte payload should be inline, got %v", id.Kind())
	}
	if got := id.InlineBytes(); !bytes.Equal(got, small) {
		t.Fatalf("InlineBytes mismatch: %q", got)
	}
	if id.Size() != 5 {
		t.Fatalf("Size: got %d want 5", id.Size())
	}

	atLimit := bytes.Repeat([]byte{'x'}, InlineThreshold)
	if !New(atLimit).IsInline() {
		t.Fatalf("payload at threshold should be inline")
	}

	over := bytes.Repeat([]byte{'x'}, InlineThreshold+1)
	big := New(over)
	if big.IsInline() {
		t.Fatalf("payload over threshold should be a hash reference")
	}
	if !big.Hash().Defined() {
		t.Fatalf("hash reference with undefined digest")
	}
	if big.Size() != uint64(len(over)) {
		t.Fatalf("Size: got %d want %d", big.Size(), len(over))
	}
}

func TestMatches(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, InlineThreshold),
		bytes.Repeat([]byte{0xAB}, 4096),
	} {
		id := New(data)
		if !id.Matches(data) {
			t.Fatalf("Matches(self) false for %d bytes", len(data))
		}
		if id.Matches(append(append([]byte(nil), data...), 0x01)) {
			t.Fatalf("Matches(other) true for %d bytes", len(data))
		}
	}

	var undef Identifier
	if undef.Matches(nil) {
		t.Fatalf("undefined identifier must not match anything")
	}
}

func TestWireRoundTrip(t *testing.T) {
	ids := []Identifier{
		New(nil),
		New([]byte("hello")),
		New(bytes.Repeat([]byte{0x7F}, InlineThreshold)),
		New(bytes.Repeat([]byte{0x7F}, 100_000)),
	}

	var buf bytes.Buffer
	for _, id := range ids {
		n, err := id.WriteTo(&buf)
		if err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
		if int(n) != id.WireLen() {
			t.Fatalf("WireLen %d != written %d", id.WireLen(), n)
		}
	}

	// Identifiers are self-delimiting: read them back in sequence
	// with no external framing.
	for i, want := range ids {
		got, err := Read(&buf)
		if err != nil {
			t.Fatalf("Read[%d]: %v", i, err)
		}
		if got != want {
			t.Fatalf("Read[%d]: got %v want %v", i, got, want)
		}
	}
	if _, err := Read(&buf); err != io.EOF {
		t.Fatalf("expected io.EOF at end of sequence, got %v", err)
	}
}

func TestRead_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown tag":      "\xFF",
		"truncated inline": "\x05hel",
		"truncated digest": "\xFE\x24abc",
		"bad digest":       "\xFE\x03abc\x00\x00\x00\x00\x00\x00\x00\x05",
		"missing size":     string(New(bytes.Repeat([]byte{1}, 1000)).AppendWire(nil)[:40]),
		"tag above inline": "\x41",
	}
	for name, in := range cases {
		_, err := Read(strings.NewReader(in))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if err == io.EOF {
			t.Fatalf("%s: got bare io.EOF, want ErrInvalidIdentifier", name)
		}
	}
}

func TestDecode_ReturnsRest(t *testing.T) {
	id := New([]byte("abc"))
	b := id.AppendWire(nil)
	b = append(b, 0xDE, 0xAD)

	got, rest, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != id {
		t.Fatalf("Decode: got %v want %v", got, id)
	}
	if !bytes.Equal(rest, []byte{0xDE, 0xAD}) {
		t.Fatalf("rest: got %x", rest)
	}
}

func TestCompare_TotalOrder(t *testing.T) {
	a := New([]byte("a"))
	b := New([]byte("b"))
	if a.Compare(b) >= 0 || b.Compare(a) <= 0 || a.Compare(a) != 0 {
		t.Fatalf("Compare not a total order over inline identifiers")
	}
}

func TestSum_Deterministic(t *testing.T) {
	data := bytes.Repeat([]byte("depot"), 1000)
	if Sum(data) != Sum(data) {
		t.Fatalf("Sum not deterministic")
	}
	if Sum(data) == Sum(append(data, 'x')) {
		t.Fatalf("distinct inputs produced the same digest")
	}
}
