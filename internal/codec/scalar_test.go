package codec

import (
	"testing"

	"github.com/pgwire/pgwire/internal/pgerr"
)

func TestBoolCodecRoundTrip(t *testing.T) {
	reg := NewRegistry()
	for _, format := range []Format{Text, Binary} {
		for _, v := range []bool{true, false} {
			enc, err := boolCodec.Encode(reg, format, v)
			if err != nil {
				t.Fatalf("encode(%v, %v): %v", format, v, err)
			}
			got, err := boolCodec.Decode(reg, format, enc)
			if err != nil {
				t.Fatalf("decode(%v, %v): %v", format, enc, err)
			}
			if got != v {
				t.Errorf("format %v: got %v, want %v", format, got, v)
			}
		}
	}
}

func TestIntCodecOverflowRejected(t *testing.T) {
	reg := NewRegistry()
	c := intCodec(2)
	if _, err := c.Encode(reg, Text, 33000); err == nil {
		t.Fatal("expected overflow error encoding 33000 into int2")
	} else if !pgerr.Is(err, pgerr.KindData) {
		t.Errorf("expected KindData, got %v", err)
	}
	if _, err := c.Encode(reg, Text, int64(32767)); err != nil {
		t.Errorf("max int16 should encode cleanly: %v", err)
	}
}

func TestIntCodecTextRoundTrip(t *testing.T) {
	reg := NewRegistry()
	c := intCodec(4)
	enc, err := c.Encode(reg, Text, 42)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(enc) != "42" {
		t.Errorf("encoded = %q, want %q", enc, "42")
	}
	got, err := c.Decode(reg, Text, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != int64(42) {
		t.Errorf("decoded = %v, want 42", got)
	}
}

func TestIntCodecBinaryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	c := intCodec(8)
	enc, err := c.Encode(reg, Binary, int64(-7))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(reg, Binary, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != int64(-7) {
		t.Errorf("decoded = %v, want -7", got)
	}
}

func TestTextCodecAcceptsStringerAndBytes(t *testing.T) {
	reg := NewRegistry()
	if enc, err := textCodec.Encode(reg, Text, "hello"); err != nil || string(enc) != "hello" {
		t.Fatalf("string encode = %q, %v", enc, err)
	}
	if enc, err := textCodec.Encode(reg, Text, []byte("world")); err != nil || string(enc) != "world" {
		t.Fatalf("[]byte encode = %q, %v", enc, err)
	}
	if _, err := textCodec.Encode(reg, Text, 42); err == nil {
		t.Fatal("expected a programming error encoding an int as text")
	}
}

func TestByteaCodecTextUsesHexForm(t *testing.T) {
	reg := NewRegistry()
	enc, err := byteaCodec.Encode(reg, Text, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(enc) != `\xdeadbeef` {
		t.Fatalf("encoded = %q, want \\xdeadbeef", enc)
	}
	got, err := byteaCodec.Decode(reg, Text, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded, ok := got.([]byte)
	if !ok || string(decoded) != "\xDE\xAD\xBE\xEF" {
		t.Fatalf("decoded = %v, want DEADBEEF bytes", got)
	}
}

func TestByteaCodecTextRejectsMissingPrefix(t *testing.T) {
	reg := NewRegistry()
	if _, err := byteaCodec.Decode(reg, Text, []byte("deadbeef")); err == nil {
		t.Fatal("expected an error decoding bytea text without \\x prefix")
	}
}

func TestFloat8CodecRoundTrip(t *testing.T) {
	reg := NewRegistry()
	enc, err := float8Codec.Encode(reg, Binary, 3.5)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := float8Codec.Decode(reg, Binary, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != 3.5 {
		t.Errorf("decoded = %v, want 3.5", got)
	}
}
