package codec

import (
	"reflect"
	"testing"
)

func TestArrayCodecTextRoundTrip1D(t *testing.T) {
	reg := NewRegistry()
	c := reg.Lookup(1007) // _int4
	in := []any{int64(1), int64(2), nil, int64(4)}

	enc, err := c.Encode(reg, Text, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(enc) != "{1,2,NULL,4}" {
		t.Fatalf("encoded = %q, want {1,2,NULL,4}", enc)
	}

	got, err := c.Decode(reg, Text, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, []any{int64(1), int64(2), nil, int64(4)}) {
		t.Fatalf("decoded = %#v, want %#v", got, in)
	}
}

func TestArrayCodecTextQuotesSpecialElements(t *testing.T) {
	reg := NewRegistry()
	c := reg.Lookup(1009) // _text
	in := []any{"plain", "has space", `has"quote`, "NULL"}

	enc, err := c.Encode(reg, Text, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := c.Decode(reg, Text, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("decoded = %#v, want %#v (encoded: %s)", got, in, enc)
	}
}

func TestArrayCodecBinaryRoundTripNested(t *testing.T) {
	reg := NewRegistry()
	c := reg.Lookup(1007) // _int4
	in := []any{
		[]any{int64(1), int64(2)},
		[]any{int64(3), nil},
	}

	enc, err := c.Encode(reg, Binary, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.Decode(reg, Binary, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("decoded = %#v, want %#v", got, in)
	}
}

func TestArrayCodecRejectsRaggedArray(t *testing.T) {
	reg := NewRegistry()
	c := reg.Lookup(1007)
	in := []any{
		[]any{int64(1), int64(2)},
		[]any{int64(3)},
	}
	if _, err := c.Encode(reg, Binary, in); err == nil {
		t.Fatal("expected an error encoding a ragged nested array")
	}
}

func TestArrayCodecNilEncodesAsNull(t *testing.T) {
	reg := NewRegistry()
	c := reg.Lookup(1007)
	enc, err := c.Encode(reg, Text, nil)
	if err != nil || enc != nil {
		t.Fatalf("encode(nil) = %v, %v, want nil, nil", enc, err)
	}
}
