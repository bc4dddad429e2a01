package codec

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNumericCodecTextRoundTrip(t *testing.T) {
	reg := NewRegistry()
	in := decimal.RequireFromString("1234.5600")
	enc, err := numericCodec.Encode(reg, Text, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := numericCodec.Decode(reg, Text, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	d := got.(decimal.Decimal)
	if !d.Equal(in) {
		t.Errorf("decoded = %s, want %s", d, in)
	}
}

func TestNumericCodecBinaryRoundTrip(t *testing.T) {
	reg := NewRegistry()
	cases := []string{"0", "1", "-1", "1234.5600", "-9999999999.0001", "0.0005", "100000"}
	for _, s := range cases {
		in := decimal.RequireFromString(s)
		enc, err := numericCodec.Encode(reg, Binary, in)
		if err != nil {
			t.Fatalf("encode(%s): %v", s, err)
		}
		got, err := numericCodec.Decode(reg, Binary, enc)
		if err != nil {
			t.Fatalf("decode(%s): %v", s, err)
		}
		d := got.(decimal.Decimal)
		if !d.Equal(in) {
			t.Errorf("%s: decoded = %s, want %s", s, d, in)
		}
	}
}

func TestNumericCodecBinaryRejectsNaN(t *testing.T) {
	raw := []byte{0, 0, 0, 0, 0xC0, 0, 0, 0} // ndigits=0, weight=0, sign=NaN, dscale=0
	if _, err := numericCodec.Decode(nil, Binary, raw); err == nil {
		t.Fatal("expected an error decoding NaN")
	}
}

func TestNumericCodecEncodeFromStringAndFloat(t *testing.T) {
	reg := NewRegistry()
	if _, err := numericCodec.Encode(reg, Text, "42.5"); err != nil {
		t.Errorf("encode from string: %v", err)
	}
	if _, err := numericCodec.Encode(reg, Text, 42.5); err != nil {
		t.Errorf("encode from float64: %v", err)
	}
	if _, err := numericCodec.Encode(reg, Text, "not-a-number"); err == nil {
		t.Error("expected an error encoding an unparseable string")
	}
}
