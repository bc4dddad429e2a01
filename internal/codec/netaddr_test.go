package codec

import (
	"net/netip"
	"testing"
)

func TestInetCodecAddrBinaryRoundTrip(t *testing.T) {
	addr := netip.MustParseAddr("192.168.1.1")
	enc, err := inetCodec.Encode(nil, Binary, addr)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := inetCodec.Decode(nil, Binary, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	prefix := got.(netip.Prefix)
	if prefix.Addr() != addr || prefix.Bits() != 32 {
		t.Errorf("decoded = %v, want %s/32", prefix, addr)
	}
}

func TestInetCodecIPv6BinaryRoundTrip(t *testing.T) {
	prefix := netip.MustParsePrefix("2001:db8::/32")
	enc, err := inetCodec.Encode(nil, Binary, prefix)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := inetCodec.Decode(nil, Binary, enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	gp := got.(netip.Prefix)
	if gp.String() != prefix.String() {
		t.Errorf("decoded = %v, want %v", gp, prefix)
	}
}

func TestInetCodecTextCIDRVsAddr(t *testing.T) {
	addr := netip.MustParseAddr("10.0.0.5")
	enc, err := inetCodec.Encode(nil, Text, addr)
	if err != nil {
		t.Fatalf("encode addr: %v", err)
	}
	if string(enc) != "10.0.0.5" {
		t.Fatalf("encoded addr = %q, want 10.0.0.5", enc)
	}

	prefix := netip.MustParsePrefix("10.0.0.0/24")
	enc, err = inetCodec.Encode(nil, Text, prefix)
	if err != nil {
		t.Fatalf("encode prefix: %v", err)
	}
	if string(enc) != "10.0.0.0/24" {
		t.Fatalf("encoded prefix = %q, want 10.0.0.0/24", enc)
	}
}

func TestInetCodecRejectsUnsupportedType(t *testing.T) {
	if _, err := inetCodec.Encode(nil, Text, "not an address type"); err == nil {
		t.Fatal("expected an error encoding a bare string")
	}
}
