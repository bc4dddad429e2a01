package codec

import "testing"

func TestLookupFallsBackToRawCodec(t *testing.T) {
	reg := NewRegistry()
	c := reg.Lookup(999999)
	got, err := c.Decode(reg, Text, []byte("whatever"))
	if err != nil {
		t.Fatalf("raw codec decode: %v", err)
	}
	if string(got.([]byte)) != "whatever" {
		t.Errorf("raw decode = %v, want passthrough bytes", got)
	}
}

func TestLookupResolvesBuiltinScalar(t *testing.T) {
	reg := NewRegistry()
	c := reg.Lookup(OIDInt4)
	got, err := c.Decode(reg, Text, []byte("17"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != int64(17) {
		t.Errorf("decoded = %v, want 17", got)
	}
}

func TestLoadFromCatalogRekeysBuiltinsAndWiresArrays(t *testing.T) {
	reg := NewRegistry()
	reg.LoadFromCatalog([]CatalogRow{
		{TypName: "int4", OID: 9001, TypArray: 9002},
		{TypName: "_int4", OID: 9002},
	})

	oid, ok := reg.OIDByName("int4")
	if !ok || oid != 9001 {
		t.Fatalf("OIDByName(int4) = %v, %v, want 9001, true", oid, ok)
	}

	c := reg.Lookup(9001)
	got, err := c.Decode(reg, Text, []byte("5"))
	if err != nil {
		t.Fatalf("decode re-keyed scalar: %v", err)
	}
	if got != int64(5) {
		t.Errorf("decoded = %v, want 5", got)
	}

	elem, ok := reg.ElementOID(9002)
	if !ok || elem != 9001 {
		t.Fatalf("ElementOID(9002) = %v, %v, want 9001, true", elem, ok)
	}
}

func TestNewRegistrySeedsConventionalArrayOIDs(t *testing.T) {
	reg := NewRegistry()
	elem, ok := reg.ElementOID(1007) // _int4
	if !ok || elem != OIDInt4 {
		t.Fatalf("ElementOID(1007) = %v, %v, want OIDInt4, true", elem, ok)
	}
}
