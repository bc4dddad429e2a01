// Package codec implements the value codec registry described by the
// driver's wire-format contract: for each PostgreSQL type OID, a pair of
// {encode, decode} functions for both the text and binary wire formats.
package codec

import (
	"strconv"

	"github.com/pgwire/pgwire/internal/pgerr"
)

// Format selects which of a column's two wire representations is in play.
// The zero value, FormatUnspecified, is not a valid wire format — it marks
// a Config built without an explicit choice, which Connect resolves to
// DefaultFormat, so a bare Config{} doesn't silently mean Text.
type Format int16

const (
	FormatUnspecified Format = iota
	Text
	Binary
)

// DefaultFormat is the format Connect uses when Config.Format is left as
// FormatUnspecified (§6: "TEXT or BINARY (default BINARY)").
const DefaultFormat = Binary

// WireCode returns the PostgreSQL wire FormatCode (0=text, 1=binary) for f.
// f must already be resolved to Text or Binary; Connect never leaves
// FormatUnspecified on a live Conn.
func (f Format) WireCode() int16 {
	if f == Binary {
		return 1
	}
	return 0
}

// FormatFromWireCode converts a wire FormatCode (0 or 1), as reported on a
// RowDescription field, into a Format.
func FormatFromWireCode(code int16) Format {
	if code == 1 {
		return Binary
	}
	return Text
}

// Codec is the {encode, decode} pair for one PostgreSQL type OID.
type Codec struct {
	// Encode renders a Go value as the bytes placed inside a Bind message's
	// parameter, in the given format. A nil return with nil error encodes
	// SQL NULL.
	Encode func(reg *Registry, format Format, v any) ([]byte, error)
	// Decode parses a DataRow column's raw bytes (never called for NULL —
	// callers check for a nil column slice themselves) into a Go value.
	Decode func(reg *Registry, format Format, raw []byte) (any, error)
}

// Well-known OIDs from pg_catalog.pg_type, used both as registry keys and
// as the hardcoded seed a freshly-dialed connection can rely on before its
// own catalog query (§4.2) completes.
const (
	OIDBool        uint32 = 16
	OIDBytea       uint32 = 17
	OIDChar        uint32 = 18
	OIDName        uint32 = 19
	OIDInt8        uint32 = 20
	OIDInt2        uint32 = 21
	OIDInt4        uint32 = 23
	OIDText        uint32 = 25
	OIDJSON        uint32 = 114
	OIDJSONArray   uint32 = 199
	OIDFloat4      uint32 = 700
	OIDFloat8      uint32 = 701
	OIDUnknown     uint32 = 705
	OIDInet        uint32 = 869
	OIDBpchar      uint32 = 1042
	OIDVarchar     uint32 = 1043
	OIDDate        uint32 = 1082
	OIDTime        uint32 = 1083
	OIDTimestamp   uint32 = 1114
	OIDTimestampTz uint32 = 1184
	OIDInterval    uint32 = 1186
	OIDTimeTz      uint32 = 1266
	OIDNumeric     uint32 = 1700
	OIDCidr        uint32 = 650
	OIDJSONB       uint32 = 3802
)

// Registry maps OIDs to codecs and array OIDs to their element OID. It is
// safe for concurrent reads; LoadFromCatalog must not race with lookups
// (the engine loads it once per connection before serving any user call,
// per the "codec completeness before use" invariant).
type Registry struct {
	byOID      map[uint32]Codec
	arrayElem  map[uint32]uint32 // array OID -> element OID
	nameToOID  map[string]uint32 // typname -> oid, populated by the catalog load
}

// NewRegistry returns a registry seeded with the built-in scalar codecs.
// Array codecs for those scalars are added for their conventional
// "_"-prefixed array OIDs; a real catalog load (LoadFromCatalog) overrides
// these with the server's actual OIDs, which can differ on exotic builds.
func NewRegistry() *Registry {
	r := &Registry{
		byOID:     make(map[uint32]Codec),
		arrayElem: make(map[uint32]uint32),
		nameToOID: make(map[string]uint32),
	}
	for oid, c := range builtinScalarCodecs() {
		r.byOID[oid] = c
	}
	// Conventional built-in array OIDs (see pg_type.h): _bool=1000, _bytea=1001,
	// _int8=1016, _int2=1005, _int4=1007, _text=1009, _float4=1021, _float8=1022,
	// _varchar=1015, _date=1182, _timestamp=1115, _timestamptz=1185, _numeric=1231.
	for arrayOID, elemOID := range map[uint32]uint32{
		1000: OIDBool, 1001: OIDBytea, 1016: OIDInt8, 1005: OIDInt2,
		1007: OIDInt4, 1009: OIDText, 1021: OIDFloat4, 1022: OIDFloat8,
		1015: OIDVarchar, 1182: OIDDate, 1115: OIDTimestamp, 1185: OIDTimestampTz,
		1231: OIDNumeric, 651: OIDCidr, 1041: OIDInet,
	} {
		r.arrayElem[arrayOID] = elemOID
		r.byOID[arrayOID] = arrayCodec(elemOID)
	}
	return r
}

// CatalogRow is one row of `select typname, oid, typarray from pg_catalog.pg_type`.
type CatalogRow struct {
	TypName  string
	OID      uint32
	TypArray uint32
}

// LoadFromCatalog populates the registry from the server's own pg_type
// catalog (§4.2 initialization). Scalar codecs already known by name keep
// their Go implementation but are re-keyed under the server's reported OID;
// every typarray entry registers an array codec delegating to its element.
func (r *Registry) LoadFromCatalog(rows []CatalogRow) {
	byName := builtinScalarCodecsByName()
	for _, row := range rows {
		r.nameToOID[row.TypName] = row.OID
		if c, ok := byName[row.TypName]; ok {
			r.byOID[row.OID] = c
		}
		if row.TypArray != 0 {
			r.arrayElem[row.TypArray] = row.OID
		}
	}
	// Second pass: now that every element OID is known, wire up array
	// codecs (an array's element codec may not have been registered yet
	// during the first pass, since pg_type rows arrive in arbitrary order).
	for arrayOID, elemOID := range r.arrayElem {
		r.byOID[arrayOID] = arrayCodec(elemOID)
	}
}

// Lookup resolves an oid to a Codec. Unknown OIDs fall back to a
// raw-bytes passthrough codec per §4.2's "unknown OIDs decode as raw bytes".
func (r *Registry) Lookup(oid uint32) Codec {
	if c, ok := r.byOID[oid]; ok {
		return c
	}
	return rawCodec
}

// ElementOID returns the element OID for an array OID, if known.
func (r *Registry) ElementOID(arrayOID uint32) (uint32, bool) {
	oid, ok := r.arrayElem[arrayOID]
	return oid, ok
}

// OIDByName returns the OID the catalog load reported for a type name.
func (r *Registry) OIDByName(name string) (uint32, bool) {
	oid, ok := r.nameToOID[name]
	return oid, ok
}

var rawCodec = Codec{
	Encode: func(_ *Registry, _ Format, v any) ([]byte, error) {
		switch b := v.(type) {
		case []byte:
			return b, nil
		case nil:
			return nil, nil
		default:
			return nil, pgerr.New(pgerr.KindProgramming, "no codec registered for value of type %T", v)
		}
	},
	Decode: func(_ *Registry, _ Format, raw []byte) (any, error) {
		return append([]byte(nil), raw...), nil
	},
}

func builtinScalarCodecs() map[uint32]Codec {
	m := map[uint32]Codec{
		OIDBool:        boolCodec,
		OIDBytea:       byteaCodec,
		OIDInt2:        intCodec(2),
		OIDInt4:        intCodec(4),
		OIDInt8:        intCodec(8),
		OIDFloat4:      float4Codec,
		OIDFloat8:      float8Codec,
		OIDText:        textCodec,
		OIDVarchar:     textCodec,
		OIDBpchar:      textCodec,
		OIDChar:        textCodec,
		OIDName:        textCodec,
		OIDUnknown:     textCodec,
		OIDJSON:        jsonCodec,
		OIDJSONB:       jsonbCodec,
		OIDDate:        dateCodec,
		OIDTime:        timeCodec,
		OIDTimestamp:   timestampCodec(false),
		OIDTimestampTz: timestampCodec(true),
		OIDTimeTz:      timetzCodec,
		OIDInterval:    intervalCodec,
		OIDInet:        inetCodec,
		OIDCidr:        inetCodec,
		OIDNumeric:     numericCodec,
	}
	return m
}

func builtinScalarCodecsByName() map[string]Codec {
	all := builtinScalarCodecs()
	names := map[string]uint32{
		"bool": OIDBool, "bytea": OIDBytea, "int2": OIDInt2, "int4": OIDInt4,
		"int8": OIDInt8, "float4": OIDFloat4, "float8": OIDFloat8, "text": OIDText,
		"varchar": OIDVarchar, "bpchar": OIDBpchar, "char": OIDChar, "name": OIDName,
		"json": OIDJSON, "jsonb": OIDJSONB, "date": OIDDate, "time": OIDTime,
		"timestamp": OIDTimestamp, "timestamptz": OIDTimestampTz, "timetz": OIDTimeTz,
		"interval": OIDInterval, "inet": OIDInet, "cidr": OIDCidr, "numeric": OIDNumeric,
	}
	out := make(map[string]Codec, len(names))
	for name, oid := range names {
		out[name] = all[oid]
	}
	return out
}

// parseASCIIInt is a tiny strconv wrapper used by the int2/int4/int8 text
// decoder.
func parseASCIIInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
