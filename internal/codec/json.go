package codec

import "github.com/pgwire/pgwire/internal/pgerr"

// jsonCodec covers the json type: the wire format is just the raw JSON text
// in both Text and Binary mode, so no version byte is involved (that's only
// jsonb, below).
var jsonCodec = Codec{
	Encode: func(_ *Registry, _ Format, v any) ([]byte, error) {
		return jsonBytes(v)
	},
	Decode: func(_ *Registry, _ Format, raw []byte) (any, error) {
		return append([]byte(nil), raw...), nil
	},
}

// jsonbCodec covers jsonb: the binary format prefixes a single version byte
// (always 1) ahead of the JSON text; text format has no such prefix.
var jsonbCodec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		b, err := jsonBytes(v)
		if err != nil {
			return nil, err
		}
		if format == Text {
			return b, nil
		}
		out := make([]byte, 1+len(b))
		out[0] = 1
		copy(out[1:], b)
		return out, nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Text {
			return append([]byte(nil), raw...), nil
		}
		if len(raw) < 1 {
			return nil, pgerr.New(pgerr.KindData, "jsonb: empty value")
		}
		if raw[0] != 1 {
			return nil, pgerr.New(pgerr.KindData, "jsonb: unsupported version byte %d", raw[0])
		}
		return append([]byte(nil), raw[1:]...), nil
	},
}

// jsonBytes accepts either a pre-encoded []byte/string of JSON text (the
// common case for a driver, which does not own application-level JSON
// marshaling) or rejects anything else — it does not call encoding/json
// itself, since callers are expected to marshal before handing a value in.
func jsonBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, pgerr.New(pgerr.KindProgramming, "expected JSON text as []byte or string, got %T", v)
	}
}
