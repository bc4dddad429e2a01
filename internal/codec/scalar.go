package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/pgwire/pgwire/internal/pgerr"
)

var boolCodec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		b, ok := v.(bool)
		if !ok {
			return nil, pgerr.New(pgerr.KindProgramming, "expected bool, got %T", v)
		}
		if format == Text {
			if b {
				return []byte("t"), nil
			}
			return []byte("f"), nil
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Text {
			return len(raw) == 1 && raw[0] == 't', nil
		}
		if len(raw) != 1 {
			return nil, pgerr.New(pgerr.KindData, "bool: expected 1 byte, got %d", len(raw))
		}
		return raw[0] != 0, nil
	},
}

// intCodec builds a codec for int2/int4/int8, validating range so an
// out-of-range value fails with KindData before any bytes are sent, per
// §8's overflow boundary behavior.
func intCodec(width int) Codec {
	var lo, hi int64
	switch width {
	case 2:
		lo, hi = math.MinInt16, math.MaxInt16
	case 4:
		lo, hi = math.MinInt32, math.MaxInt32
	case 8:
		lo, hi = math.MinInt64, math.MaxInt64
	}
	return Codec{
		Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
			n, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			if n < lo || n > hi {
				return nil, pgerr.New(pgerr.KindData, "overflow: %d does not fit in int%d", n, width)
			}
			if format == Text {
				return []byte(strconv.FormatInt(n, 10)), nil
			}
			buf := make([]byte, width)
			switch width {
			case 2:
				binary.BigEndian.PutUint16(buf, uint16(n))
			case 4:
				binary.BigEndian.PutUint32(buf, uint32(n))
			case 8:
				binary.BigEndian.PutUint64(buf, uint64(n))
			}
			return buf, nil
		},
		Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
			if format == Text {
				n, err := parseASCIIInt(string(raw))
				if err != nil {
					return nil, pgerr.Wrap(pgerr.KindData, err, "parsing int%d text %q", width, raw)
				}
				return n, nil
			}
			if len(raw) != width {
				return nil, pgerr.New(pgerr.KindData, "int%d: expected %d bytes, got %d", width, width, len(raw))
			}
			switch width {
			case 2:
				return int64(int16(binary.BigEndian.Uint16(raw))), nil
			case 4:
				return int64(int32(binary.BigEndian.Uint32(raw))), nil
			default:
				return int64(binary.BigEndian.Uint64(raw)), nil
			}
		},
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	default:
		return 0, pgerr.New(pgerr.KindProgramming, "expected an integer value, got %T", v)
	}
}

var float4Codec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		if format == Text {
			return []byte(strconv.FormatFloat(f, 'g', -1, 32)), nil
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(f)))
		return buf, nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Text {
			f, err := strconv.ParseFloat(string(raw), 32)
			if err != nil {
				return nil, pgerr.Wrap(pgerr.KindData, err, "parsing float4 text %q", raw)
			}
			return f, nil
		}
		if len(raw) != 4 {
			return nil, pgerr.New(pgerr.KindData, "float4: expected 4 bytes, got %d", len(raw))
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(raw))), nil
	},
}

var float8Codec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		if format == Text {
			return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		return buf, nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Text {
			f, err := strconv.ParseFloat(string(raw), 64)
			if err != nil {
				return nil, pgerr.Wrap(pgerr.KindData, err, "parsing float8 text %q", raw)
			}
			return f, nil
		}
		if len(raw) != 8 {
			return nil, pgerr.New(pgerr.KindData, "float8: expected 8 bytes, got %d", len(raw))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	},
}

func toFloat64(v any) (float64, error) {
	switch f := v.(type) {
	case float32:
		return float64(f), nil
	case float64:
		return f, nil
	case int:
		return float64(f), nil
	case int64:
		return float64(f), nil
	default:
		return 0, pgerr.New(pgerr.KindProgramming, "expected a float value, got %T", v)
	}
}

// textCodec covers text/varchar/char/name/unknown: UTF-8 bytes verbatim in
// both formats (PostgreSQL has no binary-specific text representation).
var textCodec = Codec{
	Encode: func(_ *Registry, _ Format, v any) ([]byte, error) {
		switch s := v.(type) {
		case string:
			return []byte(s), nil
		case []byte:
			return s, nil
		case fmt.Stringer:
			return []byte(s.String()), nil
		default:
			return nil, pgerr.New(pgerr.KindProgramming, "expected string, got %T", v)
		}
	},
	Decode: func(_ *Registry, _ Format, raw []byte) (any, error) {
		return string(raw), nil
	},
}

// byteaCodec: binary passes bytes verbatim; text uses the \x-hex form.
var byteaCodec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		b, ok := v.([]byte)
		if !ok {
			return nil, pgerr.New(pgerr.KindProgramming, "expected []byte, got %T", v)
		}
		if format == Binary {
			return b, nil
		}
		out := make([]byte, 2+hex.EncodedLen(len(b)))
		out[0], out[1] = '\\', 'x'
		hex.Encode(out[2:], b)
		return out, nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Binary {
			return append([]byte(nil), raw...), nil
		}
		if len(raw) < 2 || raw[0] != '\\' || raw[1] != 'x' {
			return nil, pgerr.New(pgerr.KindData, "bytea text form missing \\x prefix")
		}
		out := make([]byte, hex.DecodedLen(len(raw)-2))
		n, err := hex.Decode(out, raw[2:])
		if err != nil {
			return nil, pgerr.Wrap(pgerr.KindData, err, "decoding bytea hex")
		}
		return out[:n], nil
	},
}
