package codec

import (
	"bytes"
	"strings"

	"github.com/pgwire/pgwire/internal/pgerr"
)

// arrayCodec builds the codec for an array OID given its element OID. A Go
// array value is represented as []any, where an element is either a scalar
// accepted by the element codec, nil (SQL NULL), or another []any for the
// next nesting level — mirroring how the wire format itself nests dimension
// sizes ahead of a flat, depth-first element list.
func arrayCodec(elemOID uint32) Codec {
	return Codec{
		Encode: func(reg *Registry, format Format, v any) ([]byte, error) {
			elems, ok := v.([]any)
			if !ok {
				if v == nil {
					return nil, nil
				}
				return nil, pgerr.New(pgerr.KindProgramming, "expected []any for array value, got %T", v)
			}
			dims, err := arrayDims(elems)
			if err != nil {
				return nil, err
			}
			elemCodec := reg.Lookup(elemOID)
			if format == Text {
				var buf bytes.Buffer
				if err := encodeArrayText(&buf, reg, elemCodec, elems); err != nil {
					return nil, err
				}
				return buf.Bytes(), nil
			}
			return encodeArrayBinary(reg, elemCodec, elemOID, elems, dims)
		},
		Decode: func(reg *Registry, format Format, raw []byte) (any, error) {
			elemCodec := reg.Lookup(elemOID)
			if format == Text {
				v, _, err := decodeArrayText(string(raw), reg, elemCodec)
				return v, err
			}
			return decodeArrayBinary(raw, reg, elemCodec)
		},
	}
}

// arrayDims walks the first element of each nesting level to determine the
// declared shape, then validates every sibling slice at that level matches
// it — a ragged array is a programming error, not something the wire format
// can represent.
func arrayDims(elems []any) ([]int32, error) {
	dims := []int32{int32(len(elems))}
	if len(elems) == 0 {
		return dims, nil
	}
	if inner, ok := elems[0].([]any); ok {
		childDims, err := arrayDims(inner)
		if err != nil {
			return nil, err
		}
		for _, e := range elems[1:] {
			sub, ok := e.([]any)
			if !ok {
				return nil, pgerr.New(pgerr.KindProgramming, "ragged array: mixed element depths")
			}
			subDims, err := arrayDims(sub)
			if err != nil {
				return nil, err
			}
			if len(subDims) != len(childDims) {
				return nil, pgerr.New(pgerr.KindProgramming, "ragged array: mixed element depths")
			}
			for i := range subDims {
				if subDims[i] != childDims[i] {
					return nil, pgerr.New(pgerr.KindProgramming, "ragged array: mismatched sub-array length")
				}
			}
		}
		dims = append(dims, childDims...)
	} else {
		for _, e := range elems[1:] {
			if _, ok := e.([]any); ok {
				return nil, pgerr.New(pgerr.KindProgramming, "ragged array: mixed element depths")
			}
		}
	}
	return dims, nil
}

func encodeArrayBinary(reg *Registry, elemCodec Codec, elemOID uint32, elems []any, dims []int32) ([]byte, error) {
	var buf bytes.Buffer
	hasNull := int32(0)
	var flat []any
	flattenArray(elems, &flat)
	for _, e := range flat {
		if e == nil {
			hasNull = 1
			break
		}
	}
	writeI32(&buf, int32(len(dims)))
	writeI32(&buf, hasNull)
	writeU32(&buf, elemOID)
	for _, d := range dims {
		writeI32(&buf, d)
		writeI32(&buf, 1) // lower bound
	}
	for _, e := range flat {
		if e == nil {
			writeI32(&buf, -1)
			continue
		}
		b, err := elemCodec.Encode(reg, Binary, e)
		if err != nil {
			return nil, err
		}
		writeI32(&buf, int32(len(b)))
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func flattenArray(elems []any, out *[]any) {
	for _, e := range elems {
		if inner, ok := e.([]any); ok {
			flattenArray(inner, out)
		} else {
			*out = append(*out, e)
		}
	}
}

func decodeArrayBinary(raw []byte, reg *Registry, elemCodec Codec) (any, error) {
	if len(raw) < 12 {
		return nil, pgerr.New(pgerr.KindData, "array: short header")
	}
	ndim := int(i32At(raw, 0))
	off := 12
	dims := make([]int32, ndim)
	for i := 0; i < ndim; i++ {
		if off+8 > len(raw) {
			return nil, pgerr.New(pgerr.KindData, "array: truncated dimension header")
		}
		dims[i] = i32At(raw, off)
		off += 8
	}
	if ndim == 0 {
		return []any{}, nil
	}
	values, newOff, err := readArrayElems(raw, off, reg, elemCodec)
	if err != nil {
		return nil, err
	}
	off = newOff
	return nestArray(values, dims), nil
}

func readArrayElems(raw []byte, off int, reg *Registry, elemCodec Codec) ([]any, int, error) {
	var flat []any
	for off < len(raw) {
		if off+4 > len(raw) {
			return nil, 0, pgerr.New(pgerr.KindData, "array: truncated element length")
		}
		n := i32At(raw, off)
		off += 4
		if n < 0 {
			flat = append(flat, nil)
			continue
		}
		if off+int(n) > len(raw) {
			return nil, 0, pgerr.New(pgerr.KindData, "array: truncated element data")
		}
		v, err := elemCodec.Decode(reg, Binary, raw[off:off+int(n)])
		if err != nil {
			return nil, 0, err
		}
		flat = append(flat, v)
		off += int(n)
	}
	return flat, off, nil
}

// nestArray folds a flat, depth-first element list back into []any nesting
// matching dims — the inverse of flattenArray.
func nestArray(flat []any, dims []int32) []any {
	if len(dims) == 1 {
		return flat
	}
	chunk := 1
	for _, d := range dims[1:] {
		chunk *= int(d)
	}
	out := make([]any, dims[0])
	for i := range out {
		sub := flat[i*chunk : (i+1)*chunk]
		out[i] = nestArray(sub, dims[1:])
	}
	return out
}

func encodeArrayText(buf *bytes.Buffer, reg *Registry, elemCodec Codec, elems []any) error {
	buf.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		switch val := e.(type) {
		case nil:
			buf.WriteString("NULL")
		case []any:
			if err := encodeArrayText(buf, reg, elemCodec, val); err != nil {
				return err
			}
		default:
			b, err := elemCodec.Encode(reg, Text, val)
			if err != nil {
				return err
			}
			buf.WriteString(quoteArrayElement(string(b)))
		}
	}
	buf.WriteByte('}')
	return nil
}

func quoteArrayElement(s string) string {
	if s == "" || needsArrayQuote(s) {
		var b strings.Builder
		b.WriteByte('"')
		for _, r := range s {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
		return b.String()
	}
	return s
}

func needsArrayQuote(s string) bool {
	if strings.EqualFold(s, "null") {
		return true
	}
	for _, r := range s {
		switch r {
		case '{', '}', ',', '"', '\\', ' ':
			return true
		}
	}
	return false
}

// decodeArrayText parses a (possibly nested) {...} literal starting at s[0]
// ('{') and returns the parsed value plus the index just past the matching
// closing brace.
func decodeArrayText(s string, reg *Registry, elemCodec Codec) ([]any, int, error) {
	if len(s) == 0 || s[0] != '{' {
		return nil, 0, pgerr.New(pgerr.KindData, "array text: expected '{'")
	}
	var out []any
	i := 1
	for i < len(s) {
		switch s[i] {
		case '}':
			return out, i + 1, nil
		case ',':
			i++
		case '{':
			sub, next, err := decodeArrayText(s[i:], reg, elemCodec)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, sub)
			i += next
		case '"':
			val, next, err := readQuotedArrayElement(s[i:])
			if err != nil {
				return nil, 0, err
			}
			decoded, err := elemCodec.Decode(reg, Text, []byte(val))
			if err != nil {
				return nil, 0, err
			}
			out = append(out, decoded)
			i += next
		default:
			j := i
			for j < len(s) && s[j] != ',' && s[j] != '}' {
				j++
			}
			token := s[i:j]
			if strings.EqualFold(token, "null") {
				out = append(out, nil)
			} else {
				decoded, err := elemCodec.Decode(reg, Text, []byte(token))
				if err != nil {
					return nil, 0, err
				}
				out = append(out, decoded)
			}
			i = j
		}
	}
	return nil, 0, pgerr.New(pgerr.KindData, "array text: unterminated literal")
}

func readQuotedArrayElement(s string) (string, int, error) {
	if len(s) == 0 || s[0] != '"' {
		return "", 0, pgerr.New(pgerr.KindData, "array text: expected opening quote")
	}
	var b strings.Builder
	i := 1
	for i < len(s) {
		switch s[i] {
		case '\\':
			if i+1 >= len(s) {
				return "", 0, pgerr.New(pgerr.KindData, "array text: dangling escape")
			}
			b.WriteByte(s[i+1])
			i += 2
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return "", 0, pgerr.New(pgerr.KindData, "array text: unterminated quoted element")
}

func writeI32(buf *bytes.Buffer, n int32) {
	buf.WriteByte(byte(n >> 24))
	buf.WriteByte(byte(n >> 16))
	buf.WriteByte(byte(n >> 8))
	buf.WriteByte(byte(n))
}

func writeU32(buf *bytes.Buffer, n uint32) {
	writeI32(buf, int32(n))
}

func i32At(raw []byte, off int) int32 {
	return int32(uint32(raw[off])<<24 | uint32(raw[off+1])<<16 | uint32(raw[off+2])<<8 | uint32(raw[off+3]))
}
