package codec

import (
	"encoding/binary"
	"math/big"
	"strings"

	"github.com/pgwire/pgwire/internal/pgerr"
	"github.com/shopspring/decimal"
)

// numeric's binary format groups the decimal digits into base-10000 limbs
// (NBASE), matching src/backend/utils/adt/numeric.c. float64 cannot serve
// as the in-memory representation here: PostgreSQL's numeric is arbitrary
// precision, and silently rounding through a float would violate the exact
// decimal arithmetic callers reasonably expect from this type, so values
// are carried as shopspring/decimal.Decimal end to end.
const nbase = 10000

const (
	numericPos  uint16 = 0x0000
	numericNeg  uint16 = 0x4000
	numericNaN  uint16 = 0xC000
)

var numericCodec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		d, err := toDecimal(v)
		if err != nil {
			return nil, err
		}
		if format == Text {
			return []byte(d.String()), nil
		}
		return encodeNumericBinary(d), nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Text {
			d, err := decimal.NewFromString(string(raw))
			if err != nil {
				return nil, pgerr.Wrap(pgerr.KindData, err, "parsing numeric text %q", raw)
			}
			return d, nil
		}
		return decodeNumericBinary(raw)
	},
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case string:
		dec, err := decimal.NewFromString(d)
		if err != nil {
			return decimal.Decimal{}, pgerr.Wrap(pgerr.KindProgramming, err, "parsing numeric parameter %q", d)
		}
		return dec, nil
	case float64:
		return decimal.NewFromFloat(d), nil
	case int64:
		return decimal.NewFromInt(d), nil
	default:
		return decimal.Decimal{}, pgerr.New(pgerr.KindProgramming, "expected decimal.Decimal, got %T", v)
	}
}

func encodeNumericBinary(d decimal.Decimal) []byte {
	sign := numericPos
	coeff := d.Coefficient()
	if coeff.Sign() < 0 {
		sign = numericNeg
		coeff = new(big.Int).Neg(coeff)
	}
	scale := int16(-d.Exponent())
	if scale < 0 {
		scale = 0
	}

	digitsStr := coeff.String()
	// Left-pad so the string length is a multiple of 4 (one NBASE digit per
	// 4 decimal digits), counting from the units place.
	intDigits := len(digitsStr) - int(scale)
	padFront := 0
	if intDigits > 0 {
		padFront = (4 - intDigits%4) % 4
	} else {
		padFront = -intDigits % 4
		if padFront < 0 {
			padFront += 4
		}
	}
	padded := strings.Repeat("0", padFront) + digitsStr
	padBack := (4 - len(padded)%4) % 4
	padded += strings.Repeat("0", padBack)

	weight := int16((len(padded) / 4) - ((int(scale) + padBack) / 4) - 1)
	var limbs []uint16
	for i := 0; i < len(padded); i += 4 {
		var limb uint16
		for _, c := range padded[i : i+4] {
			limb = limb*10 + uint16(c-'0')
		}
		limbs = append(limbs, limb)
	}
	for len(limbs) > 1 && limbs[len(limbs)-1] == 0 {
		limbs = limbs[:len(limbs)-1]
	}

	buf := make([]byte, 8+2*len(limbs))
	binary.BigEndian.PutUint16(buf[0:], uint16(len(limbs)))
	binary.BigEndian.PutUint16(buf[2:], uint16(weight))
	binary.BigEndian.PutUint16(buf[4:], sign)
	binary.BigEndian.PutUint16(buf[6:], uint16(scale))
	for i, limb := range limbs {
		binary.BigEndian.PutUint16(buf[8+2*i:], limb)
	}
	return buf
}

func decodeNumericBinary(raw []byte) (decimal.Decimal, error) {
	if len(raw) < 8 {
		return decimal.Decimal{}, pgerr.New(pgerr.KindData, "numeric: short buffer")
	}
	ndigits := binary.BigEndian.Uint16(raw[0:])
	weight := int16(binary.BigEndian.Uint16(raw[2:]))
	sign := binary.BigEndian.Uint16(raw[4:])
	dscale := binary.BigEndian.Uint16(raw[6:])
	if sign == numericNaN {
		return decimal.Decimal{}, pgerr.New(pgerr.KindData, "numeric: NaN is not representable")
	}
	if len(raw) != 8+2*int(ndigits) {
		return decimal.Decimal{}, pgerr.New(pgerr.KindData, "numeric: length mismatch")
	}
	var digits strings.Builder
	for i := 0; i < int(ndigits); i++ {
		limb := binary.BigEndian.Uint16(raw[8+2*i:])
		digits.WriteString(padLimb(limb))
	}
	s := digits.String()
	if s == "" {
		s = "0"
	}
	coeff, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return decimal.Decimal{}, pgerr.New(pgerr.KindData, "numeric: malformed digit string %q", s)
	}

	// The digit string represents ndigits groups of 4 starting at weight
	// (i.e. value = digits * 10000^weight); normalize to the reported
	// dscale by adjusting trailing zeros / truncation via decimal's own
	// shift, since dscale may cut across an NBASE boundary.
	exp := (int(weight) + 1 - int(ndigits)) * 4
	d := decimal.NewFromBigInt(coeff, int32(exp))
	d = d.Truncate(int32(dscale))
	if sign == numericNeg {
		d = d.Neg()
	}
	return d, nil
}

func padLimb(limb uint16) string {
	s := ""
	for n := limb; ; {
		s = string(rune('0'+n%10)) + s
		n /= 10
		if n == 0 {
			break
		}
	}
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}
