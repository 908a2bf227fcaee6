package asnrt

import (
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/gemalto/asnrt/tlv"
)

// REAL contents, X.690 8.5.  Values are encoded in the canonical binary
// form: base 2, no scaling, odd mantissa.

const (
	realPlusInfinity  = 0x40
	realMinusInfinity = 0x41
	realNaN           = 0x42
	realMinusZero     = 0x43
)

func appendReal(dst []byte, f float64) []byte {
	switch {
	case math.IsInf(f, 1):
		return append(dst, realPlusInfinity)
	case math.IsInf(f, -1):
		return append(dst, realMinusInfinity)
	case math.IsNaN(f):
		return append(dst, realNaN)
	case f == 0 && math.Signbit(f):
		return append(dst, realMinusZero)
	case f == 0:
		return dst
	}
	first := byte(0x80)
	if f < 0 {
		first |= 0x40
		f = -f
	}
	frac, exp := math.Frexp(f)
	m := uint64(math.Ldexp(frac, 53))
	e := int64(exp - 53)
	for m&1 == 0 {
		m >>= 1
		e++
	}
	ex := tlv.AppendInt64(nil, e)
	if len(ex) <= 3 {
		first |= byte(len(ex) - 1)
		dst = append(dst, first)
	} else {
		dst = append(dst, first|0x03, byte(len(ex)))
	}
	dst = append(dst, ex...)
	return append(dst, new(big.Int).SetUint64(m).Bytes()...)
}

func parseReal(data []byte) (float64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	first := data[0]
	switch {
	case first&0x80 != 0:
		return parseBinaryReal(data)
	case first&0x40 == 0:
		return parseDecimalReal(data)
	}
	if len(data) != 1 {
		return 0, errorf(ErrInvalidReal, "special real value with %d octets", len(data))
	}
	switch first {
	case realPlusInfinity:
		return math.Inf(1), nil
	case realMinusInfinity:
		return math.Inf(-1), nil
	case realNaN:
		return math.NaN(), nil
	case realMinusZero:
		return math.Copysign(0, -1), nil
	}
	return 0, errorf(ErrInvalidReal, "unknown special real value %#x", first)
}

func parseBinaryReal(data []byte) (float64, error) {
	first := data[0]
	var shift int64
	switch first >> 4 & 0x03 {
	case 0:
		shift = 1
	case 1:
		shift = 3
	case 2:
		shift = 4
	default:
		return 0, errorf(ErrInvalidReal, "reserved real base")
	}
	scale := int64(first >> 2 & 0x03)
	rest := data[1:]
	n := int(first&0x03) + 1
	if n == 4 {
		if len(rest) == 0 {
			return 0, errorf(ErrInvalidReal, "missing real exponent length")
		}
		n = int(rest[0])
		rest = rest[1:]
	}
	if n == 0 || len(rest) <= n {
		return 0, errorf(ErrInvalidReal, "real exponent or mantissa truncated")
	}
	e, ok := tlv.ParseInt64(rest[:n])
	if !ok || e > math.MaxInt32 || e < math.MinInt32 {
		return 0, errorf(ErrInvalidReal, "real exponent out of range")
	}
	mant := new(big.Float).SetInt(new(big.Int).SetBytes(rest[n:]))
	mant.SetMantExp(mant, int(e*shift+scale))
	f, _ := mant.Float64()
	if first&0x40 != 0 {
		f = -f
	}
	return f, nil
}

// parseDecimalReal parses the ISO 6093 forms NR1, NR2 and NR3.
func parseDecimalReal(data []byte) (float64, error) {
	form := data[0] & 0x3f
	if form < 1 || form > 3 {
		return 0, errorf(ErrInvalidReal, "unknown decimal real form %d", form)
	}
	s := strings.TrimSpace(string(data[1:]))
	s = strings.Replace(s, ",", ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errorf(ErrInvalidReal, "decimal real %q", s)
	}
	return f, nil
}

func checkReal(t *Type, f float64) error {
	if t.FiniteReal && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return errorf(ErrInvalidReal, "%v does not allow %g", t, f)
	}
	return nil
}
