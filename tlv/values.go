package tlv

import (
	"math/big"
	"strings"

	"github.com/ansel1/merry"
)

var one = big.NewInt(1)

// AppendInt appends the minimal two's complement encoding of i to dst,
// the content octets of an INTEGER.
func AppendInt(dst []byte, i *big.Int) []byte {
	switch i.Sign() {
	case 0:
		return append(dst, 0)
	case 1:
		b := i.Bytes()
		// if the first bit is a 1, it would look like a negative
		// number, so prepend a zero
		if b[0]&0x80 != 0 {
			dst = append(dst, 0)
		}
		return append(dst, b...)
	}
	length := uint(i.BitLen()/8+1) * 8
	j := new(big.Int).Lsh(one, length)
	b := j.Add(i, j).Bytes()
	// When the most significant bit is on a byte
	// boundary, we can get some extra significant
	// bits, so strip them off when that happens.
	if len(b) >= 2 && b[0] == 0xff && b[1]&0x80 != 0 {
		b = b[1:]
	}
	return append(dst, b...)
}

// AppendInt64 is AppendInt for an int64.
func AppendInt64(dst []byte, i int64) []byte {
	n := 1
	for v := i; v > 127 || v < -128; v >>= 8 {
		n++
	}
	for j := n - 1; j >= 0; j-- {
		dst = append(dst, byte(i>>(8*uint(j))))
	}
	return dst
}

// ParseInt sets n to the big-endian two's complement value stored in data.
// If data[0]&0x80 != 0, the number is negative.  If data is empty, the
// result is 0.
func ParseInt(n *big.Int, data []byte) *big.Int {
	n.SetBytes(data)
	if len(data) > 0 && data[0]&0x80 > 0 {
		// 1 << bits - value gives the magnitude
		n.Sub(n, new(big.Int).Lsh(one, uint(len(data))*8))
	}
	return n
}

// ParseInt64 is ParseInt for values that fit an int64.  ok is false if
// data holds a larger value.
func ParseInt64(data []byte) (i int64, ok bool) {
	data = unpad(data)
	if len(data) > 8 {
		return 0, false
	}
	for j, b := range data {
		if j == 0 {
			i = int64(int8(b))
			continue
		}
		i = i<<8 | int64(b)
	}
	return i, true
}

// unpad strips redundant leading sign octets.
func unpad(data []byte) []byte {
	i := 0
	for ; i+1 < len(data); i++ {
		switch {
		case data[i] == 0xff && data[i+1]&0x80 != 0:
		case data[i] == 0x00 && data[i+1]&0x80 == 0:
		default:
			return data[i:]
		}
	}
	return data[i:]
}

// Minimal reports whether data is a minimal two's complement encoding, as
// DER requires.
func Minimal(data []byte) bool {
	return len(data) > 0 && len(unpad(data)) == len(data)
}

// AppendBase128 appends the base 128 encoding of v, most significant group
// first, with the high bit set on all but the last octet.
func AppendBase128(dst []byte, v *big.Int) []byte {
	if v.Sign() == 0 {
		return append(dst, 0)
	}
	n := (v.BitLen() + 6) / 7
	w := new(big.Int)
	for i := n - 1; i >= 0; i-- {
		w.Rsh(v, uint(7*i))
		o := byte(w.Uint64() & 0x7f)
		if i > 0 {
			o |= 0x80
		}
		dst = append(dst, o)
	}
	return dst
}

// AppendOID appends the content octets of an OBJECT IDENTIFIER, or of a
// RELATIVE-OID if relative is set.
func AppendOID(dst []byte, arcs []*big.Int, relative bool) ([]byte, error) {
	if !relative {
		if len(arcs) < 2 {
			return nil, merry.New("object identifier needs at least two arcs")
		}
		if arcs[0].Sign() < 0 || arcs[0].Cmp(big.NewInt(2)) > 0 {
			return nil, merry.Errorf("invalid first arc %v", arcs[0])
		}
		if arcs[0].Cmp(big.NewInt(2)) < 0 && (arcs[1].Sign() < 0 || arcs[1].Cmp(big.NewInt(40)) >= 0) {
			return nil, merry.Errorf("invalid second arc %v", arcs[1])
		}
		first := new(big.Int).Mul(arcs[0], big.NewInt(40))
		first.Add(first, arcs[1])
		dst = AppendBase128(dst, first)
		arcs = arcs[2:]
	}
	for _, a := range arcs {
		if a.Sign() < 0 {
			return nil, merry.Errorf("negative arc %v", a)
		}
		dst = AppendBase128(dst, a)
	}
	return dst, nil
}

// ParseOID parses the content octets of an OBJECT IDENTIFIER, or of a
// RELATIVE-OID if relative is set.
func ParseOID(data []byte, relative bool) ([]*big.Int, error) {
	if len(data) == 0 {
		if relative {
			return nil, nil
		}
		return nil, merry.New("empty object identifier")
	}
	var arcs []*big.Int
	v := new(big.Int)
	start := true
	for i, b := range data {
		if start && b == 0x80 {
			return nil, merry.Errorf("subidentifier at offset %d has a leading zero octet", i)
		}
		start = false
		v.Lsh(v, 7)
		v.Or(v, big.NewInt(int64(b&0x7f)))
		if b&0x80 != 0 {
			continue
		}
		if arcs == nil && !relative {
			// the first subidentifier packs the first two arcs
			switch {
			case v.Cmp(big.NewInt(40)) < 0:
				arcs = append(arcs, big.NewInt(0), new(big.Int).Set(v))
			case v.Cmp(big.NewInt(80)) < 0:
				arcs = append(arcs, big.NewInt(1), new(big.Int).Sub(v, big.NewInt(40)))
			default:
				arcs = append(arcs, big.NewInt(2), new(big.Int).Sub(v, big.NewInt(80)))
			}
		} else {
			arcs = append(arcs, new(big.Int).Set(v))
		}
		v = new(big.Int)
		start = true
	}
	if !start {
		return nil, merry.New("object identifier truncated")
	}
	return arcs, nil
}

// FormatOID renders arcs in dotted notation.
func FormatOID(arcs []*big.Int) string {
	s := make([]string, len(arcs))
	for i, a := range arcs {
		s[i] = a.String()
	}
	return strings.Join(s, ".")
}
