package tlv

import (
	"errors"
	"io"

	"github.com/ansel1/merry"
)

var ErrHeaderTruncated = errors.New("header truncated")
var ErrValueTruncated = errors.New("value truncated")
var ErrInvalidTag = errors.New("invalid tag")
var ErrInvalidLength = errors.New("invalid length")

// LengthIndefinite is the Header.Length of an indefinite length encoding.
const LengthIndefinite = -1

// maxLengthOctets bounds long form lengths so they always fit an int.
const maxLengthOctets = 4

// Header is the identifier and length octets of a TLV.
type Header struct {
	Tag         Tag
	Constructed bool
	// Length is the number of content octets, or LengthIndefinite.
	Length int
}

// Size returns the number of octets AppendHeader writes for h.
func (h Header) Size() int {
	return identifierSize(h.Tag.Number) + lengthSize(h.Length)
}

// ReadHeader reads identifier and length octets from r.  An indefinite
// length is reported as LengthIndefinite, it is up to the caller to
// reject it.
func ReadHeader(r io.ByteReader) (Header, error) {
	var h Header

	b, err := r.ReadByte()
	if err != nil {
		return h, truncated(err)
	}

	h.Tag.Class = Class(b >> 6)
	h.Constructed = b&0x20 != 0
	h.Tag.Number = uint32(b & 0x1f)

	if h.Tag.Number == 0x1f {
		// high tag number form, base 128
		var n uint64
		for i := 0; ; i++ {
			b, err = r.ReadByte()
			if err != nil {
				return h, truncated(err)
			}
			if i == 0 && b == 0x80 {
				return h, merry.Here(ErrInvalidTag).Append("tag number has leading zero octet")
			}
			n = n<<7 | uint64(b&0x7f)
			if n > 0xffffffff {
				return h, merry.Here(ErrInvalidTag).Append("tag number overflows 32 bits")
			}
			if b&0x80 == 0 {
				break
			}
		}
		h.Tag.Number = uint32(n)
	}

	b, err = r.ReadByte()
	if err != nil {
		return h, truncated(err)
	}

	switch {
	case b == 0x80:
		h.Length = LengthIndefinite
	case b == 0xff:
		return h, merry.Here(ErrInvalidLength).Append("reserved length octet 0xff")
	case b&0x80 == 0:
		h.Length = int(b)
	default:
		n := int(b & 0x7f)
		if n > maxLengthOctets {
			return h, merry.Here(ErrInvalidLength).Appendf("length uses %d octets", n)
		}
		var l uint64
		for i := 0; i < n; i++ {
			b, err = r.ReadByte()
			if err != nil {
				return h, truncated(err)
			}
			l = l<<8 | uint64(b)
		}
		if l > 0x7fffffff {
			return h, merry.Here(ErrInvalidLength).Appendf("length %d too large", l)
		}
		h.Length = int(l)
	}
	return h, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		return merry.Here(ErrHeaderTruncated)
	}
	return err
}

// AppendHeader appends the identifier and length octets of h to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = AppendIdentifier(dst, h.Tag, h.Constructed)
	return AppendLength(dst, h.Length)
}

// AppendIdentifier appends the identifier octets for tag to dst.
func AppendIdentifier(dst []byte, tag Tag, constructed bool) []byte {
	b := byte(tag.Class) << 6
	if constructed {
		b |= 0x20
	}
	if tag.Number < 0x1f {
		return append(dst, b|byte(tag.Number))
	}
	dst = append(dst, b|0x1f)
	for i := identifierSize(tag.Number) - 2; i >= 0; i-- {
		o := byte(tag.Number>>(7*uint(i))) & 0x7f
		if i > 0 {
			o |= 0x80
		}
		dst = append(dst, o)
	}
	return dst
}

// AppendLength appends definite length octets for n to dst, or the
// indefinite length octet if n is LengthIndefinite.
func AppendLength(dst []byte, n int) []byte {
	switch {
	case n == LengthIndefinite:
		return append(dst, 0x80)
	case n < 0x80:
		return append(dst, byte(n))
	}
	l := lengthSize(n) - 1
	dst = append(dst, 0x80|byte(l))
	for i := l - 1; i >= 0; i-- {
		dst = append(dst, byte(n>>(8*uint(i))))
	}
	return dst
}

func identifierSize(n uint32) int {
	if n < 0x1f {
		return 1
	}
	l := 2
	for n >= 0x80 {
		n >>= 7
		l++
	}
	return l
}

func lengthSize(n int) int {
	if n < 0x80 {
		return 1
	}
	l := 1
	for n > 0 {
		n >>= 8
		l++
	}
	return l
}
