package asnrt

import (
	"math/big"

	"github.com/gemalto/asnrt/tlv"
)

// Packed encoding primitives, X.691 clauses 10 and 11.  They operate on
// packed buffers, the aligned variant pads where the standard requires
// octet alignment.

// fragment is the unit of fragmented length determinants, 16K.
const fragment = 16384

// maxExtensionAdditions bounds the extension bitmap of a SEQUENCE or SET.
const maxExtensionAdditions = 65536

func (b *Buffer) alignWrite() error {
	if b.rules.Aligned() {
		return b.Pad()
	}
	return nil
}

func (b *Buffer) alignRead() error {
	if b.rules.Aligned() {
		return b.Align()
	}
	return nil
}

func (b *Buffer) writeBool(v bool) error {
	if v {
		return b.WriteBits(1, 1)
	}
	return b.WriteBits(0, 1)
}

func (b *Buffer) readBool() (bool, error) {
	v, err := b.ReadBits(1)
	return v == 1, err
}

// writeBigBits writes the low n bits of the non-negative v.
func (b *Buffer) writeBigBits(v *big.Int, n int) error {
	if n <= 64 && v.IsUint64() {
		return b.WriteBits(v.Uint64(), n)
	}
	for i := n - 1; i >= 0; i-- {
		if err := b.WriteBits(uint64(v.Bit(i)), 1); err != nil {
			return err
		}
	}
	return nil
}

func (b *Buffer) readBigBits(n int) (*big.Int, error) {
	if n <= 64 {
		v, err := b.ReadBits(n)
		return new(big.Int).SetUint64(v), err
	}
	v := new(big.Int)
	for i := 0; i < n; i++ {
		bit, err := b.ReadBits(1)
		if err != nil {
			return nil, err
		}
		v.Lsh(v, 1)
		v.SetBit(v, 0, uint(bit))
	}
	return v, nil
}

// writeConstrainedWhole encodes lb <= v <= ub, 10.5.
func (b *Buffer) writeConstrainedWhole(v, lb, ub *big.Int) error {
	span := new(big.Int).Sub(ub, lb) // range - 1
	off := new(big.Int).Sub(v, lb)
	if span.Sign() == 0 {
		return nil
	}
	if !b.rules.Aligned() || span.Cmp(big.NewInt(255)) < 0 {
		return b.writeBigBits(off, span.BitLen())
	}
	switch {
	case span.Cmp(big.NewInt(255)) == 0:
		if err := b.alignWrite(); err != nil {
			return err
		}
		return b.writeBigBits(off, 8)
	case span.Cmp(big.NewInt(65535)) <= 0:
		if err := b.alignWrite(); err != nil {
			return err
		}
		return b.writeBigBits(off, 16)
	}
	// indefinite length case: octet count, then the octets
	maxOctets := (span.BitLen() + 7) / 8
	n := (off.BitLen() + 7) / 8
	if n == 0 {
		n = 1
	}
	if err := b.writeConstrainedInt(int64(n), 1, int64(maxOctets)); err != nil {
		return err
	}
	if err := b.alignWrite(); err != nil {
		return err
	}
	return b.writeBigBits(off, n*8)
}

func (b *Buffer) readConstrainedWhole(lb, ub *big.Int) (*big.Int, error) {
	span := new(big.Int).Sub(ub, lb)
	if span.Sign() == 0 {
		return new(big.Int).Set(lb), nil
	}
	var off *big.Int
	var err error
	switch {
	case !b.rules.Aligned() || span.Cmp(big.NewInt(255)) < 0:
		off, err = b.readBigBits(span.BitLen())
	case span.Cmp(big.NewInt(255)) == 0:
		if err = b.alignRead(); err == nil {
			off, err = b.readBigBits(8)
		}
	case span.Cmp(big.NewInt(65535)) <= 0:
		if err = b.alignRead(); err == nil {
			off, err = b.readBigBits(16)
		}
	default:
		maxOctets := (span.BitLen() + 7) / 8
		var n int64
		if n, err = b.readConstrainedInt(1, int64(maxOctets)); err == nil {
			if err = b.alignRead(); err == nil {
				off, err = b.readBigBits(int(n) * 8)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if off.Cmp(span) > 0 {
		return nil, errorf(ErrInvalidInteger, "offset %v exceeds range %v..%v", off, lb, ub)
	}
	return off.Add(off, lb), nil
}

func (b *Buffer) writeConstrainedInt(v, lb, ub int64) error {
	return b.writeConstrainedWhole(big.NewInt(v), big.NewInt(lb), big.NewInt(ub))
}

func (b *Buffer) readConstrainedInt(lb, ub int64) (int64, error) {
	v, err := b.readConstrainedWhole(big.NewInt(lb), big.NewInt(ub))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// writeNormallySmall encodes a normally small non-negative whole number,
// 10.6.
func (b *Buffer) writeNormallySmall(n uint64) error {
	if n < 64 {
		return b.WriteBits(n, 7)
	}
	if err := b.WriteBits(1, 1); err != nil {
		return err
	}
	return b.writeSemiConstrained(new(big.Int).SetUint64(n), new(big.Int))
}

func (b *Buffer) readNormallySmall() (uint64, error) {
	large, err := b.readBool()
	if err != nil {
		return 0, err
	}
	if !large {
		return b.ReadBits(6)
	}
	v, err := b.readSemiConstrained(new(big.Int))
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, errorf(ErrInvalidIndex, "normally small number %v too large", v)
	}
	return v.Uint64(), nil
}

// writeSemiConstrained encodes v >= lb as the minimal octets of v - lb
// with a length determinant, 10.7.
func (b *Buffer) writeSemiConstrained(v, lb *big.Int) error {
	octets := new(big.Int).Sub(v, lb).Bytes()
	if len(octets) == 0 {
		octets = []byte{0}
	}
	return b.writeOctetChunks(octets)
}

func (b *Buffer) readSemiConstrained(lb *big.Int) (*big.Int, error) {
	octets, err := b.readOctetChunks()
	if err != nil {
		return nil, err
	}
	if len(octets) == 0 {
		return nil, errorf(ErrInvalidInteger, "empty semi-constrained whole number")
	}
	v := new(big.Int).SetBytes(octets)
	return v.Add(v, lb), nil
}

// writeUnconstrainedInt encodes v as minimal two's complement octets with a
// length determinant, 10.8.
func (b *Buffer) writeUnconstrainedInt(v *big.Int) error {
	return b.writeOctetChunks(tlv.AppendInt(nil, v))
}

func (b *Buffer) readUnconstrainedInt() (*big.Int, error) {
	octets, err := b.readOctetChunks()
	if err != nil {
		return nil, err
	}
	if len(octets) == 0 {
		return nil, errorf(ErrInvalidInteger, "empty unconstrained whole number")
	}
	return tlv.ParseInt(new(big.Int), octets), nil
}

// writeInteger encodes an INTEGER value under constraint r, clause 13.
func (b *Buffer) writeInteger(v *big.Int, r Range) error {
	if r.Extensible {
		in := r.ContainsBig(v)
		if err := b.writeBool(!in); err != nil {
			return err
		}
		if !in {
			return b.writeUnconstrainedInt(v)
		}
	} else if !r.ContainsBig(v) {
		return errorf(ErrInvalidInteger, "%v not in %v", v, r)
	}
	switch {
	case r.Constrained():
		return b.writeConstrainedWhole(v, big.NewInt(r.Lower), big.NewInt(r.Upper))
	case r.HasLower:
		return b.writeSemiConstrained(v, big.NewInt(r.Lower))
	}
	return b.writeUnconstrainedInt(v)
}

func (b *Buffer) readInteger(r Range) (*big.Int, error) {
	if r.Extensible {
		ext, err := b.readBool()
		if err != nil {
			return nil, err
		}
		if ext {
			return b.readUnconstrainedInt()
		}
	}
	var v *big.Int
	var err error
	switch {
	case r.Constrained():
		v, err = b.readConstrainedWhole(big.NewInt(r.Lower), big.NewInt(r.Upper))
	case r.HasLower:
		v, err = b.readSemiConstrained(big.NewInt(r.Lower))
	default:
		v, err = b.readUnconstrainedInt()
	}
	if err != nil {
		return nil, err
	}
	if !r.ContainsBig(v) {
		return nil, errorf(ErrInvalidInteger, "%v not in %v", v, r)
	}
	return v, nil
}

// writeUnconstrainedLength writes a length determinant below 16K,
// 10.9.3.6 and 10.9.3.7.
func (b *Buffer) writeUnconstrainedLength(n int) error {
	if err := b.alignWrite(); err != nil {
		return err
	}
	if n < 128 {
		return b.WriteBits(uint64(n), 8)
	}
	return b.WriteBits(uint64(0x8000|n), 16)
}

// writeChunks writes count units preceded by length determinants,
// fragmenting counts of 16K and more, 10.9.3.8.  put writes the units
// [from, from+n).
func (b *Buffer) writeChunks(count int, put func(from, n int) error) error {
	from := 0
	for {
		rest := count - from
		if rest < fragment {
			if err := b.writeUnconstrainedLength(rest); err != nil {
				return err
			}
			return put(from, rest)
		}
		m := rest / fragment
		if m > 4 {
			m = 4
		}
		if err := b.alignWrite(); err != nil {
			return err
		}
		if err := b.WriteBits(uint64(0xc0|m), 8); err != nil {
			return err
		}
		if err := put(from, m*fragment); err != nil {
			return err
		}
		from += m * fragment
	}
}

// readChunks reads length determinants and calls get for each run of
// units, until a run below 16K.  It returns the total count.
func (b *Buffer) readChunks(get func(n int) error) (int, error) {
	total := 0
	for {
		if err := b.alignRead(); err != nil {
			return 0, err
		}
		first, err := b.ReadBits(8)
		if err != nil {
			return 0, err
		}
		var n int
		last := true
		switch {
		case first&0x80 == 0:
			n = int(first)
		case first&0x40 == 0:
			second, err := b.ReadBits(8)
			if err != nil {
				return 0, err
			}
			n = int(first&0x3f)<<8 | int(second)
		default:
			m := int(first & 0x3f)
			if m < 1 || m > 4 {
				return 0, errorf(ErrInvalidLength, "invalid fragment multiplier %d", m)
			}
			n = m * fragment
			last = false
		}
		if err := get(n); err != nil {
			return 0, err
		}
		total += n
		if last {
			return total, nil
		}
	}
}

func (b *Buffer) writeOctetChunks(octets []byte) error {
	return b.writeChunks(len(octets), func(from, n int) error {
		if n == 0 {
			return nil
		}
		_, err := b.Write(octets[from : from+n])
		return err
	})
}

func (b *Buffer) readOctetChunks() ([]byte, error) {
	var out []byte
	_, err := b.readChunks(func(n int) error {
		p, err := b.ReadOctets(n)
		out = append(out, p...)
		return err
	})
	return out, err
}

// writeSized writes a length determinant for count items under size
// constraint r, then calls put for the items, clause 11.9.4.
func (b *Buffer) writeSized(count int, r Range, put func(from, n int) error) error {
	if r.Extensible {
		in := r.Contains(int64(count))
		if err := b.writeBool(!in); err != nil {
			return err
		}
		if !in {
			return b.writeChunks(count, put)
		}
	} else if !r.Contains(int64(count)) {
		return errorf(ErrInvalidSize, "size %d not in %v", count, r)
	}
	if r.Constrained() && r.Upper < 65536 {
		if !r.IsFixed() {
			if err := b.writeConstrainedInt(int64(count), r.Lower, r.Upper); err != nil {
				return err
			}
		}
		return put(0, count)
	}
	return b.writeChunks(count, put)
}

func (b *Buffer) readSized(r Range, get func(n int) error) (int, error) {
	ext := false
	if r.Extensible {
		var err error
		if ext, err = b.readBool(); err != nil {
			return 0, err
		}
	}
	if !ext && r.Constrained() && r.Upper < 65536 {
		n := r.Lower
		if !r.IsFixed() {
			var err error
			if n, err = b.readConstrainedInt(r.Lower, r.Upper); err != nil {
				return 0, err
			}
		}
		return int(n), get(int(n))
	}
	n, err := b.readChunks(get)
	if err != nil {
		return 0, err
	}
	if !ext && !r.Contains(int64(n)) {
		return 0, errorf(ErrInvalidSize, "size %d not in %v", n, r)
	}
	return n, nil
}
