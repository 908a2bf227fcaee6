package asnrt

import (
	"errors"
	"io"
)

const defaultPage = 4096

// Buffer is a cursor over encoded data.  Positions, limits and capacities
// are counted in the buffer's unit: bytes for BER, CER and DER, bits for
// UPER and APER.  At all times 0 <= Position() <= Limit() <= Capacity().
//
// A Buffer is used by one encode or decode call at a time.
type Buffer struct {
	rules    Rules
	data     []byte
	pos      int
	limit    int
	capacity int
	expand   bool

	// stream source, paged in on demand
	r    io.Reader
	page int

	// stream sink, written whenever a top level encode completes
	w     io.Writer
	depth int
}

// Wrap returns a buffer for decoding data.  The buffer aliases data, which
// must not be modified while the buffer is in use.
func Wrap(data []byte, rules Rules) (*Buffer, error) {
	if !rules.Valid() {
		return nil, errorf(ErrInvalidEncodeRule, "%v", rules)
	}
	b := &Buffer{rules: rules, data: data}
	b.capacity = len(data) * b.unit()
	b.limit = b.capacity
	return b, nil
}

// Allocate returns a buffer for encoding, with room for n bytes.  Unless
// autoExpand is set, writing more than that fails with ErrBufferOverflow.
func Allocate(n int, autoExpand bool, rules Rules) (*Buffer, error) {
	if !rules.Valid() {
		return nil, errorf(ErrInvalidEncodeRule, "%v", rules)
	}
	if n < 0 {
		return nil, errorf(ErrInvalidSize, "negative buffer size %d", n)
	}
	b := &Buffer{rules: rules, data: make([]byte, n), expand: autoExpand}
	b.capacity = n * b.unit()
	b.limit = b.capacity
	return b, nil
}

// NewInputBuffer returns a buffer for decoding data read from r.  Data is
// read on demand, in pages of up to n bytes, and reads block until r
// delivers.
func NewInputBuffer(r io.Reader, n int, rules Rules) (*Buffer, error) {
	if !rules.Valid() {
		return nil, errorf(ErrInvalidEncodeRule, "%v", rules)
	}
	if r == nil {
		return nil, errorf(ErrNullPointer, "nil reader")
	}
	if n <= 0 {
		n = defaultPage
	}
	return &Buffer{rules: rules, r: r, page: n}, nil
}

// NewOutputBuffer returns an auto expanding buffer for encoding, which
// writes its content to w each time a top level Encode completes, and on
// Flush.  n is the initial size in bytes.
func NewOutputBuffer(w io.Writer, n int, rules Rules) (*Buffer, error) {
	if w == nil {
		return nil, errorf(ErrNullPointer, "nil writer")
	}
	if n <= 0 {
		n = defaultPage
	}
	b, err := Allocate(n, true, rules)
	if err != nil {
		return nil, err
	}
	b.w = w
	return b, nil
}

func (b *Buffer) Rules() Rules {
	return b.rules
}

func (b *Buffer) Position() int {
	return b.pos
}

func (b *Buffer) Limit() int {
	return b.limit
}

func (b *Buffer) Capacity() int {
	return b.capacity
}

// Remaining is the number of units between the position and the limit.
// Stream backed buffers only count what was read so far.
func (b *Buffer) Remaining() int {
	return b.limit - b.pos
}

// SetPosition moves the cursor, within [0, Limit()].
func (b *Buffer) SetPosition(pos int) error {
	if pos < 0 || pos > b.limit {
		return errorf(ErrBufferUnderflow, "position %d outside [0, %d]", pos, b.limit)
	}
	b.pos = pos
	return nil
}

// Bytes returns the content: the octets before the position, a partial
// last octet of a packed buffer included.  The slice aliases the buffer and
// is only valid until the next write.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.octets()]
}

// Reset rewinds the buffer so it can be reused for another encode.
func (b *Buffer) Reset() {
	b.pos = 0
	b.depth = 0
}

// Release drops the buffer's storage.  The buffer is empty afterwards.
func (b *Buffer) Release() {
	b.data = nil
	b.pos, b.limit, b.capacity = 0, 0, 0
	b.r, b.w = nil, nil
}

// Flush writes the complete octets of the content to the buffer's stream,
// and removes them from the buffer.  It does nothing for buffers without a
// stream, or while an encode is in progress.
func (b *Buffer) Flush() error {
	if b.w == nil || b.depth > 0 {
		return nil
	}
	n := b.pos / b.unit()
	if n == 0 {
		return nil
	}
	if _, err := b.w.Write(b.data[:n]); err != nil {
		return classify(err, ErrIO)
	}
	// keep a partial last octet
	rest := copy(b.data, b.data[n:b.octets()])
	for i := rest; i < n+rest && i < len(b.data); i++ {
		b.data[i] = 0
	}
	b.pos -= n * b.unit()
	return nil
}

func (b *Buffer) unit() int {
	if b.rules.Packed() {
		return 8
	}
	return 1
}

func (b *Buffer) unitName() string {
	if b.rules.Packed() {
		return "bits"
	}
	return "bytes"
}

func (b *Buffer) octets() int {
	return (b.pos + b.unit() - 1) / b.unit()
}

// reserve makes room for writing n units.
func (b *Buffer) reserve(n int) error {
	need := b.pos + n
	if need <= b.limit {
		return nil
	}
	if !b.expand {
		return errorf(ErrBufferOverflow, "writing %d %s at %d exceeds capacity %d", n, b.unitName(), b.pos, b.capacity)
	}
	size := (need + b.unit() - 1) / b.unit()
	grow := len(b.data)
	if grow < size-len(b.data) {
		grow = size - len(b.data)
	}
	b.data = append(b.data, make([]byte, grow)...)
	b.capacity = len(b.data) * b.unit()
	b.limit = b.capacity
	return nil
}

// fill makes n units available for reading, paging them in from the
// stream if necessary.
func (b *Buffer) fill(n int) error {
	need := b.pos + n
	if need <= b.limit {
		return nil
	}
	if b.r != nil {
		// page in at most a page per read, so storage only grows with data
		// the stream actually delivered
		want := (need + b.unit() - 1) / b.unit()
		for len(b.data) < want {
			start := len(b.data)
			least := want - start
			if least > b.page {
				least = b.page
			}
			b.data = append(b.data, make([]byte, b.page)...)
			m, err := io.ReadAtLeast(b.r, b.data[start:], least)
			b.data = b.data[:start+m]
			b.capacity = len(b.data) * b.unit()
			b.limit = b.capacity
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					break
				}
				return classify(err, ErrIO)
			}
		}
		if need <= b.limit {
			return nil
		}
	}
	return errorf(ErrBufferUnderflow, "reading %d %s at %d exceeds limit %d", n, b.unitName(), b.pos, b.limit)
}

// ReadByte reads one octet.  Packed buffers read it from the next 8 bits,
// aligned or not.
func (b *Buffer) ReadByte() (byte, error) {
	if b.rules.Packed() {
		v, err := b.ReadBits(8)
		return byte(v), err
	}
	if err := b.fill(1); err != nil {
		return 0, err
	}
	c := b.data[b.pos]
	b.pos++
	return c, nil
}

// UnreadByte steps back over the last octet read.
func (b *Buffer) UnreadByte() error {
	n := b.unit()
	if b.pos < n {
		return errorf(ErrBufferUnderflow, "no octet to unread at %d", b.pos)
	}
	b.pos -= n
	return nil
}

// Read implements io.Reader.  It returns io.EOF at the limit of the
// buffer.
func (b *Buffer) Read(p []byte) (int, error) {
	avail := b.Remaining() / b.unit()
	if avail == 0 && b.r != nil && len(p) > 0 {
		if b.fill(b.unit()) == nil {
			avail = b.Remaining() / b.unit()
		}
	}
	if avail == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	if len(p) > avail {
		p = p[:avail]
	}
	q, err := b.ReadOctets(len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, q), nil
}

// WriteByte writes one octet.
func (b *Buffer) WriteByte(c byte) error {
	if b.rules.Packed() {
		return b.WriteBits(uint64(c), 8)
	}
	if err := b.reserve(1); err != nil {
		return err
	}
	b.data[b.pos] = c
	b.pos++
	return nil
}

// Write writes p, implementing io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.rules.Packed() && b.pos%8 != 0 {
		for i, c := range p {
			if err := b.WriteBits(uint64(c), 8); err != nil {
				return i, err
			}
		}
		return len(p), nil
	}
	if err := b.reserve(len(p) * b.unit()); err != nil {
		return 0, err
	}
	copy(b.data[b.pos/b.unit():], p)
	b.pos += len(p) * b.unit()
	return len(p), nil
}

// WriteOctets writes p, at any bit position of a packed buffer.
func (b *Buffer) WriteOctets(p []byte) error {
	_, err := b.Write(p)
	return err
}

// ReadOctets reads n octets.  When the position is octet aligned the
// result aliases the buffer, callers which keep it must copy it.
func (b *Buffer) ReadOctets(n int) ([]byte, error) {
	if n < 0 {
		return nil, errorf(ErrInvalidLength, "negative length %d", n)
	}
	if err := b.fill(n * b.unit()); err != nil {
		return nil, err
	}
	if b.pos%8 == 0 || !b.rules.Packed() {
		start := b.pos / b.unit()
		b.pos += n * b.unit()
		return b.data[start : start+n], nil
	}
	out := make([]byte, n)
	for i := range out {
		v, err := b.ReadBits(8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// Skip advances the position by n units.
func (b *Buffer) Skip(n int) error {
	if err := b.fill(n); err != nil {
		return err
	}
	b.pos += n
	return nil
}

// WriteBits writes the low n bits of v, most significant first.  Only
// packed buffers support bit access.
func (b *Buffer) WriteBits(v uint64, n int) error {
	if !b.rules.Packed() {
		return errorf(ErrInvalidEncodeRule, "bit access on a %v buffer", b.rules)
	}
	if n < 0 || n > 64 {
		return errorf(ErrInvalidLength, "cannot write %d bits", n)
	}
	if err := b.reserve(n); err != nil {
		return err
	}
	for i := n - 1; i >= 0; i-- {
		mask := byte(0x80) >> uint(b.pos%8)
		if v>>uint(i)&1 != 0 {
			b.data[b.pos/8] |= mask
		} else {
			b.data[b.pos/8] &^= mask
		}
		b.pos++
	}
	return nil
}

// ReadBits reads n bits, most significant first.
func (b *Buffer) ReadBits(n int) (uint64, error) {
	if !b.rules.Packed() {
		return 0, errorf(ErrInvalidEncodeRule, "bit access on a %v buffer", b.rules)
	}
	if n < 0 || n > 64 {
		return 0, errorf(ErrInvalidLength, "cannot read %d bits", n)
	}
	if err := b.fill(n); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < n; i++ {
		bit := b.data[b.pos/8] >> uint(7-b.pos%8) & 1
		v = v<<1 | uint64(bit)
		b.pos++
	}
	return v, nil
}

// Pad writes zero bits up to the next octet boundary.
func (b *Buffer) Pad() error {
	if !b.rules.Packed() || b.pos%8 == 0 {
		return nil
	}
	return b.WriteBits(0, 8-b.pos%8)
}

// Align skips bits up to the next octet boundary.
func (b *Buffer) Align() error {
	if !b.rules.Packed() || b.pos%8 == 0 {
		return nil
	}
	return b.Skip(8 - b.pos%8)
}

// insert places p at byte offset at, shifting what follows.  Used to
// backpatch headers once the content length is known.
func (b *Buffer) insert(at int, p []byte) error {
	if err := b.reserve(len(p)); err != nil {
		return err
	}
	copy(b.data[at+len(p):], b.data[at:b.pos])
	copy(b.data[at:], p)
	b.pos += len(p)
	return nil
}
