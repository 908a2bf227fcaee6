package asnrt

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/gemalto/asnrt/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// packed runs fn on a fresh packed buffer and returns the padded result.
func packed(t *testing.T, rules Rules, fn func(b *Buffer) error) []byte {
	t.Helper()
	b, err := Allocate(4, true, rules)
	require.NoError(t, err)
	require.NoError(t, fn(b))
	require.NoError(t, b.Pad())
	return b.Bytes()
}

func TestPERInteger(t *testing.T) {
	ext := Between(0, 7)
	ext.Extensible = true

	tests := []struct {
		name  string
		rules Rules
		r     Range
		v     int64
		exp   string
	}{
		{"constrained 3 bits", UPER, Between(0, 7), 5, "a0"},
		{"constrained offset", UPER, Between(-4, 3), -4, "00"},
		{"single value", UPER, Fixed(42), 42, "00"},
		{"aligned small range", APER, Between(0, 7), 5, "a0"},
		{"aligned one octet", APER, Between(0, 255), 3, "03"},
		{"aligned two octets", APER, Between(0, 65535), 256, "0100"},
		{"aligned large range", APER, Between(0, 1<<20), 256, "400100"},
		{"unaligned large range", UPER, Between(0, 65535), 256, "0100"},
		{"semi constrained", UPER, AtLeast(0), 128, "0180"},
		{"semi constrained offset", APER, AtLeast(-1), 127, "0180"},
		{"unconstrained", UPER, Range{}, 300, "02012c"},
		{"unconstrained negative", APER, Range{}, -1, "01ff"},
		{"extensible root", UPER, ext, 5, "50"},
		{"extensible outside root", UPER, ext, 8, "808400"},
		{"extensible outside root aligned", APER, ext, 8, "800108"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := packed(t, tc.rules, func(b *Buffer) error {
				return b.writeInteger(big.NewInt(tc.v), tc.r)
			})
			assert.Equal(t, tlv.Hex2bytes(tc.exp), out)

			b, err := Wrap(out, tc.rules)
			require.NoError(t, err)
			v, err := b.readInteger(tc.r)
			require.NoError(t, err)
			assert.Equal(t, tc.v, v.Int64())
		})
	}
}

func TestPERIntegerErrors(t *testing.T) {
	b, err := Allocate(4, true, UPER)
	require.NoError(t, err)
	assert.True(t, Is(b.writeInteger(big.NewInt(9), Between(0, 7)), ErrInvalidInteger))

	// offset 6 in a 0..4 range
	b, err = Wrap([]byte{0xc0}, UPER)
	require.NoError(t, err)
	_, err = b.readInteger(Between(0, 4))
	assert.True(t, Is(err, ErrInvalidInteger))

	b, err = Wrap([]byte{0x00}, UPER)
	require.NoError(t, err)
	_, err = b.readInteger(Range{})
	assert.True(t, Is(err, ErrInvalidInteger))

	b, err = Wrap(nil, UPER)
	require.NoError(t, err)
	_, err = b.readInteger(Between(0, 7))
	assert.True(t, Is(err, ErrBufferUnderflow))
}

func TestPERNormallySmall(t *testing.T) {
	tests := []struct {
		v   uint64
		exp string
	}{
		{0, "00"},
		{5, "0a"},
		{63, "7e"},
		{64, "80a000"},
	}
	for _, tc := range tests {
		out := packed(t, UPER, func(b *Buffer) error {
			return b.writeNormallySmall(tc.v)
		})
		assert.Equal(t, tlv.Hex2bytes(tc.exp), out, "%d", tc.v)

		b, err := Wrap(out, UPER)
		require.NoError(t, err)
		v, err := b.readNormallySmall()
		require.NoError(t, err)
		assert.Equal(t, tc.v, v)
	}
}

func TestPERLengths(t *testing.T) {
	tests := []struct {
		name string
		n    int
		head string
	}{
		{"short", 5, "05"},
		{"one octet max", 127, "7f"},
		{"two octets", 128, "8080"},
		{"two octets max", 16383, "bfff"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := bytes.Repeat([]byte{0x5a}, tc.n)
			out := packed(t, APER, func(b *Buffer) error {
				return b.writeOctetChunks(p)
			})
			head := tlv.Hex2bytes(tc.head)
			assert.Equal(t, head, out[:len(head)])
			assert.Len(t, out, len(head)+tc.n)

			b, err := Wrap(out, APER)
			require.NoError(t, err)
			q, err := b.readOctetChunks()
			require.NoError(t, err)
			assert.Equal(t, p, q)
		})
	}
}

func TestPERFragments(t *testing.T) {
	n := 2*fragment + 3
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	out := packed(t, UPER, func(b *Buffer) error {
		return b.writeOctetChunks(p)
	})
	// one fragment of 2 * 16K, then the 3 octet remainder
	require.Len(t, out, 1+2*fragment+1+3)
	assert.Equal(t, byte(0xc2), out[0])
	assert.Equal(t, byte(0x03), out[1+2*fragment])

	b, err := Wrap(out, UPER)
	require.NoError(t, err)
	q, err := b.readOctetChunks()
	require.NoError(t, err)
	assert.Equal(t, p, q)

	// exact multiples end with an empty fragment
	p = make([]byte, fragment)
	out = packed(t, UPER, func(b *Buffer) error {
		return b.writeOctetChunks(p)
	})
	require.Len(t, out, 1+fragment+1)
	assert.Equal(t, byte(0xc1), out[0])
	assert.Equal(t, byte(0x00), out[len(out)-1])

	b, err = Wrap([]byte{0xc7}, UPER)
	require.NoError(t, err)
	_, err = b.readOctetChunks()
	assert.True(t, Is(err, ErrInvalidLength))
}

func TestPERSized(t *testing.T) {
	ext := Between(1, 4)
	ext.Extensible = true

	tests := []struct {
		name  string
		r     Range
		count int
		exp   string
	}{
		{"fixed", Fixed(3), 3, ""},
		{"constrained", Between(1, 4), 3, "80"},
		{"extensible root", ext, 3, "40"},
		{"extensible outside root", ext, 5, "8280"},
		{"unconstrained", Range{}, 3, "03"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Allocate(4, true, UPER)
			require.NoError(t, err)
			var put int
			err = b.writeSized(tc.count, tc.r, func(from, n int) error {
				put += n
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tc.count, put)
			require.NoError(t, b.Pad())
			assert.Equal(t, tlv.Hex2bytes(tc.exp), b.Bytes())

			r, err := Wrap(b.Bytes(), UPER)
			require.NoError(t, err)
			n, err := r.readSized(tc.r, func(int) error { return nil })
			require.NoError(t, err)
			assert.Equal(t, tc.count, n)
		})
	}

	b, err := Allocate(4, true, UPER)
	require.NoError(t, err)
	err = b.writeSized(5, Between(1, 4), func(int, int) error { return nil })
	assert.True(t, Is(err, ErrInvalidSize))
}

func TestPERValues(t *testing.T) {
	label := "hi"
	tests := []struct {
		name  string
		rules Rules
		t     *Type
		v     interface{}
		exp   string
	}{
		{"boolean", UPER, Basic(KindBoolean), true, "80"},
		{"ia5 unaligned", UPER, Basic(KindIA5String), "Jo", "0295bc"},
		{"ia5 aligned", APER, Basic(KindIA5String), "Jo", "024a6f"},
		{"numeric unaligned", UPER, Basic(KindNumericString), "123", "032340"},
		{"numeric aligned", APER, Basic(KindNumericString), "123", "032340"},
		{"fixed size printable", UPER, &Type{Kind: KindPrintableString, Size: Fixed(2)}, "Hi", "91a4"},
		{"short fixed size unaligned chars", APER, &Type{Kind: KindPrintableString, Size: Fixed(2)}, "Hi", "4869"},
		{"enumerated root", UPER, colorType(), "blue", "40"},
		{"enumerated extension", UPER, colorType(), "violet", "80"},
		{"choice", UPER, shapeType(), shape{Label: &label}, "81343480"},
		{"choice aligned", APER, shapeType(), shape{Label: &label}, "80026869"},
		{"sequence", UPER, recordType(), record{Serial: 5, Name: "ab", Active: true}, "004140985880"},
		{"sequence aligned", APER, recordType(), record{Serial: 5, Name: "ab", Active: true}, "000105026162"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Marshal(tc.rules, tc.t, tc.v)
			require.NoError(t, err)
			assert.Equal(t, tlv.Hex2bytes(tc.exp), b)
		})
	}
}

func TestPERDecodeErrors(t *testing.T) {
	var s string
	err := Unmarshal(UPER, tlv.Hex2bytes("7f"), Basic(KindIA5String), &s)
	assert.True(t, Is(err, ErrBufferUnderflow), "%+v", err)

	// extension item 1 of a type with a single extension item
	err = Unmarshal(UPER, tlv.Hex2bytes("81"), colorType(), &s)
	assert.True(t, Is(err, ErrInvalidEnum), "%+v", err)

	// numeric strings only hold digits and spaces
	_, err = Marshal(UPER, Basic(KindNumericString), "12a")
	assert.True(t, Is(err, ErrNotPermittedAlphabet), "%+v", err)
}

// Flag ::= SEQUENCE { a BOOLEAN, ... }
func flagType() *Type {
	return &Type{
		Name:       "Flag",
		Kind:       KindSequence,
		Extensible: true,
		Components: []*Component{{Name: "a", Type: Basic(KindBoolean)}},
	}
}

type flag struct {
	A bool
}

func TestPERExtensionBitmap(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
		data  string
		err   error
	}{
		// 2^56 additions announced in the large form of the count
		{name: "huge count", rules: UPER, data: "e0ffffffffffffffe0", err: ErrInvalidLength},
		// 65537 additions, one over the limit
		{name: "count over limit", rules: UPER, data: "e060200000", err: ErrInvalidLength},
		// 21 additions announced, 7 bits left
		{name: "truncated bitmap", rules: UPER, data: "ca00", err: ErrInvalidLength},
		{name: "truncated bitmap aligned", rules: APER, data: "ca00", err: ErrInvalidLength},
		// one unknown addition, skipped
		{name: "unknown addition", rules: UPER, data: "c0404000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var v flag
			var err error
			require.NotPanics(t, func() {
				err = Unmarshal(tc.rules, tlv.Hex2bytes(tc.data), flagType(), &v)
			})
			if tc.err != nil {
				assert.True(t, Is(err, tc.err), "%+v", err)
				return
			}
			require.NoError(t, err)
			assert.True(t, v.A)
		})
	}
}
