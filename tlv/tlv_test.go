package tlv

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ansel1/merry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		h    Header
	}{
		{"integer", "0201", Header{Tag: Universal(UniversalInteger), Length: 1}},
		{"sequence", "3003", Header{Tag: Universal(UniversalSequence), Constructed: true, Length: 3}},
		{"context", "a105", Header{Tag: Context(1), Constructed: true, Length: 5}},
		{"application", "4300", Header{Tag: Tag{Class: ClassApplication, Number: 3}}},
		{"private", "c27f", Header{Tag: Tag{Class: ClassPrivate, Number: 2}, Length: 127}},
		{"high tag", "9f2001", Header{Tag: Context(32), Length: 1}},
		{"two octet tag", "bf814800", Header{Tag: Context(200), Constructed: true}},
		{"long length", "048180", Header{Tag: Universal(UniversalOctetString), Length: 128}},
		{"two octet length", "04820100", Header{Tag: Universal(UniversalOctetString), Length: 256}},
		{"indefinite", "3080", Header{Tag: Universal(UniversalSequence), Constructed: true, Length: LengthIndefinite}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := Hex2bytes(tc.in)
			h, err := ReadHeader(bytes.NewReader(b))
			require.NoError(t, err)
			assert.Equal(t, tc.h, h)

			assert.Equal(t, b, AppendHeader(nil, h))
			assert.Equal(t, len(b), h.Size())
		})
	}
}

func TestReadHeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		err  error
	}{
		{"empty", "", ErrHeaderTruncated},
		{"no length", "02", ErrHeaderTruncated},
		{"truncated high tag", "1f81", ErrHeaderTruncated},
		{"leading zero tag", "1f8001", ErrInvalidTag},
		{"tag overflow", "1f8fffffffff7f00", ErrInvalidTag},
		{"reserved length", "02ff", ErrInvalidLength},
		{"length too long", "02850000000001", ErrInvalidLength},
		{"truncated length", "028201", ErrHeaderTruncated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadHeader(bytes.NewReader(Hex2bytes(tc.in)))
			require.Error(t, err)
			require.True(t, merry.Is(err, tc.err), merry.Details(err))
		})
	}
}

func TestTLV(t *testing.T) {
	v := TLV(Hex2bytes("3006020105 0101ff 0500"))

	require.NoError(t, v.Valid())
	assert.Equal(t, Universal(UniversalSequence), v.Tag())
	assert.True(t, v.Constructed())
	assert.Equal(t, 6, v.Len())
	assert.Equal(t, 8, v.FullLen())
	assert.Equal(t, Hex2bytes("020105 0101ff"), v.Value())

	next := v.Next()
	assert.Equal(t, TLV(Hex2bytes("0500")), next)
	assert.Nil(t, next.Next())

	// truncated values don't panic
	v = TLV(Hex2bytes("04050102"))
	assert.Equal(t, 5, v.Len())
	assert.Equal(t, Hex2bytes("0102"), v.Value())
	require.True(t, merry.Is(v.Valid(), ErrValueTruncated))
	assert.Nil(t, v.Next())

	v = TLV(Hex2bytes("30800000"))
	require.True(t, merry.Is(v.Valid(), ErrInvalidLength))

	// nested errors are reported
	v = TLV(Hex2bytes("30030205ff"))
	require.True(t, merry.Is(v.Valid(), ErrValueTruncated))
}

func TestPrint(t *testing.T) {
	b := Hex2bytes("3006020105 0101ff")
	buf := &bytes.Buffer{}
	err := Print(buf, "", "  ", b)
	require.NoError(t, err)
	assert.Equal(t, `SEQUENCE (6):
  INTEGER (1): 5
  BOOLEAN (1): true`, buf.String())

	// consecutive values
	b = Hex2bytes("020105 0603 2a0304 1603616263 a0020500")
	buf.Reset()
	err = Print(buf, "", "  ", b)
	require.NoError(t, err)
	assert.Equal(t, `INTEGER (1): 5
OBJECT IDENTIFIER (3): 1.2.3.4
IA5String (3): "abc"
[0] (2):
  NULL (0):`, buf.String())

	// Should tolerate truncated values
	b = Hex2bytes("300602010501")
	buf.Reset()
	err = Print(buf, "", "  ", b)
	assert.Error(t, err)
	assert.Equal(t, `SEQUENCE (6): (value truncated) 0x02010501`, buf.String())

	// and indefinite lengths
	b = Hex2bytes("308002010500 00")
	buf.Reset()
	err = Print(buf, "", "  ", b)
	assert.Error(t, err)
	assert.Equal(t, `SEQUENCE (-1): (invalid length: indefinite length) 0x30800201050000`, buf.String())
}

func TestPrintPrettyHex(t *testing.T) {
	b := Hex2bytes("3006020105 0101ff")
	buf := &bytes.Buffer{}
	err := PrintPrettyHex(buf, "", "  ", b)
	require.NoError(t, err)
	assert.Equal(t, `30 | 06
  02 | 01 | 05
  01 | 01 | ff`, buf.String())

	// output is valid input
	assert.Equal(t, b, Hex2bytes(buf.String()))

	// Should tolerate truncated values
	b = Hex2bytes("04050102")
	buf.Reset()
	err = PrintPrettyHex(buf, "", "  ", b)
	require.NoError(t, err)
	assert.Equal(t, "04 | 05\n0102", buf.String())
}

func TestTag(t *testing.T) {
	tests := []struct {
		tag Tag
		s   string
	}{
		{Universal(UniversalInteger), "INTEGER"},
		{Universal(UniversalBMPString), "BMPString"},
		{Universal(99), "[UNIVERSAL 99]"},
		{Context(3), "[3]"},
		{Tag{Class: ClassApplication, Number: 7}, "[APPLICATION 7]"},
		{Tag{Class: ClassPrivate, Number: 0}, "[PRIVATE 0]"},
	}
	for _, tc := range tests {
		t.Run(tc.s, func(t *testing.T) {
			assert.Equal(t, tc.s, tc.tag.String())
			tag, err := ParseTag(tc.s)
			require.NoError(t, err)
			assert.Equal(t, tc.tag, tag)
		})
	}

	_, err := ParseTag("[BOGUS 1]")
	require.True(t, merry.Is(err, ErrInvalidTag))
	_, err = ParseTag("INTEGR")
	require.True(t, merry.Is(err, ErrInvalidTag))

	assert.True(t, Universal(5).Less(Tag{Class: ClassApplication}))
	assert.True(t, Context(1).Less(Context(2)))
	assert.False(t, Tag{Class: ClassPrivate}.Less(Context(30)))
}

func TestJSON(t *testing.T) {
	v := TLV(Hex2bytes("3006020105 0101ff"))
	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag":"SEQUENCE","constructed":true,"value":[{"tag":"INTEGER","value":"05"},{"tag":"BOOLEAN","value":"ff"}]}`, string(b))

	var v2 TLV
	require.NoError(t, json.Unmarshal(b, &v2))
	assert.Equal(t, v, v2)
}

func TestIntegers(t *testing.T) {
	tests := []struct {
		i   int64
		enc string
	}{
		{0, "00"},
		{1, "01"},
		{127, "7f"},
		{128, "0080"},
		{300, "012c"},
		{-1, "ff"},
		{-128, "80"},
		{-129, "ff7f"},
		{-256, "ff00"},
		{1 << 40, "010000000000"},
	}
	for _, tc := range tests {
		t.Run(big.NewInt(tc.i).String(), func(t *testing.T) {
			assert.Equal(t, Hex2bytes(tc.enc), AppendInt(nil, big.NewInt(tc.i)))
			assert.Equal(t, Hex2bytes(tc.enc), AppendInt64(nil, tc.i))
			assert.Equal(t, tc.i, ParseInt(new(big.Int), Hex2bytes(tc.enc)).Int64())
			i, ok := ParseInt64(Hex2bytes(tc.enc))
			require.True(t, ok)
			assert.Equal(t, tc.i, i)
			assert.True(t, Minimal(Hex2bytes(tc.enc)))
		})
	}

	assert.False(t, Minimal(Hex2bytes("0001")))
	assert.False(t, Minimal(Hex2bytes("ffff")))
	assert.False(t, Minimal(nil))

	_, ok := ParseInt64(Hex2bytes("00ffffffffffffffff"))
	assert.True(t, ok == false)
	i, ok := ParseInt64(Hex2bytes("0000000000000000000001"))
	require.True(t, ok)
	assert.Equal(t, int64(1), i)
}

func TestOID(t *testing.T) {
	tests := []struct {
		oid      string
		enc      string
		relative bool
	}{
		{"1.2.840.113549", "2a864886f70d", false},
		{"2.5.4.3", "550403", false},
		{"2.999.3", "883703", false},
		{"0.0", "00", false},
		{"8571.3.2", "c27b0302", true},
	}
	for _, tc := range tests {
		t.Run(tc.oid, func(t *testing.T) {
			arcs, err := ParseOID(Hex2bytes(tc.enc), tc.relative)
			require.NoError(t, err)
			assert.Equal(t, tc.oid, FormatOID(arcs))

			b, err := AppendOID(nil, arcs, tc.relative)
			require.NoError(t, err)
			assert.Equal(t, Hex2bytes(tc.enc), b)
		})
	}

	_, err := ParseOID(Hex2bytes("2a86"), false)
	assert.Error(t, err)
	_, err = ParseOID(Hex2bytes("2a8001"), false)
	assert.Error(t, err)
	_, err = ParseOID(nil, false)
	assert.Error(t, err)

	_, err = AppendOID(nil, []*big.Int{big.NewInt(1), big.NewInt(40)}, false)
	assert.Error(t, err)
	_, err = AppendOID(nil, []*big.Int{big.NewInt(3), big.NewInt(1)}, false)
	assert.Error(t, err)
}
