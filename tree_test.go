package asnrt

import (
	"bytes"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindFor(t *testing.T, typ *Type, v interface{}) Converter {
	t.Helper()
	c, err := DefaultBinder.Bind(typ, reflect.TypeOf(v).Elem())
	require.NoError(t, err)
	return c
}

func TestPrint(t *testing.T) {
	label := "hi"
	tests := []struct {
		name string
		t    *Type
		v    interface{}
		exp  string
	}{
		{"boolean", Basic(KindBoolean), new(bool), "FALSE"},
		{"null", Basic(KindNull), &Null{}, "NULL"},
		{"integer", Basic(KindInteger), ptr(int64(-5)), "-5"},
		{"enumerated", colorType(), ptr("blue"), "blue"},
		{"unknown enumerated", colorType(), ptr(int64(9)), "9"},
		{"real", Basic(KindReal), ptr(2.5), "2.5"},
		{"infinity", Basic(KindReal), ptr(math.Inf(1)), "PLUS-INFINITY"},
		{"bit string", Basic(KindBitString), ptr(NewBitString(1, 0, 1)), "'101'B"},
		{"octet string", Basic(KindOctetString), ptr([]byte{0xca, 0xfe}), "'CAFE'H"},
		{"oid", Basic(KindObjectIdentifier), ptr(ObjectIdentifier{1, 2, 840}), "{ 1 2 840 }"},
		{"string", Basic(KindUTF8String), ptr(`say "hi"`), `"say ""hi"""`},
		{"time", Basic(KindUTCTime), ptr("210304050607Z"), `"210304050607Z"`},
		{"empty list", listOf(KindSequenceOf, Basic(KindBoolean)), ptr([]bool{}), "{}"},
		{"list", listOf(KindSequenceOf, Basic(KindInteger)), ptr([]int64{1, 2}), "{\n  1,\n  2\n}"},
		{"choice", shapeType(), &shape{Label: &label}, `label : "hi"`},
		{"no choice", shapeType(), &shape{}, "<none>"},
		{"sequence", recordType(), &record{Serial: 5, Name: "ab", Active: true}, "{\n  serial 5,\n  name \"ab\",\n  active TRUE\n}"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := bindFor(t, tc.t, tc.v)
			var sb strings.Builder
			require.NoError(t, Print(&sb, tc.v, tc.t, c))
			assert.Equal(t, tc.exp, sb.String())
			assert.Equal(t, tc.exp, Sprint(tc.v, tc.t, c))
		})
	}
}

func TestPrintNested(t *testing.T) {
	typ := attributeType()
	DefaultBinder.Register(typ.Components[1].Type.Objects[1].Type, record{})
	v := &attribute{ID: 2, Value: &record{Serial: 7, Name: "seven"}}
	c := bindFor(t, typ, v)

	exp := `{
  id 2,
  value {
    serial 7,
    name "seven",
    active FALSE
  }
}`
	assert.Equal(t, exp, Sprint(v, typ, c))
}

func TestPrintErrors(t *testing.T) {
	c := bindFor(t, recordType(), &record{})

	var buf bytes.Buffer
	err := Print(&buf, record{}, recordType(), c)
	assert.True(t, Is(err, ErrNullPointer))

	err = Print(&buf, &record{}, recordType(), nil)
	assert.True(t, Is(err, ErrNullPointer))

	err = Print(&buf, new(int), recordType(), c)
	assert.True(t, Is(err, ErrInvalidEncodeRule))

	assert.True(t, strings.HasPrefix(Sprint(nil, recordType(), c), "<"))
}

func TestEquals(t *testing.T) {
	a, b := "a", "b"
	typ := recordType()
	c := bindFor(t, typ, &record{})

	tests := []struct {
		name string
		x, y record
		exp  bool
	}{
		{"equal", record{Serial: 1, Name: "x", Comment: &a}, record{Serial: 1, Name: "x", Comment: &a}, true},
		{"same contents", record{Serial: 1, Comment: &a}, record{Serial: 1, Comment: ptr("a")}, true},
		{"different values", record{Serial: 1}, record{Serial: 2}, false},
		{"different pointees", record{Comment: &a}, record{Comment: &b}, false},
		{"absent member", record{Comment: &a}, record{}, false},
		{"both absent", record{Name: "x"}, record{Name: "x"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, Equals(&tc.x, &tc.y, typ, c))
			assert.Equal(t, tc.exp, Equals(&tc.y, &tc.x, typ, c))
		})
	}

	assert.False(t, Equals(record{}, record{}, typ, c), "values must be pointers")
}

func TestEqualsPrimitives(t *testing.T) {
	rt := Basic(KindReal)
	rc := bindFor(t, rt, new(float64))
	assert.True(t, Equals(ptr(math.NaN()), ptr(math.NaN()), rt, rc))
	assert.False(t, Equals(ptr(0.0), ptr(math.Copysign(0, -1)), rt, rc))

	bits := Basic(KindBitString)
	bc := bindFor(t, bits, &BitString{})
	// unused bits are ignored
	assert.True(t, Equals(&BitString{Bytes: []byte{0xa1}, BitLength: 3}, ptr(NewBitString(1, 0, 1)), bits, bc))
	assert.False(t, Equals(ptr(NewBitString(1, 0)), ptr(NewBitString(1, 0, 0)), bits, bc))
}

func TestClone(t *testing.T) {
	typ := everythingType()
	c := bindFor(t, typ, &everything{})

	src := sampleEverything()
	var dst everything
	require.NoError(t, Clone(&dst, &src, typ, c))
	assert.Equal(t, src, dst)
	assert.True(t, Equals(&src, &dst, typ, c))

	// nothing is shared
	dst.Octets[0] = 0
	dst.Colors[0] = 99
	dst.Bits.Bytes[0] = 0
	*dst.Shape.Label = "changed"
	dst.OID[0] = 2
	assert.Equal(t, sampleEverything(), src)
	assert.False(t, Equals(&src, &dst, typ, c))
}

func TestCloneReplacesAlternative(t *testing.T) {
	typ := shapeType()
	c := bindFor(t, typ, &shape{})

	var circle int32 = 3
	src := shape{Circle: &circle}
	dst := shape{Label: ptr("old")}
	require.NoError(t, Clone(&dst, &src, typ, c))
	assert.Nil(t, dst.Label)
	require.NotNil(t, dst.Circle)
	assert.NotSame(t, src.Circle, dst.Circle)
	assert.EqualValues(t, 3, *dst.Circle)
}

func TestCloneOpenType(t *testing.T) {
	typ := attributeType()
	DefaultBinder.Register(typ.Components[1].Type.Objects[1].Type, record{})
	c := bindFor(t, typ, &attribute{})

	rec := &record{Serial: 1, Name: "one"}
	src := attribute{ID: 2, Value: rec}
	var dst attribute
	require.NoError(t, Clone(&dst, &src, typ, c))
	assert.Equal(t, src, dst)
	require.IsType(t, &record{}, dst.Value)
	assert.NotSame(t, rec, dst.Value.(*record))
}

func TestFree(t *testing.T) {
	typ := recordType()
	c := bindFor(t, typ, &record{})

	comment := "gone"
	v := record{Serial: 1, Name: "x", Comment: &comment}
	require.NoError(t, Free(&v, typ, c))
	assert.Equal(t, record{}, v)
	// released storage is zeroed
	assert.Empty(t, comment)

	assert.True(t, Is(Free(v, typ, c), ErrNullPointer))
}

func TestFreeNested(t *testing.T) {
	typ := everythingType()
	c := bindFor(t, typ, &everything{})

	v := sampleEverything()
	label := v.Shape.Label
	require.NoError(t, Free(&v, typ, c))
	assert.Equal(t, everything{}, v)
	assert.Empty(t, *label)
}

func ptr[T any](v T) *T {
	return &v
}
