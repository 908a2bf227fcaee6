package asnrt

import (
	"math/big"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gemalto/asnrt/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindScalars(t *testing.T) {
	tests := []struct {
		t      *Type
		native interface{}
		exp    Converter
	}{
		{Basic(KindBoolean), false, BoolConverter{Type: boolType}},
		{Basic(KindNull), Null{}, NullValueConverter{Type: nullType}},
		{Basic(KindInteger), int8(0), IntConverter{Type: reflect.TypeOf(int8(0))}},
		{Basic(KindInteger), uint32(0), IntConverter{Type: reflect.TypeOf(uint32(0))}},
		{Basic(KindInteger), 0, LongConverter{Type: reflect.TypeOf(0)}},
		{Basic(KindInteger), uint64(0), LongConverter{Type: reflect.TypeOf(uint64(0))}},
		{Basic(KindInteger), big.Int{}, BigIntConverter{}},
		{Basic(KindEnumerated), "", EnumConverter{Type: stringType}},
		{Basic(KindReal), float32(0), FloatConverter{Type: float32Type}},
		{Basic(KindReal), 0.0, DoubleConverter{Type: float64Type}},
		{Basic(KindBitString), BitString{}, BitsConverter{Type: bitStringType}},
		{Basic(KindOctetString), []byte(nil), OctetsConverter{Type: bytesType}},
		{Basic(KindObjectIdentifier), ObjectIdentifier(nil), OIDConverter{Type: oidType}},
		{Basic(KindRelativeOID), []int(nil), OIDConverter{Type: reflect.TypeOf([]int(nil))}},
		{Basic(KindGeneralizedTime), time.Time{}, TimeValueConverter{}},
		{Basic(KindGeneralizedTime), "", TextConverter{Type: stringType}},
		{Basic(KindIA5String), "", TextConverter{Type: stringType}},
	}
	for _, tc := range tests {
		native := reflect.TypeOf(tc.native)
		t.Run(tc.t.Kind.String()+"/"+native.String(), func(t *testing.T) {
			b := &Binder{}
			c, err := b.Bind(tc.t, native)
			require.NoError(t, err)
			assert.Equal(t, tc.exp, c)
			assert.Equal(t, native, c.Native())
		})
	}
}

func TestBindMismatch(t *testing.T) {
	tests := []struct {
		name   string
		t      *Type
		native interface{}
	}{
		{"boolean", Basic(KindBoolean), 0},
		{"integer", Basic(KindInteger), ""},
		{"real", Basic(KindReal), 0},
		{"string", Basic(KindUTF8String), []byte(nil)},
		{"uuid relative oid", Basic(KindRelativeOID), [16]byte{}},
		{"sequence", recordType(), ""},
		{"list", listOf(KindSequenceOf, Basic(KindBoolean)), []int(nil)},
		{"choice", shapeType(), 0},
		{"open", &Type{Kind: KindOpen}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := (&Binder{}).Bind(tc.t, reflect.TypeOf(tc.native))
			assert.True(t, Is(err, ErrInvalidEncodeRule), "%+v", err)
		})
	}
}

func TestBindStructs(t *testing.T) {
	type renamed struct {
		Number  int64 `asn:"serial"`
		Name    string
		Active  bool
		Comment *string
		Ignored int `asn:"-"`
		hidden  int
	}

	b := &Binder{}
	c, err := b.Bind(recordType(), reflect.TypeOf(renamed{}))
	require.NoError(t, err)
	sc, ok := c.(*StructConverter)
	require.True(t, ok)
	require.Len(t, sc.Members, 4)
	assert.Equal(t, []int{0}, sc.Members[0].Index)
	assert.Equal(t, []int{3}, sc.Members[3].Index)
	assert.Nil(t, sc.Members[0].Allocator)
	assert.NotNil(t, sc.Members[3].Allocator)

	comment := "c"
	v := renamed{Number: 5, Name: "ab", Active: true, Comment: &comment, Ignored: 3}
	buf, err := Allocate(16, true, DER)
	require.NoError(t, err)
	require.NoError(t, Encode(buf, &v, recordType(), c))
	assert.Equal(t, tlv.Hex2bytes("300a 020105 0c026162 800163"), buf.Bytes())
}

func TestBindStructErrors(t *testing.T) {
	type notPointer struct {
		Serial  int64
		Name    string
		Active  bool
		Comment string
	}
	type missing struct {
		Serial int64
		Name   string
	}
	type badChoice struct {
		Circle int32
		Label  *string
	}
	type badOpen struct {
		ID    int32
		Value interface{ Close() error }
	}

	tests := []struct {
		name   string
		t      *Type
		native interface{}
	}{
		{"optional not pointer", recordType(), notPointer{}},
		{"missing field", recordType(), missing{}},
		{"alternative not pointer", shapeType(), badChoice{}},
		{"open slot can't hold actual", attributeType(), badOpen{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := (&Binder{}).Bind(tc.t, reflect.TypeOf(tc.native))
			assert.True(t, Is(err, ErrInvalidEncodeRule), "%+v", err)
		})
	}

	_, err := (&Binder{}).Bind(nil, reflect.TypeOf(0))
	assert.True(t, Is(err, ErrNullPointer))
}

func TestBindCaches(t *testing.T) {
	b := &Binder{}
	typ := recordType()
	c1, err := b.Bind(typ, reflect.TypeOf(record{}))
	require.NoError(t, err)
	c2, err := b.Bind(typ, reflect.TypeOf(record{}))
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestBindConcurrent(t *testing.T) {
	b := &Binder{}
	typ := everythingType()

	var wg sync.WaitGroup
	convs := make([]Converter, 8)
	for i := range convs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			convs[i], _ = b.Bind(typ, reflect.TypeOf(everything{}))
		}(i)
	}
	wg.Wait()
	for _, c := range convs {
		assert.Same(t, convs[0], c)
	}
}

func TestBindAllocator(t *testing.T) {
	b := &Binder{Allocator: ZeroAllocator{Max: 4}}
	c, err := b.Bind(recordType(), reflect.TypeOf(record{}))
	require.NoError(t, err)

	buf, err := Wrap(tlv.Hex2bytes("300a 020105 0c026162 800178"), DER)
	require.NoError(t, err)
	var got record
	err = Decode(buf, &got, recordType(), c)
	assert.True(t, Is(err, ErrOutOfMemory), "%+v", err)
}

func TestNativeType(t *testing.T) {
	b := &Binder{}
	rt, err := b.NativeType(recordType())
	require.NoError(t, err)

	require.Equal(t, reflect.Struct, rt.Kind())
	require.Equal(t, 4, rt.NumField())
	tests := []struct {
		field string
		typ   reflect.Type
		tag   string
	}{
		{"Serial", bigIntType, "serial"},
		{"Name", stringType, "name"},
		{"Active", boolType, "active"},
		{"Comment", reflect.PtrTo(stringType), "comment"},
	}
	for i, tc := range tests {
		f := rt.Field(i)
		assert.Equal(t, tc.field, f.Name)
		assert.Equal(t, tc.typ, f.Type)
		assert.Equal(t, tc.tag, f.Tag.Get("asn"))
	}

	again, err := b.NativeType(recordType())
	require.NoError(t, err)
	assert.Equal(t, rt, again, "struct types with identical fields are identical")

	choice, err := b.NativeType(shapeType())
	require.NoError(t, err)
	assert.Equal(t, reflect.PtrTo(bigIntType), choice.Field(0).Type)

	list, err := b.NativeType(listOf(KindSetOf, colorType()))
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf([]int64(nil)), list)

	open, err := b.NativeType(attributeType())
	require.NoError(t, err)
	assert.Equal(t, anyType, open.Field(1).Type)
}

func TestNativeTypeRoundTrip(t *testing.T) {
	typ := recordType()
	rt, err := DefaultBinder.NativeType(typ)
	require.NoError(t, err)

	in := tlv.Hex2bytes("300a 020105 0c026162 800178")
	v := reflect.New(rt)
	require.NoError(t, Unmarshal(DER, in, typ, v.Interface()))
	serial := v.Elem().Field(0).Addr().Interface().(*big.Int)
	assert.EqualValues(t, 5, serial.Int64())
	assert.Equal(t, "x", v.Elem().Field(3).Elem().String())

	out, err := Marshal(DER, typ, v.Interface())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNativeTypeRecursive(t *testing.T) {
	typ := &Type{Name: "Node", Kind: KindSequence}
	typ.Components = []*Component{
		{Name: "next", Type: typ, Optional: true},
	}
	_, err := (&Binder{}).NativeType(typ)
	assert.True(t, Is(err, ErrInvalidEncodeRule))
}

func TestFieldName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "SerialNumber", fieldName("serial-number", 0, used))
	assert.Equal(t, "SerialNumber_", fieldName("serialNumber", 1, used))
	assert.Equal(t, "F2", fieldName("", 2, used))
}
