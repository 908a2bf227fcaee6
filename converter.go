package asnrt

import (
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gemalto/asnrt/tlv"
	"github.com/google/uuid"
)

// Converter translates between ASN.1 values and native Go storage of a
// single type.  Each kind of ASN.1 type is served by one capability
// interface embedding Converter.  Values are passed as addressable
// reflect.Values of type Native().
type Converter interface {
	Native() reflect.Type
}

type BooleanConverter interface {
	Converter
	Bool(v reflect.Value) bool
	SetBool(v reflect.Value, b bool)
}

type NullConverter interface {
	Converter
	SetNull(v reflect.Value)
}

// IntegerConverter converts INTEGER values, and encodes them itself.  The
// BER methods read and write content octets only, the engine handles the
// identifier and length octets.
type IntegerConverter interface {
	Converter
	Int(v reflect.Value) *big.Int
	SetInt(v reflect.Value, i *big.Int) error
	EncodeBER(buf *Buffer, v reflect.Value, t *Type) error
	DecodeBER(buf *Buffer, v reflect.Value, t *Type, length int) error
	EncodePER(buf *Buffer, v reflect.Value, t *Type) error
	DecodePER(buf *Buffer, v reflect.Value, t *Type) error
}

// EnumeratedConverter converts ENUMERATED values.  Values are the numbers
// of the type's items.
type EnumeratedConverter interface {
	Converter
	Enum(v reflect.Value, t *Type) (int64, error)
	SetEnum(v reflect.Value, t *Type, e int64) error
}

type RealConverter interface {
	Converter
	Float(v reflect.Value) float64
	SetFloat(v reflect.Value, f float64) error
}

type BitStringConverter interface {
	Converter
	Bits(v reflect.Value) BitString
	SetBits(v reflect.Value, b BitString)
}

type OctetStringConverter interface {
	Converter
	Octets(v reflect.Value) []byte
	SetOctets(v reflect.Value, b []byte)
}

// ObjectIDConverter converts OBJECT IDENTIFIER and RELATIVE-OID values,
// as arcs.
type ObjectIDConverter interface {
	Converter
	Arcs(v reflect.Value) []*big.Int
	SetArcs(v reflect.Value, arcs []*big.Int) error
}

// StringConverter converts character strings.  Strings are exchanged as
// UTF-8, the engine transcodes them to the kind's character set.
type StringConverter interface {
	Converter
	String(v reflect.Value) string
	SetString(v reflect.Value, s string) error
}

type TimeConverter interface {
	Converter
	Time(v reflect.Value) time.Time
	SetTime(v reflect.Value, t time.Time)
}

var (
	boolType      = reflect.TypeOf(false)
	nullType      = reflect.TypeOf(Null{})
	int32Type     = reflect.TypeOf(int32(0))
	int64Type     = reflect.TypeOf(int64(0))
	bigIntType    = reflect.TypeOf(big.Int{})
	float32Type   = reflect.TypeOf(float32(0))
	float64Type   = reflect.TypeOf(float64(0))
	bitStringType = reflect.TypeOf(BitString{})
	bytesType     = reflect.TypeOf([]byte(nil))
	oidType       = reflect.TypeOf(ObjectIdentifier(nil))
	uuidType      = reflect.TypeOf(uuid.UUID{})
	stringType    = reflect.TypeOf("")
	timeType      = reflect.TypeOf(time.Time{})
	anyType       = reflect.TypeOf((*interface{})(nil)).Elem()
)

func orDefault(t, def reflect.Type) reflect.Type {
	if t == nil {
		return def
	}
	return t
}

// Null is the native type of NULL values.
type Null struct{}

// BitString is the native type of BIT STRING values.  Bits are numbered
// from the most significant bit of the first byte.
type BitString struct {
	Bytes     []byte
	BitLength int
}

// At returns the bit at index i, or 0 if i is out of range.
func (b BitString) At(i int) int {
	if i < 0 || i >= b.BitLength {
		return 0
	}
	return int(b.Bytes[i/8]>>(7-uint(i%8))) & 1
}

// NewBitString builds a bit string from individual bits.
func NewBitString(bits ...int) BitString {
	b := BitString{Bytes: make([]byte, (len(bits)+7)/8), BitLength: len(bits)}
	for i, v := range bits {
		if v != 0 {
			b.Bytes[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return b
}

func (b BitString) String() string {
	var sb strings.Builder
	for i := 0; i < b.BitLength; i++ {
		sb.WriteByte(byte('0' + b.At(i)))
	}
	return sb.String()
}

// ObjectIdentifier is the native type of OBJECT IDENTIFIER and RELATIVE-OID
// values.
type ObjectIdentifier []uint64

// ParseObjectIdentifier parses dotted notation, like "1.2.840.113549".
func ParseObjectIdentifier(s string) (ObjectIdentifier, error) {
	parts := strings.Split(s, ".")
	oid := make(ObjectIdentifier, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, errorf(ErrInvalidInteger, "arc %q of %q", p, s)
		}
		oid[i] = n
	}
	return oid, nil
}

func (o ObjectIdentifier) String() string {
	s := make([]string, len(o))
	for i, a := range o {
		s[i] = strconv.FormatUint(a, 10)
	}
	return strings.Join(s, ".")
}

func (o ObjectIdentifier) Equal(other ObjectIdentifier) bool {
	if len(o) != len(other) {
		return false
	}
	for i := range o {
		if o[i] != other[i] {
			return false
		}
	}
	return true
}

// BoolConverter converts BOOLEAN values held in a bool.
type BoolConverter struct {
	Type reflect.Type
}

func (c BoolConverter) Native() reflect.Type {
	return orDefault(c.Type, boolType)
}

func (c BoolConverter) Bool(v reflect.Value) bool {
	return v.Bool()
}

func (c BoolConverter) SetBool(v reflect.Value, b bool) {
	v.SetBool(b)
}

// NullValueConverter converts NULL values.  Any native type works, NULL
// carries no information.
type NullValueConverter struct {
	Type reflect.Type
}

func (c NullValueConverter) Native() reflect.Type {
	return orDefault(c.Type, nullType)
}

func (c NullValueConverter) SetNull(v reflect.Value) {
	v.Set(reflect.Zero(v.Type()))
}

// EnumConverter converts ENUMERATED values held in an integer, as the item
// value, or in a string, as the item name.
type EnumConverter struct {
	Type reflect.Type
}

func (c EnumConverter) Native() reflect.Type {
	return orDefault(c.Type, int64Type)
}

func (c EnumConverter) Enum(v reflect.Value, t *Type) (int64, error) {
	switch v.Kind() {
	case reflect.String:
		_, it := t.ItemByName(v.String())
		if it == nil {
			return 0, errorf(ErrInvalidEnum, "%q is not an item of %v", v.String(), t)
		}
		return it.Value, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := v.Uint()
		if u > math.MaxInt64 {
			return 0, errorf(ErrInvalidEnum, "%d overflows int64", u)
		}
		return int64(u), nil
	}
	return 0, errorf(ErrAbstractFunction, "enumerated values can't be held in %v", v.Type())
}

func (c EnumConverter) SetEnum(v reflect.Value, t *Type, e int64) error {
	switch v.Kind() {
	case reflect.String:
		_, it := t.ItemByValue(e)
		if it == nil {
			return errorf(ErrInvalidEnum, "%d is not an item of %v", e, t)
		}
		v.SetString(it.Name)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.OverflowInt(e) {
			return errorf(ErrInvalidEnum, "%d overflows %v", e, v.Type())
		}
		v.SetInt(e)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if e < 0 || v.OverflowUint(uint64(e)) {
			return errorf(ErrInvalidEnum, "%d overflows %v", e, v.Type())
		}
		v.SetUint(uint64(e))
		return nil
	}
	return errorf(ErrAbstractFunction, "enumerated values can't be held in %v", v.Type())
}

// FloatConverter converts REAL values held in a float32.  Values outside
// float32's range fail with ErrInvalidReal, precision is rounded.
type FloatConverter struct {
	Type reflect.Type
}

func (c FloatConverter) Native() reflect.Type {
	return orDefault(c.Type, float32Type)
}

func (c FloatConverter) Float(v reflect.Value) float64 {
	return v.Float()
}

func (c FloatConverter) SetFloat(v reflect.Value, f float64) error {
	if !math.IsInf(f, 0) && !math.IsNaN(f) && v.OverflowFloat(f) {
		return errorf(ErrInvalidReal, "%g overflows %v", f, v.Type())
	}
	v.SetFloat(f)
	return nil
}

// DoubleConverter converts REAL values held in a float64.
type DoubleConverter struct {
	Type reflect.Type
}

func (c DoubleConverter) Native() reflect.Type {
	return orDefault(c.Type, float64Type)
}

func (c DoubleConverter) Float(v reflect.Value) float64 {
	return v.Float()
}

func (c DoubleConverter) SetFloat(v reflect.Value, f float64) error {
	v.SetFloat(f)
	return nil
}

// BitsConverter converts BIT STRING values held in a BitString.
type BitsConverter struct {
	Type reflect.Type
}

func (c BitsConverter) Native() reflect.Type {
	return orDefault(c.Type, bitStringType)
}

func (c BitsConverter) Bits(v reflect.Value) BitString {
	return v.Convert(bitStringType).Interface().(BitString)
}

func (c BitsConverter) SetBits(v reflect.Value, b BitString) {
	b.Bytes = append([]byte(nil), b.Bytes...)
	v.Set(reflect.ValueOf(b).Convert(v.Type()))
}

// OctetsConverter converts OCTET STRING values, and opaque CHARACTER
// STRING values, held in a []byte.
type OctetsConverter struct {
	Type reflect.Type
}

func (c OctetsConverter) Native() reflect.Type {
	return orDefault(c.Type, bytesType)
}

func (c OctetsConverter) Octets(v reflect.Value) []byte {
	return v.Bytes()
}

func (c OctetsConverter) SetOctets(v reflect.Value, b []byte) {
	v.SetBytes(append([]byte(nil), b...))
}

// OIDConverter converts OBJECT IDENTIFIER and RELATIVE-OID values held in
// a slice of integers, like ObjectIdentifier or encoding/asn1's
// ObjectIdentifier.
type OIDConverter struct {
	Type reflect.Type
}

func (c OIDConverter) Native() reflect.Type {
	return orDefault(c.Type, oidType)
}

func (c OIDConverter) Arcs(v reflect.Value) []*big.Int {
	arcs := make([]*big.Int, v.Len())
	for i := range arcs {
		e := v.Index(i)
		switch e.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			arcs[i] = new(big.Int).SetUint64(e.Uint())
		default:
			arcs[i] = big.NewInt(e.Int())
		}
	}
	return arcs
}

func (c OIDConverter) SetArcs(v reflect.Value, arcs []*big.Int) error {
	s := reflect.MakeSlice(v.Type(), len(arcs), len(arcs))
	for i, a := range arcs {
		e := s.Index(i)
		switch e.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if !a.IsUint64() || e.OverflowUint(a.Uint64()) {
				return errorf(ErrInvalidInteger, "arc %v overflows %v", a, e.Type())
			}
			e.SetUint(a.Uint64())
		default:
			if !a.IsInt64() || e.OverflowInt(a.Int64()) {
				return errorf(ErrInvalidInteger, "arc %v overflows %v", a, e.Type())
			}
			e.SetInt(a.Int64())
		}
	}
	v.Set(s)
	return nil
}

var uuidArc = big.NewInt(25)

// UUIDConverter converts OBJECT IDENTIFIER values of the form
// {joint-iso-itu-t(2) uuid(25) <uuid>}, X.667, held in a uuid.UUID.
type UUIDConverter struct{}

func (c UUIDConverter) Native() reflect.Type {
	return uuidType
}

func (c UUIDConverter) Arcs(v reflect.Value) []*big.Int {
	u := v.Interface().(uuid.UUID)
	return []*big.Int{big.NewInt(2), new(big.Int).Set(uuidArc), new(big.Int).SetBytes(u[:])}
}

func (c UUIDConverter) SetArcs(v reflect.Value, arcs []*big.Int) error {
	if len(arcs) != 3 || arcs[0].Cmp(big.NewInt(2)) != 0 || arcs[1].Cmp(uuidArc) != 0 {
		return errorf(ErrInvalidInteger, "%s is not a uuid object identifier", tlv.FormatOID(arcs))
	}
	if arcs[2].BitLen() > 128 {
		return errorf(ErrInvalidInteger, "uuid arc %v overflows 128 bits", arcs[2])
	}
	var u uuid.UUID
	arcs[2].FillBytes(u[:])
	v.Set(reflect.ValueOf(u))
	return nil
}

// TextConverter converts character strings held in a string.
type TextConverter struct {
	Type reflect.Type
}

func (c TextConverter) Native() reflect.Type {
	return orDefault(c.Type, stringType)
}

func (c TextConverter) String(v reflect.Value) string {
	return v.String()
}

func (c TextConverter) SetString(v reflect.Value, s string) error {
	v.SetString(s)
	return nil
}

// TimeValueConverter converts UTCTime and GeneralizedTime values held in a
// time.Time.
type TimeValueConverter struct{}

func (c TimeValueConverter) Native() reflect.Type {
	return timeType
}

func (c TimeValueConverter) Time(v reflect.Value) time.Time {
	return v.Interface().(time.Time)
}

func (c TimeValueConverter) SetTime(v reflect.Value, t time.Time) {
	v.Set(reflect.ValueOf(t))
}
