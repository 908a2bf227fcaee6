package asnrt

import (
	"encoding/hex"
	"math/big"
	"reflect"
	"strconv"
	"time"

	"github.com/ansel1/merry"
	"github.com/gemalto/asnrt/tlv"
)

// Encode encodes the value v points to as a value of type t, accessing it
// through c.  The encoding rules are the buffer's.  When Encode returns an
// error, the buffer's position is where it was before the call.
func Encode(buf *Buffer, v interface{}, t *Type, c Converter) error {
	val, err := pointee(v)
	if err != nil {
		return err
	}
	return EncodeValue(buf, val, t, c)
}

// Decode decodes a value of type t into the storage v points to.
func Decode(buf *Buffer, v interface{}, t *Type, c Converter) error {
	val, err := pointee(v)
	if err != nil {
		return err
	}
	return DecodeValue(buf, val, t, c)
}

// EncodeValue is Encode for a reflect.Value of type c.Native().
func EncodeValue(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	if err := checkArgs(buf, v, t, c); err != nil {
		return err
	}
	start := buf.pos
	buf.depth++
	var err error
	if buf.rules.Packed() {
		err = encodePER(buf, v, t, c)
	} else {
		err = encodeBER(buf, v, t, c)
	}
	buf.depth--
	if err != nil {
		buf.pos = start
		return err
	}
	if buf.depth > 0 {
		return nil
	}
	if buf.rules.Packed() {
		// complete encodings are whole octets, at least one
		if buf.pos == start {
			err = buf.WriteBits(0, 8)
		} else {
			err = buf.Pad()
		}
		if err != nil {
			buf.pos = start
			return err
		}
	}
	return buf.Flush()
}

// DecodeValue is Decode for a settable reflect.Value of type c.Native().
func DecodeValue(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	if err := checkArgs(buf, v, t, c); err != nil {
		return err
	}
	if !v.CanSet() {
		return errorf(ErrNullPointer, "decoding into unaddressable %v", v.Type())
	}
	start := buf.pos
	buf.depth++
	var err error
	if buf.rules.Packed() {
		err = decodePER(buf, v, t, c)
	} else {
		err = decodeBER(buf, v, t, c)
	}
	buf.depth--
	if err != nil || buf.depth > 0 || !buf.rules.Packed() {
		return err
	}
	if buf.pos == start {
		return buf.Skip(8)
	}
	return buf.Align()
}

func checkArgs(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	switch {
	case buf == nil:
		return errorf(ErrNullPointer, "nil buffer")
	}
	return checkValue(v, t, c)
}

func checkValue(v reflect.Value, t *Type, c Converter) error {
	switch {
	case t == nil:
		return errorf(ErrNullPointer, "nil type")
	case c == nil:
		return errorf(ErrNullPointer, "nil converter for %v", t)
	case !v.IsValid():
		return errorf(ErrNullPointer, "no value for %v", t)
	}
	return checkNative(v, t, c)
}

func checkNative(v reflect.Value, t *Type, c Converter) error {
	if v.Type() != c.Native() {
		return errorf(ErrInvalidEncodeRule, "%v: converter for %v given %v", t, c.Native(), v.Type())
	}
	return nil
}

// valueOf returns addressable storage for v: the pointee of a pointer, or
// a copy of anything else.
func valueOf(v interface{}) (reflect.Value, error) {
	if v == nil {
		return reflect.Value{}, errorf(ErrNullPointer, "nil value")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, errorf(ErrNullPointer, "nil %v", rv.Type())
		}
		return rv.Elem(), nil
	}
	c := reflect.New(rv.Type()).Elem()
	c.Set(rv)
	return c, nil
}

// pointee returns the storage v points to.
func pointee(v interface{}) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return reflect.Value{}, errorf(ErrNullPointer, "expected a non-nil pointer, got %T", v)
	}
	return rv.Elem(), nil
}

func abstract(c Converter, t *Type) error {
	return errorf(ErrAbstractFunction, "%T can't convert %v", c, t)
}

func inMember(err error, name string) error {
	if err == nil {
		return nil
	}
	return merry.Prepend(err, name)
}

// absent handles a member missing from an encoding: DEFAULT values are
// substituted, OPTIONAL members and extension additions are released.
func absent(v reflect.Value, t *Type, cc CompositeConverter, i int) error {
	comp, m := t.Components[i], cc.Member(i)
	switch {
	case comp.Default != nil:
		loc, err := m.Realize(v)
		if err != nil {
			return err
		}
		if err := setDefault(loc, comp.Type, m.Converter, comp.Default); err != nil {
			return inMember(err, comp.Name)
		}
	case comp.Optional || comp.Extension:
		discard(v, comp.Type, m)
	default:
		return errorf(ErrMissingComponent, "%s in %v", comp.Name, t)
	}
	return cc.Done(v, i, false)
}

// omitted reports whether a present member is left out of an encoding,
// because it equals its DEFAULT.
func omitted(loc reflect.Value, comp *Component, c Converter) (bool, error) {
	if comp.Default == nil {
		return false, nil
	}
	tmp := reflect.New(loc.Type()).Elem()
	if err := setDefault(tmp, comp.Type, c, comp.Default); err != nil {
		return false, inMember(err, comp.Name)
	}
	return equal(loc, tmp, comp.Type, c), nil
}

func bigOf(d interface{}) (*big.Int, bool) {
	switch n := d.(type) {
	case int:
		return big.NewInt(int64(n)), true
	case int32:
		return big.NewInt(int64(n)), true
	case int64:
		return big.NewInt(n), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case float64:
		if n == float64(int64(n)) {
			return big.NewInt(int64(n)), true
		}
	case string:
		return new(big.Int).SetString(n, 10)
	case *big.Int:
		return n, n != nil
	}
	return nil, false
}

// setDefault stores the DEFAULT value d, given in schema form, into v.
func setDefault(v reflect.Value, t *Type, c Converter, d interface{}) error {
	bad := func() error {
		return errorf(ErrInvalidEncodeRule, "invalid default %v (%T) for %v", d, d, t)
	}
	switch t.Kind {
	case KindBoolean:
		b, ok := d.(bool)
		bc, ok2 := c.(BooleanConverter)
		if !ok || !ok2 {
			return bad()
		}
		bc.SetBool(v, b)
		return nil
	case KindNull:
		if nc, ok := c.(NullConverter); ok {
			nc.SetNull(v)
		}
		return nil
	case KindInteger:
		n, ok := bigOf(d)
		ic, ok2 := c.(IntegerConverter)
		if !ok || !ok2 {
			return bad()
		}
		return ic.SetInt(v, n)
	case KindEnumerated:
		ec, ok := c.(EnumeratedConverter)
		if !ok {
			return bad()
		}
		if name, ok := d.(string); ok {
			if _, it := t.ItemByName(name); it != nil {
				return ec.SetEnum(v, t, it.Value)
			}
		}
		n, ok := bigOf(d)
		if !ok || !n.IsInt64() {
			return bad()
		}
		return ec.SetEnum(v, t, n.Int64())
	case KindReal:
		rc, ok := c.(RealConverter)
		if !ok {
			return bad()
		}
		if f, ok := d.(float64); ok {
			return rc.SetFloat(v, f)
		}
		n, ok := bigOf(d)
		if !ok {
			return bad()
		}
		f, _ := new(big.Float).SetInt(n).Float64()
		return rc.SetFloat(v, f)
	case KindBitString:
		bc, ok := c.(BitStringConverter)
		if !ok {
			return bad()
		}
		switch b := d.(type) {
		case string:
			bits := make([]int, len(b))
			for i, r := range b {
				if r != '0' && r != '1' {
					return bad()
				}
				bits[i] = int(r - '0')
			}
			bc.SetBits(v, NewBitString(bits...))
		case []byte:
			bc.SetBits(v, BitString{Bytes: b, BitLength: len(b) * 8})
		default:
			return bad()
		}
		return nil
	case KindOctetString, KindCharacterString:
		oc, ok := c.(OctetStringConverter)
		if !ok {
			return bad()
		}
		switch b := d.(type) {
		case []byte:
			oc.SetOctets(v, b)
		case string:
			p, err := hex.DecodeString(b)
			if err != nil {
				return bad()
			}
			oc.SetOctets(v, p)
		default:
			return bad()
		}
		return nil
	case KindObjectIdentifier, KindRelativeOID:
		s, ok := d.(string)
		oc, ok2 := c.(ObjectIDConverter)
		if !ok || !ok2 {
			return bad()
		}
		oid, err := ParseObjectIdentifier(s)
		if err != nil {
			return bad()
		}
		arcs := make([]*big.Int, len(oid))
		for i, a := range oid {
			arcs[i] = new(big.Int).SetUint64(a)
		}
		return oc.SetArcs(v, arcs)
	case KindGeneralizedTime, KindUTCTime:
		s, ok := d.(string)
		if !ok {
			return bad()
		}
		tm, err := parseTime(t.Kind, s)
		if err != nil {
			return err
		}
		return setTime(v, t, c, tm, s)
	}
	if t.Kind.IsString() {
		s, ok := d.(string)
		sc, ok2 := c.(StringConverter)
		if !ok || !ok2 {
			return bad()
		}
		return sc.SetString(v, s)
	}
	return bad()
}

// getTime reads a time value through either a TimeConverter, or a
// StringConverter holding the text form.
func getTime(v reflect.Value, t *Type, c Converter) (string, error) {
	switch tc := c.(type) {
	case TimeConverter:
		return formatTime(t.Kind, tc.Time(v))
	case StringConverter:
		s := tc.String(v)
		if _, err := parseTime(t.Kind, s); err != nil {
			return "", err
		}
		return s, nil
	}
	return "", abstract(c, t)
}

func setTime(v reflect.Value, t *Type, c Converter, tm time.Time, s string) error {
	switch tc := c.(type) {
	case TimeConverter:
		tc.SetTime(v, tm)
		return nil
	case StringConverter:
		return tc.SetString(v, s)
	}
	return abstract(c, t)
}

// discriminant returns the information object key of an open type member
// of the composite pt: the value of the sibling named by the open type's
// Relation, which must already be present.
func discriminant(parent reflect.Value, pt *Type, pc CompositeConverter, ot *Type) (string, error) {
	i, comp := pt.Component(ot.Relation)
	if comp == nil {
		return "", errorf(ErrNoMatchInfoObj, "%v has no component %q", pt, ot.Relation)
	}
	m := pc.Member(i)
	loc := m.Locate(parent)
	if !present(loc) {
		return "", errorf(ErrNoMatchInfoObj, "discriminant %s is absent", comp.Name)
	}
	return keyOf(loc, comp.Type, m.Converter)
}

func keyOf(v reflect.Value, t *Type, c Converter) (string, error) {
	switch kc := c.(type) {
	case IntegerConverter:
		return kc.Int(v).String(), nil
	case EnumeratedConverter:
		e, err := kc.Enum(v, t)
		return strconv.FormatInt(e, 10), err
	case ObjectIDConverter:
		return tlv.FormatOID(kc.Arcs(v)), nil
	case StringConverter:
		return kc.String(v), nil
	}
	return "", errorf(ErrNoMatchInfoObj, "%v can't select an information object", t)
}

// actual resolves the type and member descriptor of an open type's value.
func actual(key string, ot *Type, c Converter) (*Type, *MemberDescriptor, error) {
	at, ok := ot.Object(key)
	if !ok {
		return nil, nil, errorf(ErrNoMatchInfoObj, "%v has no information object %q", ot, key)
	}
	oc, ok := c.(OpenConverter)
	if !ok {
		return nil, nil, abstract(c, ot)
	}
	m, err := oc.Actual(key)
	if err != nil {
		return nil, nil, err
	}
	return at, m, nil
}

// openValue locates the populated value of an open type slot for
// encoding, checking it is of the information object's actual type.
func openValue(parent, slot reflect.Value, pt *Type, pc CompositeConverter, ot *Type, c Converter) (reflect.Value, *Type, Converter, error) {
	key, err := discriminant(parent, pt, pc, ot)
	if err != nil {
		return reflect.Value{}, nil, nil, err
	}
	at, am, err := actual(key, ot, c)
	if err != nil {
		return reflect.Value{}, nil, nil, err
	}
	loc := am.Locate(slot)
	if !present(loc) {
		return reflect.Value{}, nil, nil, errorf(ErrNullPointer, "open type value is absent")
	}
	if loc.Type() != am.Converter.Native() {
		return reflect.Value{}, nil, nil, errorf(ErrNoMatchInfoObj, "%v is not the type of information object %q", loc.Type(), key)
	}
	return loc, at, am.Converter, nil
}

// openStorage realizes the storage of an open type slot for decoding.
func openStorage(parent, slot reflect.Value, pt *Type, pc CompositeConverter, ot *Type, c Converter) (reflect.Value, *Type, Converter, error) {
	key, err := discriminant(parent, pt, pc, ot)
	if err != nil {
		return reflect.Value{}, nil, nil, err
	}
	at, am, err := actual(key, ot, c)
	if err != nil {
		return reflect.Value{}, nil, nil, err
	}
	loc, err := am.Realize(slot)
	if err != nil {
		return reflect.Value{}, nil, nil, err
	}
	return loc, at, am.Converter, nil
}
