package asnrt

import (
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/gemalto/asnrt/internal/asnutil"
)

// Binder builds converters which map Types onto Go types, by reflection.
//
// Structs are matched to SEQUENCE, SET and CHOICE components by field name.
// A field's name is matched against the normalized component name, e.g.
// "serial-number" matches the field SerialNumber.  The asn struct tag
// overrides this:
//
//	Version int `asn:"protocol-version"`
//	Cache   int `asn:"-"`
//
// Components which are OPTIONAL without a DEFAULT, and CHOICE alternatives,
// must be pointer fields, nil when absent.  Open type components must be
// interface fields, holding a pointer to the actual value.
//
// Bound converters are cached.  A Binder is safe for concurrent use.
type Binder struct {
	// Allocator is used for pointer fields and pointer list elements.
	// Defaults to ZeroAllocator{}.
	Allocator Allocator

	mu        sync.Mutex
	cache     sync.Map // bindKey -> Converter
	natives   sync.Map // *Type -> reflect.Type
	synthetic sync.Map // *Type -> reflect.Type
}

type bindKey struct {
	t      *Type
	native reflect.Type
}

// DefaultBinder is used by Marshal and Unmarshal.
var DefaultBinder = &Binder{}

func (b *Binder) allocator() Allocator {
	if b.Allocator == nil {
		return ZeroAllocator{}
	}
	return b.Allocator
}

// Register sets the Go type used for values of the actual type t when it
// is held by an open type.  sample may be a value or a pointer to one.
// Actual types which aren't registered get a type made by NativeType.
//
// Register must be called before any type holding t in an open type is
// bound.
func (b *Binder) Register(t *Type, sample interface{}) {
	rt := reflect.TypeOf(sample)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	b.natives.Store(t, rt)
}

// Bind returns the converter for values of Go type native, described by t.
func (b *Binder) Bind(t *Type, native reflect.Type) (Converter, error) {
	if t == nil || native == nil {
		return nil, errorf(ErrNullPointer, "nil type")
	}
	if c, ok := b.cache.Load(bindKey{t, native}); ok {
		return c.(Converter), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.cache.Load(bindKey{t, native}); ok {
		return c.(Converter), nil
	}

	pending := map[bindKey]Converter{}
	c, err := b.bind(t, native, pending)
	if err != nil {
		return nil, err
	}
	for k, v := range pending {
		b.cache.Store(k, v)
	}
	log.Debug("bound converter", "type", t.String(), "native", native.String(), "converters", len(pending))
	return c, nil
}

func (b *Binder) bind(t *Type, native reflect.Type, pending map[bindKey]Converter) (Converter, error) {
	key := bindKey{t, native}
	if c, ok := pending[key]; ok {
		return c, nil
	}
	if c, ok := b.cache.Load(key); ok {
		return c.(Converter), nil
	}

	c, err := b.bindScalar(t, native)
	if err != nil || c != nil {
		if c != nil {
			pending[key] = c
		}
		return c, err
	}

	switch t.Kind {
	case KindSequence, KindSet:
		if native.Kind() != reflect.Struct {
			break
		}
		sc := &StructConverter{Type: native}
		pending[key] = sc
		for _, comp := range t.Components {
			m, err := b.component(t, comp, native, pending)
			if err != nil {
				delete(pending, key)
				return nil, err
			}
			sc.Members = append(sc.Members, m)
		}
		return sc, nil
	case KindChoice:
		if native.Kind() != reflect.Struct {
			break
		}
		cc := &ChoiceStructConverter{Type: native}
		pending[key] = cc
		for _, comp := range t.Components {
			f, ok := fieldFor(native, comp.Name)
			if !ok {
				delete(pending, key)
				return nil, errorf(ErrInvalidEncodeRule, "%v has no field for alternative %s of %v", native, comp.Name, t)
			}
			if f.Type.Kind() != reflect.Ptr {
				delete(pending, key)
				return nil, errorf(ErrInvalidEncodeRule, "alternative %s of %v must be a pointer field", comp.Name, t)
			}
			ac, err := b.bind(comp.Type, f.Type.Elem(), pending)
			if err != nil {
				delete(pending, key)
				return nil, inMember(err, comp.Name)
			}
			cc.Alternatives = append(cc.Alternatives, &MemberDescriptor{
				Name:      comp.Name,
				Index:     f.Index,
				Converter: ac,
				Allocator: b.allocator(),
			})
		}
		return cc, nil
	case KindSequenceOf, KindSetOf:
		if native.Kind() != reflect.Slice || t.Element == nil {
			break
		}
		lc := &SliceConverter{Type: native}
		pending[key] = lc
		m, err := b.member("element", t.Element, native.Elem(), pending)
		if err != nil {
			delete(pending, key)
			return nil, err
		}
		lc.Elem = m
		return lc, nil
	case KindOpen:
		if native.Kind() != reflect.Interface {
			break
		}
		oc := &OpenTypeConverter{Type: native, Actuals: map[string]*MemberDescriptor{}}
		pending[key] = oc
		for _, o := range t.Objects {
			at, err := b.actualNative(o.Type)
			if err != nil {
				delete(pending, key)
				return nil, err
			}
			if !reflect.PtrTo(at).Implements(native) {
				delete(pending, key)
				return nil, errorf(ErrInvalidEncodeRule, "%v can't hold *%v", native, at)
			}
			ac, err := b.bind(o.Type, at, pending)
			if err != nil {
				delete(pending, key)
				return nil, err
			}
			oc.Actuals[o.Key] = &MemberDescriptor{Name: o.Key, Converter: ac, Allocator: b.allocator()}
		}
		return oc, nil
	}
	return nil, errorf(ErrInvalidEncodeRule, "can't map %v onto %v", t, native)
}

// bindScalar returns the converter for the simple kinds, or nil.
func (b *Binder) bindScalar(t *Type, native reflect.Type) (Converter, error) {
	nk := native.Kind()
	switch t.Kind {
	case KindBoolean:
		if nk == reflect.Bool {
			return BoolConverter{Type: native}, nil
		}
	case KindNull:
		return NullValueConverter{Type: native}, nil
	case KindInteger:
		if native == bigIntType {
			return BigIntConverter{}, nil
		}
		switch nk {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16, reflect.Uint32:
			return IntConverter{Type: native}, nil
		case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
			return LongConverter{Type: native}, nil
		}
	case KindEnumerated:
		switch nk {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.String:
			return EnumConverter{Type: native}, nil
		}
	case KindReal:
		switch nk {
		case reflect.Float32:
			return FloatConverter{Type: native}, nil
		case reflect.Float64:
			return DoubleConverter{Type: native}, nil
		}
	case KindBitString:
		if native.ConvertibleTo(bitStringType) {
			return BitsConverter{Type: native}, nil
		}
	case KindOctetString, KindCharacterString:
		if nk == reflect.Slice && native.Elem().Kind() == reflect.Uint8 {
			return OctetsConverter{Type: native}, nil
		}
	case KindObjectIdentifier, KindRelativeOID:
		if native == uuidType && t.Kind == KindObjectIdentifier {
			return UUIDConverter{}, nil
		}
		if nk == reflect.Slice {
			switch native.Elem().Kind() {
			case reflect.Int, reflect.Int32, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
				return OIDConverter{Type: native}, nil
			}
		}
	default:
		if !t.Kind.IsString() {
			return nil, nil
		}
		if t.Kind.IsTime() && native == timeType {
			return TimeValueConverter{}, nil
		}
		if nk == reflect.String {
			return TextConverter{Type: native}, nil
		}
	}
	return nil, errorf(ErrInvalidEncodeRule, "can't map %v onto %v", t, native)
}

// component binds a SEQUENCE or SET component to its struct field.
func (b *Binder) component(t *Type, comp *Component, native reflect.Type, pending map[bindKey]Converter) (*MemberDescriptor, error) {
	f, ok := fieldFor(native, comp.Name)
	if !ok {
		return nil, errorf(ErrInvalidEncodeRule, "%v has no field for component %s of %v", native, comp.Name, t)
	}
	if comp.Type.Kind != KindOpen && comp.Optional && comp.Default == nil && f.Type.Kind() != reflect.Ptr {
		return nil, errorf(ErrInvalidEncodeRule, "optional component %s of %v must be a pointer field", comp.Name, t)
	}
	m, err := b.member(comp.Name, comp.Type, f.Type, pending)
	if err != nil {
		return nil, err
	}
	m.Index = f.Index
	return m, nil
}

// member binds a slot of Go type st, holding a value of type t.  The
// returned descriptor designates the slot itself.
func (b *Binder) member(name string, t *Type, st reflect.Type, pending map[bindKey]Converter) (*MemberDescriptor, error) {
	m := &MemberDescriptor{Name: name}
	nt := st
	if st.Kind() == reflect.Ptr && t.Kind != KindOpen {
		nt = st.Elem()
		m.Allocator = b.allocator()
	}
	c, err := b.bind(t, nt, pending)
	if err != nil {
		return nil, inMember(err, name)
	}
	m.Converter = c
	return m, nil
}

func (b *Binder) actualNative(t *Type) (reflect.Type, error) {
	if rt, ok := b.natives.Load(t); ok {
		return rt.(reflect.Type), nil
	}
	return b.NativeType(t)
}

// fieldFor finds the exported field of struct type st bound to the
// component named name.
func fieldFor(st reflect.Type, name string) (reflect.StructField, bool) {
	norm := asnutil.NormalizeName(name)
	var byName *reflect.StructField
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.PkgPath != "" {
			continue
		}
		tag, ok := f.Tag.Lookup("asn")
		if ok {
			tag = strings.Split(tag, ",")[0]
			if tag == "-" {
				continue
			}
			if tag == name {
				return f, true
			}
			if tag != "" {
				continue
			}
		}
		if byName == nil && (f.Name == norm || f.Name == name) {
			byName = &f
		}
	}
	if byName != nil {
		return *byName, true
	}
	return reflect.StructField{}, false
}

// NativeType returns a Go type able to hold values of t, built with
// reflection: INTEGER is held as big.Int, ENUMERATED as int64, REAL as
// float64, times as time.Time, and character strings as string.  Structured
// types become structs with asn tagged fields.  Actual types registered
// with Register are used for values of open types.
//
// Recursive types can't be synthesized, and need a hand written Go type.
func (b *Binder) NativeType(t *Type) (reflect.Type, error) {
	if t == nil {
		return nil, errorf(ErrNullPointer, "nil type")
	}
	if rt, ok := b.synthetic.Load(t); ok {
		return rt.(reflect.Type), nil
	}
	rt, err := b.nativeType(t, map[*Type]bool{})
	if err != nil {
		return nil, err
	}
	b.synthetic.Store(t, rt)
	return rt, nil
}

func (b *Binder) nativeType(t *Type, visiting map[*Type]bool) (reflect.Type, error) {
	switch t.Kind {
	case KindBoolean:
		return boolType, nil
	case KindNull:
		return nullType, nil
	case KindInteger:
		return bigIntType, nil
	case KindEnumerated:
		return int64Type, nil
	case KindReal:
		return float64Type, nil
	case KindBitString:
		return bitStringType, nil
	case KindOctetString, KindCharacterString:
		return bytesType, nil
	case KindObjectIdentifier, KindRelativeOID:
		return oidType, nil
	case KindOpen:
		return anyType, nil
	}
	if t.Kind.IsTime() {
		return timeType, nil
	}
	if t.Kind.IsString() {
		return stringType, nil
	}

	if visiting[t] {
		return nil, errorf(ErrInvalidEncodeRule, "can't synthesize a Go type for recursive type %v", t)
	}
	visiting[t] = true
	defer delete(visiting, t)

	switch t.Kind {
	case KindSequenceOf, KindSetOf:
		if t.Element == nil {
			return nil, errorf(ErrInvalidEncodeRule, "%v has no element type", t)
		}
		et, err := b.nativeType(t.Element, visiting)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(et), nil
	case KindSequence, KindSet, KindChoice:
		fields := make([]reflect.StructField, 0, len(t.Components))
		used := map[string]bool{}
		for i, comp := range t.Components {
			ft, err := b.nativeType(comp.Type, visiting)
			if err != nil {
				return nil, inMember(err, comp.Name)
			}
			if t.Kind == KindChoice || (comp.Optional && comp.Default == nil && comp.Type.Kind != KindOpen) {
				ft = reflect.PtrTo(ft)
			}
			fields = append(fields, reflect.StructField{
				Name: fieldName(comp.Name, i, used),
				Type: ft,
				Tag:  reflect.StructTag(`asn:"` + comp.Name + `"`),
			})
		}
		return reflect.StructOf(fields), nil
	}
	return nil, errorf(ErrInvalidEncodeRule, "unknown kind %v", t.Kind)
}

// fieldName makes a unique, exported Go identifier for a component name.
func fieldName(name string, i int, used map[string]bool) string {
	s := asnutil.NormalizeName(name)
	valid := s != ""
	for j, r := range s {
		if !(unicode.IsLetter(r) || r == '_' || (j > 0 && unicode.IsDigit(r))) {
			valid = false
			break
		}
	}
	if !valid {
		s = "F" + strconv.Itoa(i)
	} else if r := []rune(s)[0]; !unicode.IsUpper(r) {
		s = "X" + s
	}
	for used[s] {
		s += "_"
	}
	used[s] = true
	return s
}
