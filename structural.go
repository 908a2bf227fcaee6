package asnrt

import (
	"reflect"
	"sort"
)

// CompositeConverter describes the storage of a SEQUENCE or SET.  Members
// are in the order of the type's components.
type CompositeConverter interface {
	Converter
	NumMembers() int
	Member(i int) *MemberDescriptor
	// Done is called after member i was decoded, or found absent.
	Done(v reflect.Value, i int, present bool) error
}

// ChoiceConverter describes the storage of a CHOICE.  Alternatives are in
// the order of the type's components.
type ChoiceConverter interface {
	Converter
	NumAlternatives() int
	Alternative(i int) *MemberDescriptor
	// Index returns the selected alternative, or -1 if none is.
	Index(v reflect.Value) int
}

// ListConverter describes the storage of a SEQUENCE OF or SET OF.
type ListConverter interface {
	Converter
	// Element locates an element inside the slot returned by At or Add.
	Element() *MemberDescriptor
	Len(v reflect.Value) int
	// At returns the slot of element i.
	At(v reflect.Value, i int) reflect.Value
	// Clear releases every element and empties the list.
	Clear(v reflect.Value)
	// Add appends an element and returns its realized storage.
	Add(v reflect.Value) (reflect.Value, error)
	// Done is called after element i was decoded.
	Done(v reflect.Value, i int) error
}

// OpenConverter describes the storage of an open type, whose actual type
// is selected by an information object key.
type OpenConverter interface {
	Converter
	// Actual returns the descriptor for the actual type keyed by key,
	// relative to the open type's slot.
	Actual(key string) (*MemberDescriptor, error)
	// Key finds the key whose actual type matches the populated value.
	Key(v reflect.Value) (string, error)
}

// StructConverter maps a SEQUENCE or SET onto a struct.
type StructConverter struct {
	Type    reflect.Type
	Members []*MemberDescriptor
	// OnDone, if set, is called as the Done hook.
	OnDone func(v reflect.Value, i int, present bool) error
}

func (c *StructConverter) Native() reflect.Type {
	return c.Type
}

func (c *StructConverter) NumMembers() int {
	return len(c.Members)
}

func (c *StructConverter) Member(i int) *MemberDescriptor {
	return c.Members[i]
}

func (c *StructConverter) Done(v reflect.Value, i int, present bool) error {
	if c.OnDone == nil {
		return nil
	}
	return c.OnDone(v, i, present)
}

// ChoiceStructConverter maps a CHOICE onto a struct of indirected
// alternatives, at most one of which is set.
type ChoiceStructConverter struct {
	Type         reflect.Type
	Alternatives []*MemberDescriptor
}

func (c *ChoiceStructConverter) Native() reflect.Type {
	return c.Type
}

func (c *ChoiceStructConverter) NumAlternatives() int {
	return len(c.Alternatives)
}

func (c *ChoiceStructConverter) Alternative(i int) *MemberDescriptor {
	return c.Alternatives[i]
}

func (c *ChoiceStructConverter) Index(v reflect.Value) int {
	for i, a := range c.Alternatives {
		if present(a.Locate(v)) {
			return i
		}
	}
	return -1
}

// SliceConverter maps a SEQUENCE OF or SET OF onto a slice.
type SliceConverter struct {
	Type reflect.Type
	// Elem locates an element inside its slice slot, it must have a nil
	// Index.
	Elem   *MemberDescriptor
	OnDone func(v reflect.Value, i int) error
}

func (c *SliceConverter) Native() reflect.Type {
	return c.Type
}

func (c *SliceConverter) Element() *MemberDescriptor {
	return c.Elem
}

func (c *SliceConverter) Len(v reflect.Value) int {
	return v.Len()
}

func (c *SliceConverter) At(v reflect.Value, i int) reflect.Value {
	return v.Index(i)
}

func (c *SliceConverter) Clear(v reflect.Value) {
	for i := 0; i < v.Len(); i++ {
		c.Elem.Release(v.Index(i))
	}
	v.Set(reflect.Zero(v.Type()))
}

func (c *SliceConverter) Add(v reflect.Value) (reflect.Value, error) {
	v.Set(reflect.Append(v, reflect.Zero(v.Type().Elem())))
	return c.Elem.Realize(v.Index(v.Len() - 1))
}

func (c *SliceConverter) Done(v reflect.Value, i int) error {
	if c.OnDone == nil {
		return nil
	}
	return c.OnDone(v, i)
}

// OpenTypeConverter maps an open type onto an interface slot, holding a
// pointer to the actual value.
type OpenTypeConverter struct {
	Type    reflect.Type
	Actuals map[string]*MemberDescriptor
}

func (c *OpenTypeConverter) Native() reflect.Type {
	return orDefault(c.Type, anyType)
}

func (c *OpenTypeConverter) Actual(key string) (*MemberDescriptor, error) {
	m, ok := c.Actuals[key]
	if !ok {
		return nil, errorf(ErrNoMatchInfoObj, "no information object with key %q", key)
	}
	return m, nil
}

func (c *OpenTypeConverter) Key(v reflect.Value) (string, error) {
	if v.Kind() != reflect.Interface || v.IsNil() {
		return "", errorf(ErrNullPointer, "open type value is absent")
	}
	dt := v.Elem().Type()
	if dt.Kind() == reflect.Ptr {
		dt = dt.Elem()
	}
	keys := make([]string, 0, len(c.Actuals))
	for k := range c.Actuals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if c.Actuals[k].Converter.Native() == dt {
			return k, nil
		}
	}
	return "", errorf(ErrNoMatchInfoObj, "no information object holds %v", dt)
}
