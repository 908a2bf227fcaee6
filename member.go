package asnrt

import (
	"reflect"
)

// Allocator produces storage for indirected members: pointer fields,
// interface fields holding pointers, and pointer elements of lists.
type Allocator interface {
	// Allocate returns a pointer to new, initialized storage of type t.
	Allocate(t reflect.Type) (reflect.Value, error)
	// Release disposes of storage returned by Allocate.
	Release(p reflect.Value)
}

// TypeAllocator allocates storage of one known type, and runs Init on
// every new value.
type TypeAllocator struct {
	Type reflect.Type
	Init func(p reflect.Value)
}

func (a TypeAllocator) Allocate(t reflect.Type) (reflect.Value, error) {
	if a.Type != nil && a.Type != t {
		return reflect.Value{}, errorf(ErrInvalidEncodeRule, "allocator for %v asked for %v", a.Type, t)
	}
	p := reflect.New(t)
	if a.Init != nil {
		a.Init(p)
	}
	return p, nil
}

func (a TypeAllocator) Release(reflect.Value) {}

// ZeroAllocator allocates zeroed storage of any type.  Released storage is
// zeroed again.  When Max is set, requests for types larger than Max bytes
// fail with ErrOutOfMemory.
type ZeroAllocator struct {
	Max uintptr
}

func (a ZeroAllocator) Allocate(t reflect.Type) (reflect.Value, error) {
	if a.Max > 0 && t.Size() > a.Max {
		return reflect.Value{}, errorf(ErrOutOfMemory, "%v needs %d bytes, limit is %d", t, t.Size(), a.Max)
	}
	return reflect.New(t), nil
}

func (a ZeroAllocator) Release(p reflect.Value) {
	if p.IsValid() && p.Kind() == reflect.Ptr && !p.IsNil() {
		e := p.Elem()
		e.Set(reflect.Zero(e.Type()))
	}
}

// MemberDescriptor locates one member inside its container's storage: a
// component of a SEQUENCE or SET, an alternative of a CHOICE, or the element
// of a list.
type MemberDescriptor struct {
	Name string
	// Index is the reflect field index path of the member's slot inside
	// the container.  A nil Index designates the container itself.
	Index     []int
	Converter Converter
	// Allocator is nil for inline members, whose storage is the slot
	// itself.  Otherwise the slot is a pointer or interface, and the
	// member's storage is allocated on demand.
	Allocator Allocator
}

func (m *MemberDescriptor) slot(container reflect.Value) reflect.Value {
	if m.Index == nil {
		return container
	}
	return container.FieldByIndex(m.Index)
}

// Locate returns the member's storage, or the invalid Value when an
// indirected member is absent.
func (m *MemberDescriptor) Locate(container reflect.Value) reflect.Value {
	s := m.slot(container)
	if m.Allocator == nil {
		return s
	}
	return deref(s)
}

func deref(s reflect.Value) reflect.Value {
	switch s.Kind() {
	case reflect.Ptr:
		if s.IsNil() {
			return reflect.Value{}
		}
		return s.Elem()
	case reflect.Interface:
		if s.IsNil() {
			return reflect.Value{}
		}
		e := s.Elem()
		if e.Kind() == reflect.Ptr {
			if e.IsNil() {
				return reflect.Value{}
			}
			return e.Elem()
		}
		// a value stored directly: readable through an addressable copy
		c := reflect.New(e.Type()).Elem()
		c.Set(e)
		return c
	}
	return s
}

// Realize returns the member's storage, allocating it first if the member
// is indirected.  Storage that was already present is released and
// replaced.
func (m *MemberDescriptor) Realize(container reflect.Value) (reflect.Value, error) {
	s := m.slot(container)
	if m.Allocator == nil {
		return s, nil
	}
	m.Release(container)
	p, err := m.Allocator.Allocate(m.Converter.Native())
	if err != nil {
		return reflect.Value{}, err
	}
	if !p.Type().AssignableTo(s.Type()) {
		m.Allocator.Release(p)
		return reflect.Value{}, errorf(ErrInvalidEncodeRule, "member %s: %v can't hold %v", m.Name, s.Type(), p.Type())
	}
	s.Set(p)
	return p.Elem(), nil
}

// Release disposes of an indirected member's storage and clears its slot.
// Inline members and absent members are left alone.
func (m *MemberDescriptor) Release(container reflect.Value) {
	if m.Allocator == nil {
		return
	}
	s := m.slot(container)
	if s.IsNil() {
		return
	}
	p := s
	if s.Kind() == reflect.Interface {
		p = s.Elem()
	}
	if p.Kind() == reflect.Ptr {
		m.Allocator.Release(p)
	}
	s.Set(reflect.Zero(s.Type()))
}

// discard drops the value of member m, of type t, from container.  Open
// type values live inline in an interface slot, they are freed and the
// slot cleared.
func discard(container reflect.Value, t *Type, m *MemberDescriptor) {
	if m.Allocator == nil && t.Kind == KindOpen {
		if loc := m.Locate(container); present(loc) {
			free(loc, t, m.Converter)
		}
		return
	}
	m.Release(container)
}

// present reports whether a location returned by Locate holds a value.
func present(loc reflect.Value) bool {
	if !loc.IsValid() {
		return false
	}
	if loc.Kind() == reflect.Interface && loc.IsNil() {
		return false
	}
	return true
}
