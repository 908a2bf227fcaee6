package asnrt

import (
	"io"
	"os"
	"sort"
	"sync"

	"github.com/gemalto/asnrt/tlv"
)

// Module is a linked set of types, loaded from a compiled schema.  Types
// are looked up by the ids the schema assigned them.  A Module is read-only
// once loaded, and safe for concurrent use.
type Module struct {
	Name    string
	Version int

	mu       sync.RWMutex
	types    map[int64]*Type
	names    map[string]*Type
	order    []*Type
	binder   *Binder
	unloaded bool
}

// LoadModuleFile loads the compiled schema at path.
func LoadModuleFile(path string) (*Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classify(err, ErrIO)
	}
	defer f.Close()
	return LoadModule(f)
}

// LoadModule reads a compiled schema from r and links it.
func LoadModule(r io.Reader) (*Module, error) {
	s, err := DecodeSchema(r)
	if err != nil {
		return nil, err
	}
	m, err := NewModule(s)
	if err != nil {
		return nil, err
	}
	log.Info("loaded module", "module", m.Name, "version", m.Version, "types", len(m.order))
	return m, nil
}

// NewModule links the entries of s into a Module.  Linking fails with
// ErrInvalidEncodeRule when an entry has an unknown kind, a duplicate id, or
// references a type which doesn't exist, when an open type's relation
// doesn't name a preceding sibling, and when types embed each other in a
// cycle no encoding could terminate.  Value and size ranges which admit
// nothing fail with ErrInvalidSize.
func NewModule(s *Schema) (*Module, error) {
	if s == nil {
		return nil, errorf(ErrNullPointer, "nil schema")
	}
	m := &Module{
		Name:    s.Module,
		Version: s.Version,
		types:   make(map[int64]*Type, len(s.Entries)),
		names:   map[string]*Type{},
		binder:  &Binder{},
	}

	for i := range s.Entries {
		e := &s.Entries[i]
		t, err := newType(e)
		if err != nil {
			return nil, err
		}
		if _, dup := m.types[e.ID]; dup {
			return nil, errorf(ErrInvalidEncodeRule, "duplicate type id %d", e.ID)
		}
		m.types[e.ID] = t
		m.order = append(m.order, t)
		if t.Name != "" {
			if _, dup := m.names[t.Name]; !dup {
				m.names[t.Name] = t
			}
		}
	}

	for i := range s.Entries {
		if err := m.resolve(&s.Entries[i]); err != nil {
			return nil, err
		}
	}

	for _, t := range m.order {
		if err := checkRelations(t); err != nil {
			return nil, err
		}
	}
	if err := checkCycles(m.order); err != nil {
		return nil, err
	}

	log.Debug("linked module", "module", m.Name, "types", len(m.order))
	return m, nil
}

func newType(e *SchemaEntry) (*Type, error) {
	if e.ID <= 0 {
		return nil, errorf(ErrInvalidEncodeRule, "invalid type id %d", e.ID)
	}
	if !e.Kind.Valid() {
		return nil, errorf(ErrInvalidEncodeRule, "type %d has unknown kind %d", e.ID, int(e.Kind))
	}
	t := &Type{
		ID:         e.ID,
		Name:       e.Name,
		Kind:       e.Kind,
		Explicit:   e.Explicit,
		Extensible: e.Extensible,
		Alphabet:   e.Alphabet,
		FiniteReal: e.FiniteReal,
		Items:      append([]Item(nil), e.Items...),
		Relation:   e.Relation,
	}
	if e.Tag != "" {
		tag, err := tlv.ParseTag(e.Tag)
		if err != nil {
			return nil, errorf(ErrInvalidEncodeRule, "type %d: invalid tag %q", e.ID, e.Tag)
		}
		t.Tag = &tag
	}
	if e.Explicit && t.Tag == nil {
		return nil, errorf(ErrInvalidEncodeRule, "type %d is explicit without a tag", e.ID)
	}
	if e.Value != nil {
		if inverted(*e.Value) {
			return nil, errorf(ErrInvalidSize, "type %d: empty value range %v", e.ID, *e.Value)
		}
		t.Value = *e.Value
	}
	if e.Size != nil {
		if inverted(*e.Size) || e.Size.HasLower && e.Size.Lower < 0 {
			return nil, errorf(ErrInvalidSize, "type %d: invalid size range %v", e.ID, *e.Size)
		}
		t.Size = *e.Size
	}
	return t, nil
}

func inverted(r Range) bool {
	return r.HasLower && r.HasUpper && r.Lower > r.Upper
}

func (m *Module) ref(from, id int64) (*Type, error) {
	if id < 0 {
		k := Kind(-1 - id)
		if k.Valid() {
			return Basic(k), nil
		}
	} else if t, ok := m.types[id]; ok {
		return t, nil
	}
	return nil, errorf(ErrInvalidEncodeRule, "type %d references unknown type %d", from, id)
}

// resolve links the references of entry e.
func (m *Module) resolve(e *SchemaEntry) error {
	t := m.types[e.ID]
	for _, sc := range e.Components {
		ct, err := m.ref(e.ID, sc.Type)
		if err != nil {
			return inMember(err, sc.Name)
		}
		t.Components = append(t.Components, &Component{
			Name:      sc.Name,
			Type:      ct,
			Optional:  sc.Optional,
			Default:   sc.Default,
			Extension: sc.Extension,
		})
	}
	if t.Kind.IsList() {
		if e.Element == 0 {
			return errorf(ErrInvalidEncodeRule, "list type %d has no element type", e.ID)
		}
		et, err := m.ref(e.ID, e.Element)
		if err != nil {
			return err
		}
		t.Element = et
	}
	for _, so := range e.Objects {
		ot, err := m.ref(e.ID, so.Type)
		if err != nil {
			return err
		}
		t.Objects = append(t.Objects, Object{Key: so.Key, Type: ot})
	}
	if t.Kind == KindOpen && len(t.Objects) > 0 && t.Relation == "" {
		return errorf(ErrInvalidEncodeRule, "open type %d has objects but no relation", e.ID)
	}
	return nil
}

// checkRelations verifies the open type components of t name a sibling
// declared before them.
func checkRelations(t *Type) error {
	if !t.Kind.IsComposite() {
		return nil
	}
	for i, comp := range t.Components {
		if comp.Type.Kind != KindOpen || comp.Type.Relation == "" {
			continue
		}
		j, _ := t.Component(comp.Type.Relation)
		if j < 0 || j >= i {
			return errorf(ErrInvalidEncodeRule, "open type component %s of %v relates to %q, which is not a preceding component", comp.Name, t, comp.Type.Relation)
		}
	}
	return nil
}

// checkCycles rejects types which contain themselves through mandatory
// components.  Such values would be infinite.  OPTIONAL, DEFAULT and
// extension components, CHOICE alternatives and list elements may recurse.
func checkCycles(types []*Type) error {
	const (
		white = iota
		grey
		black
	)
	color := map[*Type]int{}
	var visit func(t *Type) error
	visit = func(t *Type) error {
		switch color[t] {
		case grey:
			return errorf(ErrInvalidEncodeRule, "%v embeds itself", t)
		case black:
			return nil
		}
		color[t] = grey
		if t.Kind.IsComposite() {
			for _, comp := range t.Components {
				if comp.Optional || comp.Default != nil || comp.Extension {
					continue
				}
				if err := visit(comp.Type); err != nil {
					return err
				}
			}
		}
		color[t] = black
		return nil
	}
	for _, t := range types {
		if err := visit(t); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the type with the given id.  Negative ids return the
// basic types, see BasicTypeID.
func (m *Module) Lookup(id int64) (*Type, error) {
	if id < 0 {
		if k := Kind(-1 - id); k.Valid() {
			return Basic(k), nil
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unloaded {
		return nil, errorf(ErrMissingComponent, "module %s is unloaded", m.Name)
	}
	t, ok := m.types[id]
	if !ok {
		return nil, errorf(ErrMissingComponent, "module %s has no type %d", m.Name, id)
	}
	return t, nil
}

// LookupName returns the type with the given name.
func (m *Module) LookupName(name string) (*Type, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unloaded {
		return nil, errorf(ErrMissingComponent, "module %s is unloaded", m.Name)
	}
	t, ok := m.names[name]
	if !ok {
		return nil, errorf(ErrMissingComponent, "module %s has no type %q", m.Name, name)
	}
	return t, nil
}

// Types returns the module's types, ordered by id.
func (m *Module) Types() []*Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]*Type(nil), m.order...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Binder returns the binder owning the converters bound for the module's
// types.
func (m *Module) Binder() *Binder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.binder
}

// Bind binds the type with the given id to the Go type of v, which may be
// a value or a pointer.
func (m *Module) Bind(id int64, v interface{}) (*Type, Converter, error) {
	t, err := m.Lookup(id)
	if err != nil {
		return nil, nil, err
	}
	val, err := valueOf(v)
	if err != nil {
		return nil, nil, err
	}
	b := m.Binder()
	if b == nil {
		return nil, nil, errorf(ErrMissingComponent, "module %s is unloaded", m.Name)
	}
	c, err := b.Bind(t, val.Type())
	if err != nil {
		return nil, nil, err
	}
	return t, c, nil
}

// Unload drops the module's types and converters.  Types and converters
// already handed out remain usable, but lookups fail afterwards.
func (m *Module) Unload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unloaded {
		return
	}
	m.types = nil
	m.names = nil
	m.order = nil
	m.binder = nil
	m.unloaded = true
	log.Debug("unloaded module", "module", m.Name)
}
