package asnrt

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"github.com/gemalto/asnrt/tlv"
)

// Type describes an ASN.1 type: its kind, tagging, constraints, and for
// structured kinds the types of its components.  Types form a graph which is
// built once, by hand or by loading a Module, and is read-only afterwards.
type Type struct {
	ID   int64
	Name string
	Kind Kind

	// Tag replaces the kind's universal tag.  Explicit wraps the value in an
	// outer constructed encoding with Tag, keeping the inner tag.
	Tag      *tlv.Tag
	Explicit bool

	// Extensible is set when the type has an extension marker.
	Extensible bool

	// Value constrains INTEGER values.
	Value Range
	// Size constrains the length of strings and lists.  String lengths count
	// characters, BIT STRING lengths count bits.
	Size Range
	// Alphabet is the permitted alphabet of a restricted character string.
	// Empty means the kind's full character set.
	Alphabet string
	// FiniteReal disallows the special REAL values: infinities and NaN.
	FiniteReal bool

	// Items are the named values of an ENUMERATED.
	Items []Item
	// Components are the members of a SEQUENCE or SET, or the alternatives
	// of a CHOICE, in declaration order.
	Components []*Component
	// Element is the element type of a SEQUENCE OF or SET OF.
	Element *Type

	// Objects map discriminant keys to actual types, for open types.
	Objects []Object
	// Relation names the sibling component holding the discriminant of an
	// open type.
	Relation string
}

// Component is a named member of a SEQUENCE or SET, or an alternative of a
// CHOICE.
type Component struct {
	Name     string
	Type     *Type
	Optional bool
	// Default is substituted when the component is absent.  It is given in
	// the form of the schema: bool, an integer type, float64, string, []byte,
	// or the name of an enumerated item.
	Default interface{}
	// Extension marks an extension addition, a component following the
	// extension marker.
	Extension bool
}

// Item is a named value of an ENUMERATED.
type Item struct {
	Name      string `cbor:"1,keyasint" json:"name"`
	Value     int64  `cbor:"2,keyasint" json:"value"`
	Extension bool   `cbor:"3,keyasint,omitempty" json:"extension,omitempty"`
}

// Object is an entry of an information object set, associating a
// discriminant key with the type of the open type value.
type Object struct {
	Key  string
	Type *Type
}

// Range is a value or size constraint.  A bound is only effective when its
// Has flag is set.
type Range struct {
	Lower      int64 `cbor:"1,keyasint,omitempty" json:"lower,omitempty"`
	Upper      int64 `cbor:"2,keyasint,omitempty" json:"upper,omitempty"`
	HasLower   bool  `cbor:"3,keyasint,omitempty" json:"hasLower,omitempty"`
	HasUpper   bool  `cbor:"4,keyasint,omitempty" json:"hasUpper,omitempty"`
	Extensible bool  `cbor:"5,keyasint,omitempty" json:"extensible,omitempty"`
}

// Between returns the range [lower, upper].
func Between(lower, upper int64) Range {
	return Range{Lower: lower, Upper: upper, HasLower: true, HasUpper: true}
}

// AtLeast returns the range [lower, MAX].
func AtLeast(lower int64) Range {
	return Range{Lower: lower, HasLower: true}
}

// Fixed returns the range [n, n].
func Fixed(n int64) Range {
	return Between(n, n)
}

// Constrained reports whether both bounds are set.
func (r Range) Constrained() bool {
	return r.HasLower && r.HasUpper
}

// IsFixed reports whether the range holds a single value.
func (r Range) IsFixed() bool {
	return r.Constrained() && r.Lower == r.Upper
}

func (r Range) Contains(n int64) bool {
	return (!r.HasLower || n >= r.Lower) && (!r.HasUpper || n <= r.Upper)
}

func (r Range) ContainsBig(n *big.Int) bool {
	if r.HasLower && n.Cmp(big.NewInt(r.Lower)) < 0 {
		return false
	}
	if r.HasUpper && n.Cmp(big.NewInt(r.Upper)) > 0 {
		return false
	}
	return true
}

func (r Range) String() string {
	if !r.HasLower && !r.HasUpper {
		return "(MIN..MAX)"
	}
	lo, hi := "MIN", "MAX"
	if r.HasLower {
		lo = strconv.FormatInt(r.Lower, 10)
	}
	if r.HasUpper {
		hi = strconv.FormatInt(r.Upper, 10)
	}
	s := "(" + lo + ".." + hi
	if r.IsFixed() {
		s = "(" + lo
	}
	if r.Extensible {
		s += ", ..."
	}
	return s + ")"
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.Name != "" {
		return t.Name
	}
	return t.Kind.String()
}

// outerTag is the first tag of t's encoding, false for untagged CHOICE and
// open types.
func (t *Type) outerTag() (tlv.Tag, bool) {
	if t.Tag != nil {
		return *t.Tag, true
	}
	return t.Kind.UniversalTag()
}

// innerTag is the tag of t's encoding inside any explicit wrapper.
func (t *Type) innerTag() (tlv.Tag, bool) {
	if t.Tag != nil && !t.Explicit {
		return *t.Tag, true
	}
	return t.Kind.UniversalTag()
}

// matches reports whether an encoding starting with tag can be a value of
// t.  Untagged open types match any tag.
func (t *Type) matches(tag tlv.Tag) bool {
	if ot, ok := t.outerTag(); ok {
		return ot == tag
	}
	switch t.Kind {
	case KindChoice:
		for _, c := range t.Components {
			if c.Type.matches(tag) {
				return true
			}
		}
		return false
	case KindOpen:
		return true
	}
	return false
}

// minTag is the smallest tag an encoding of t can start with, used for
// canonical ordering.
func (t *Type) minTag() tlv.Tag {
	if ot, ok := t.outerTag(); ok {
		return ot
	}
	min := tlv.Tag{Class: tlv.ClassPrivate, Number: 1<<32 - 1}
	if t.Kind == KindChoice {
		for _, c := range t.Components {
			if m := c.Type.minTag(); m.Less(min) {
				min = m
			}
		}
	}
	return min
}

// Component finds a component by name.
func (t *Type) Component(name string) (int, *Component) {
	for i, c := range t.Components {
		if c.Name == name {
			return i, c
		}
	}
	return -1, nil
}

// Object finds the actual type for an information object key.
func (t *Type) Object(key string) (*Type, bool) {
	for _, o := range t.Objects {
		if o.Key == key {
			return o.Type, true
		}
	}
	return nil, false
}

// ItemByValue finds the enumerated item with value v.
func (t *Type) ItemByValue(v int64) (int, *Item) {
	for i := range t.Items {
		if t.Items[i].Value == v {
			return i, &t.Items[i]
		}
	}
	return -1, nil
}

// ItemByName finds the enumerated item named name.
func (t *Type) ItemByName(name string) (int, *Item) {
	for i := range t.Items {
		if t.Items[i].Name == name {
			return i, &t.Items[i]
		}
	}
	return -1, nil
}

// rootItems returns the indexes into Items of the root items, ordered by
// value, and of the extension items, in declaration order.
func (t *Type) rootItems() (root, ext []int) {
	for i, it := range t.Items {
		if it.Extension {
			ext = append(ext, i)
		} else {
			root = append(root, i)
		}
	}
	sort.SliceStable(root, func(a, b int) bool {
		return t.Items[root[a]].Value < t.Items[root[b]].Value
	})
	return root, ext
}

// split returns the indexes of the root components and of the extension
// additions.
func (t *Type) split() (root, ext []int) {
	for i, c := range t.Components {
		if c.Extension {
			ext = append(ext, i)
		} else {
			root = append(root, i)
		}
	}
	return root, ext
}

// canonicalOrder sorts component indexes by the canonical order of their
// tags, X.680 8.6.
func (t *Type) canonicalOrder(idx []int) []int {
	out := append([]int(nil), idx...)
	sort.SliceStable(out, func(a, b int) bool {
		return t.Components[out[a]].Type.minTag().Less(t.Components[out[b]].Type.minTag())
	})
	return out
}

var basicTypes [numKinds]*Type

func init() {
	for k := Kind(0); k < numKinds; k++ {
		basicTypes[k] = &Type{ID: BasicTypeID(k), Name: k.String(), Kind: k}
	}
}

// BasicTypeID is the reserved type id of the untagged, unconstrained type
// of kind k.  Basic type ids are negative, so they never collide with the
// ids of a compiled schema.
func BasicTypeID(k Kind) int64 {
	return -1 - int64(k)
}

// Basic returns the untagged, unconstrained type of kind k.  Structured
// kinds get a type without components or element, which is only useful as
// a starting point.
func Basic(k Kind) *Type {
	if !k.Valid() {
		panic(fmt.Sprintf("invalid kind %d", int(k)))
	}
	return basicTypes[k]
}
