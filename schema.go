package asnrt

import (
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Schema is the flat, serializable form of a module's type definitions, as
// produced by a schema compiler.  Entries reference each other by id: ids of
// entries are positive, negative ids designate basic types (see
// BasicTypeID), and 0 is no reference.
//
// Schemas are stored as CBOR, with integer map keys.  The json tags are for
// hand written and dumped schemas.
type Schema struct {
	Module  string        `cbor:"1,keyasint" json:"module"`
	Version int           `cbor:"2,keyasint,omitempty" json:"version,omitempty"`
	Entries []SchemaEntry `cbor:"3,keyasint" json:"entries"`
}

// SchemaEntry defines one type.
type SchemaEntry struct {
	ID   int64  `cbor:"1,keyasint" json:"id"`
	Name string `cbor:"2,keyasint,omitempty" json:"name,omitempty"`
	Kind Kind   `cbor:"3,keyasint" json:"kind"`
	// Tag is in ASN.1 notation, e.g. "[APPLICATION 3]" or "[0]".
	Tag        string         `cbor:"4,keyasint,omitempty" json:"tag,omitempty"`
	Explicit   bool           `cbor:"5,keyasint,omitempty" json:"explicit,omitempty"`
	Extensible bool           `cbor:"6,keyasint,omitempty" json:"extensible,omitempty"`
	Value      *Range         `cbor:"7,keyasint,omitempty" json:"value,omitempty"`
	Size       *Range         `cbor:"8,keyasint,omitempty" json:"size,omitempty"`
	Alphabet   string         `cbor:"9,keyasint,omitempty" json:"alphabet,omitempty"`
	FiniteReal bool           `cbor:"10,keyasint,omitempty" json:"finiteReal,omitempty"`
	Items      []Item         `cbor:"11,keyasint,omitempty" json:"items,omitempty"`
	Components []SchemaMember `cbor:"12,keyasint,omitempty" json:"components,omitempty"`
	Element    int64          `cbor:"13,keyasint,omitempty" json:"element,omitempty"`
	Objects    []SchemaObject `cbor:"14,keyasint,omitempty" json:"objects,omitempty"`
	Relation   string         `cbor:"15,keyasint,omitempty" json:"relation,omitempty"`
}

// SchemaMember is a component or alternative of a structured entry.
type SchemaMember struct {
	Name      string      `cbor:"1,keyasint" json:"name"`
	Type      int64       `cbor:"2,keyasint" json:"type"`
	Optional  bool        `cbor:"3,keyasint,omitempty" json:"optional,omitempty"`
	Default   interface{} `cbor:"4,keyasint,omitempty" json:"default,omitempty"`
	Extension bool        `cbor:"5,keyasint,omitempty" json:"extension,omitempty"`
}

// SchemaObject is an information object of an open type entry.
type SchemaObject struct {
	Key  string `cbor:"1,keyasint" json:"key"`
	Type int64  `cbor:"2,keyasint" json:"type"`
}

var (
	schemaEncMode cbor.EncMode
	schemaDecMode cbor.DecMode
)

func init() {
	var err error
	schemaEncMode, err = cbor.EncOptions{Sort: cbor.SortCoreDeterministic}.EncMode()
	if err != nil {
		panic(err)
	}
	schemaDecMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeSchema writes s to w in the compiled schema format.  The encoding
// is deterministic.
func EncodeSchema(w io.Writer, s *Schema) error {
	if s == nil {
		return errorf(ErrNullPointer, "nil schema")
	}
	if err := schemaEncMode.NewEncoder(w).Encode(s); err != nil {
		return classify(err, ErrIO)
	}
	return nil
}

// MarshalSchema returns s in the compiled schema format.
func MarshalSchema(s *Schema) ([]byte, error) {
	b, err := schemaEncMode.Marshal(s)
	if err != nil {
		return nil, classify(err, ErrInvalidEncodeRule)
	}
	return b, nil
}

// DecodeSchema reads one compiled schema from r.  Malformed schemas fail
// with ErrInvalidEncodeRule, failures of r with ErrIO.
func DecodeSchema(r io.Reader) (*Schema, error) {
	var s Schema
	err := schemaDecMode.NewDecoder(r).Decode(&s)
	if err != nil {
		var syntaxErr *cbor.SyntaxError
		var typeErr *cbor.UnmarshalTypeError
		var dupErr *cbor.DupMapKeyError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &dupErr) {
			return nil, classify(err, ErrInvalidEncodeRule)
		}
		return nil, classify(err, ErrIO)
	}
	return &s, nil
}
