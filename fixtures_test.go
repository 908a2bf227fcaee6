package asnrt

import (
	"math/big"
	"reflect"
	"time"

	"github.com/gemalto/asnrt/tlv"
	"github.com/google/uuid"
)

func tagged(t *Type, tag tlv.Tag, explicit bool) *Type {
	c := *t
	c.Tag = &tag
	c.Explicit = explicit
	return &c
}

// newValue returns a pointer to a new zero value of t.
func newValue(t reflect.Type) interface{} {
	return reflect.New(t).Interface()
}

func listOf(k Kind, elem *Type) *Type {
	return &Type{Kind: k, Element: elem}
}

func sized(t *Type, r Range) *Type {
	c := *t
	c.Size = r
	return &c
}

// Record ::= SEQUENCE {
//   serial   INTEGER,
//   name     UTF8String,
//   active   BOOLEAN DEFAULT TRUE,
//   comment  [0] IA5String OPTIONAL
// }
func recordType() *Type {
	return &Type{
		Name: "Record",
		Kind: KindSequence,
		Components: []*Component{
			{Name: "serial", Type: Basic(KindInteger)},
			{Name: "name", Type: Basic(KindUTF8String)},
			{Name: "active", Type: Basic(KindBoolean), Default: true},
			{Name: "comment", Type: tagged(Basic(KindIA5String), tlv.Context(0), false), Optional: true},
		},
	}
}

type record struct {
	Serial  int64
	Name    string
	Active  bool
	Comment *string
}

// Shape ::= CHOICE {
//   circle  [0] INTEGER,
//   label   [1] UTF8String
// }
func shapeType() *Type {
	return &Type{
		Name: "Shape",
		Kind: KindChoice,
		Components: []*Component{
			{Name: "circle", Type: tagged(Basic(KindInteger), tlv.Context(0), false)},
			{Name: "label", Type: tagged(Basic(KindUTF8String), tlv.Context(1), false)},
		},
	}
}

type shape struct {
	Circle *int32
	Label  *string
}

// Color ::= ENUMERATED { red(0), green(1), blue(2), ..., violet(7) }
func colorType() *Type {
	return &Type{
		Name:       "Color",
		Kind:       KindEnumerated,
		Extensible: true,
		Items: []Item{
			{Name: "red", Value: 0},
			{Name: "green", Value: 1},
			{Name: "blue", Value: 2},
			{Name: "violet", Value: 7, Extension: true},
		},
	}
}

// Attribute ::= SEQUENCE {
//   id     INTEGER,
//   value  ATTRIBUTE.&Type({Attributes}{@id})
// }
//
// with the information objects 1 -> UTF8String, 2 -> Record.
func attributeType() *Type {
	value := &Type{
		Kind:     KindOpen,
		Relation: "id",
		Objects: []Object{
			{Key: "1", Type: Basic(KindUTF8String)},
			{Key: "2", Type: recordType()},
		},
	}
	return &Type{
		Name: "Attribute",
		Kind: KindSequence,
		Components: []*Component{
			{Name: "id", Type: Basic(KindInteger)},
			{Name: "value", Type: value},
		},
	}
}

type attribute struct {
	ID    int32
	Value interface{}
}

// everything holds one value of each simple kind.
type everything struct {
	Bool      bool
	Null      Null
	Int       int32
	Long      int64
	Unsigned  uint64
	Big       big.Int
	Enum      string
	Real      float64
	Float     float32
	Bits      BitString
	Octets    []byte
	OID       ObjectIdentifier
	UUID      uuid.UUID
	RelOID    ObjectIdentifier
	Numeric   string
	Printable string
	Visible   string
	IA5       string
	Teletex   string
	BMP       string
	Universal string
	UTF8      string
	Generic   []byte `asn:"character"`
	GenTime   time.Time
	UTCTime   string
	Colors    []int64
	Shape     shape
}

func everythingType() *Type {
	comp := func(name string, t *Type) *Component {
		return &Component{Name: name, Type: t}
	}
	ctx := func(n uint32, t *Type) *Type {
		return tagged(t, tlv.Context(n), false)
	}
	return &Type{
		Name: "Everything",
		Kind: KindSequence,
		Components: []*Component{
			comp("bool", Basic(KindBoolean)),
			comp("null", Basic(KindNull)),
			comp("int", &Type{Kind: KindInteger, Value: Between(-1000, 1000)}),
			comp("long", Basic(KindInteger)),
			comp("unsigned", ctx(0, &Type{Kind: KindInteger, Value: AtLeast(0)})),
			comp("big", ctx(1, Basic(KindInteger))),
			comp("enum", colorType()),
			comp("real", Basic(KindReal)),
			comp("float", ctx(2, Basic(KindReal))),
			comp("bits", Basic(KindBitString)),
			comp("octets", &Type{Kind: KindOctetString, Size: Between(0, 8)}),
			comp("OID", Basic(KindObjectIdentifier)),
			comp("UUID", ctx(3, Basic(KindObjectIdentifier))),
			comp("relOID", Basic(KindRelativeOID)),
			comp("numeric", Basic(KindNumericString)),
			comp("printable", &Type{Kind: KindPrintableString, Size: Between(1, 16)}),
			comp("visible", Basic(KindVisibleString)),
			comp("IA5", Basic(KindIA5String)),
			comp("teletex", Basic(KindTeletexString)),
			comp("BMP", Basic(KindBMPString)),
			comp("universal", Basic(KindUniversalString)),
			comp("UTF8", Basic(KindUTF8String)),
			comp("character", Basic(KindCharacterString)),
			comp("genTime", Basic(KindGeneralizedTime)),
			comp("UTCTime", Basic(KindUTCTime)),
			comp("colors", listOf(KindSequenceOf, Basic(KindInteger))),
			comp("shape", shapeType()),
		},
	}
}

func sampleEverything() everything {
	label := "hi"
	e := everything{
		Bool:      true,
		Int:       -129,
		Long:      1 << 40,
		Unsigned:  1<<64 - 1,
		Enum:      "blue",
		Real:      -2.5,
		Float:     0.75,
		Bits:      NewBitString(1, 0, 1, 1, 0, 0, 1, 0, 1),
		Octets:    []byte{0xca, 0xfe},
		OID:       ObjectIdentifier{1, 2, 840, 113549, 1},
		UUID:      uuid.MustParse("f81d4fae-7dec-11d0-a765-00a0c91e6bf6"),
		RelOID:    ObjectIdentifier{8571, 3, 2},
		Numeric:   "123 456",
		Printable: "Hello, World.",
		Visible:   "~visible~",
		IA5:       "tab\there",
		Teletex:   "café",
		BMP:       "Grüße €",
		Universal: "𝄞 clef",
		UTF8:      "日本語",
		Generic:   []byte{1, 2, 3},
		GenTime:   time.Date(2021, 3, 4, 5, 6, 7, 250000000, time.UTC),
		UTCTime:   "210304050607Z",
		Colors:    []int64{1, -1, 300},
		Shape:     shape{Label: &label},
	}
	e.Big.SetString("123456789012345678901234567890", 10)
	return e
}
