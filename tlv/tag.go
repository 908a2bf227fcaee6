package tlv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ansel1/merry"
)

// Class is the class of an identifier octet.
type Class uint8

const (
	ClassUniversal Class = iota
	ClassApplication
	ClassContext
	ClassPrivate
)

func (c Class) String() string {
	switch c {
	case ClassUniversal:
		return "UNIVERSAL"
	case ClassApplication:
		return "APPLICATION"
	case ClassContext:
		return "CONTEXT"
	case ClassPrivate:
		return "PRIVATE"
	}
	return fmt.Sprintf("Class(%d)", uint8(c))
}

// Universal tag numbers, X.680 8.4.
const (
	UniversalBoolean          uint32 = 1
	UniversalInteger          uint32 = 2
	UniversalBitString        uint32 = 3
	UniversalOctetString      uint32 = 4
	UniversalNull             uint32 = 5
	UniversalObjectIdentifier uint32 = 6
	UniversalObjectDescriptor uint32 = 7
	UniversalExternal         uint32 = 8
	UniversalReal             uint32 = 9
	UniversalEnumerated       uint32 = 10
	UniversalEmbeddedPDV      uint32 = 11
	UniversalUTF8String       uint32 = 12
	UniversalRelativeOID      uint32 = 13
	UniversalSequence         uint32 = 16
	UniversalSet              uint32 = 17
	UniversalNumericString    uint32 = 18
	UniversalPrintableString  uint32 = 19
	UniversalTeletexString    uint32 = 20
	UniversalVideotexString   uint32 = 21
	UniversalIA5String        uint32 = 22
	UniversalUTCTime          uint32 = 23
	UniversalGeneralizedTime  uint32 = 24
	UniversalGraphicString    uint32 = 25
	UniversalVisibleString    uint32 = 26
	UniversalGeneralString    uint32 = 27
	UniversalUniversalString  uint32 = 28
	UniversalCharacterString  uint32 = 29
	UniversalBMPString        uint32 = 30
)

var universalNames = map[uint32]string{
	UniversalBoolean:          "BOOLEAN",
	UniversalInteger:          "INTEGER",
	UniversalBitString:        "BIT STRING",
	UniversalOctetString:      "OCTET STRING",
	UniversalNull:             "NULL",
	UniversalObjectIdentifier: "OBJECT IDENTIFIER",
	UniversalObjectDescriptor: "ObjectDescriptor",
	UniversalExternal:         "EXTERNAL",
	UniversalReal:             "REAL",
	UniversalEnumerated:       "ENUMERATED",
	UniversalEmbeddedPDV:      "EMBEDDED PDV",
	UniversalUTF8String:       "UTF8String",
	UniversalRelativeOID:      "RELATIVE-OID",
	UniversalSequence:         "SEQUENCE",
	UniversalSet:              "SET",
	UniversalNumericString:    "NumericString",
	UniversalPrintableString:  "PrintableString",
	UniversalTeletexString:    "TeletexString",
	UniversalVideotexString:   "VideotexString",
	UniversalIA5String:        "IA5String",
	UniversalUTCTime:          "UTCTime",
	UniversalGeneralizedTime:  "GeneralizedTime",
	UniversalGraphicString:    "GraphicString",
	UniversalVisibleString:    "VisibleString",
	UniversalGeneralString:    "GeneralString",
	UniversalUniversalString:  "UniversalString",
	UniversalCharacterString:  "CHARACTER STRING",
	UniversalBMPString:        "BMPString",
}

var universalNumbers = map[string]uint32{}

func init() {
	for n, s := range universalNames {
		universalNumbers[s] = n
	}
}

// Tag identifies an ASN.1 type on the wire: a class plus a tag number.
type Tag struct {
	Class  Class
	Number uint32
}

// Universal returns the UNIVERSAL class tag with number n.
func Universal(n uint32) Tag {
	return Tag{Class: ClassUniversal, Number: n}
}

// Context returns the context-specific tag with number n.
func Context(n uint32) Tag {
	return Tag{Class: ClassContext, Number: n}
}

// String renders the tag in ASN.1 notation.  Universal tags with a known
// name print as that name, e.g. "INTEGER"; others print as "[APPLICATION 3]"
// or "[3]" for context-specific tags.
func (t Tag) String() string {
	switch t.Class {
	case ClassUniversal:
		if s, ok := universalNames[t.Number]; ok {
			return s
		}
		return "[UNIVERSAL " + strconv.FormatUint(uint64(t.Number), 10) + "]"
	case ClassContext:
		return "[" + strconv.FormatUint(uint64(t.Number), 10) + "]"
	default:
		return "[" + t.Class.String() + " " + strconv.FormatUint(uint64(t.Number), 10) + "]"
	}
}

// Less orders tags canonically, X.680 8.6: by class (universal, application,
// context-specific, private), then by number.
func (t Tag) Less(o Tag) bool {
	if t.Class != o.Class {
		return t.Class < o.Class
	}
	return t.Number < o.Number
}

func (t Tag) MarshalText() (text []byte, err error) {
	return []byte(t.String()), nil
}

func (t *Tag) UnmarshalText(text []byte) (err error) {
	*t, err = ParseTag(string(text))
	return
}

// ParseTag parses the notation produced by Tag.String.
func ParseTag(s string) (Tag, error) {
	s = strings.TrimSpace(s)
	if n, ok := universalNumbers[s]; ok {
		return Universal(n), nil
	}
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return Tag{}, merry.Here(ErrInvalidTag).Appendf("%q", s)
	}
	fields := strings.Fields(s[1 : len(s)-1])
	var t Tag
	var num string
	switch len(fields) {
	case 1:
		t.Class = ClassContext
		num = fields[0]
	case 2:
		switch fields[0] {
		case "UNIVERSAL":
			t.Class = ClassUniversal
		case "APPLICATION":
			t.Class = ClassApplication
		case "CONTEXT":
			t.Class = ClassContext
		case "PRIVATE":
			t.Class = ClassPrivate
		default:
			return Tag{}, merry.Here(ErrInvalidTag).Appendf("unknown class in %q", s)
		}
		num = fields[1]
	default:
		return Tag{}, merry.Here(ErrInvalidTag).Appendf("%q", s)
	}
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return Tag{}, merry.Here(ErrInvalidTag).WithCause(err).Appendf("%q", s)
	}
	t.Number = uint32(n)
	return t, nil
}
