package asnrt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gemalto/asnrt/tlv"
)

// Kind identifies the ASN.1 type a Type describes.  The numbering is part
// of the compiled schema format and must not change.
type Kind int

const (
	KindBoolean Kind = iota
	KindNull
	KindInteger
	KindEnumerated
	KindReal
	KindBitString
	KindOctetString
	KindObjectIdentifier
	KindRelativeOID
	KindNumericString
	KindPrintableString
	KindVisibleString
	KindIA5String
	KindTeletexString
	KindVideotexString
	KindGraphicString
	KindGeneralString
	KindUniversalString
	KindBMPString
	KindUTF8String
	KindCharacterString
	KindObjectDescriptor
	KindGeneralizedTime
	KindUTCTime
	KindSequence
	KindSet
	KindSequenceOf
	KindSetOf
	KindChoice
	// KindOpen is an open type: a class field whose type is chosen by an
	// information object.
	KindOpen

	numKinds = iota
)

var kindNames = [numKinds]string{
	"BOOLEAN",
	"NULL",
	"INTEGER",
	"ENUMERATED",
	"REAL",
	"BIT STRING",
	"OCTET STRING",
	"OBJECT IDENTIFIER",
	"RELATIVE-OID",
	"NumericString",
	"PrintableString",
	"VisibleString",
	"IA5String",
	"TeletexString",
	"VideotexString",
	"GraphicString",
	"GeneralString",
	"UniversalString",
	"BMPString",
	"UTF8String",
	"CHARACTER STRING",
	"ObjectDescriptor",
	"GeneralizedTime",
	"UTCTime",
	"SEQUENCE",
	"SET",
	"SEQUENCE OF",
	"SET OF",
	"CHOICE",
	"OPEN TYPE",
}

var universalTags = [numKinds]uint32{
	KindBoolean:          tlv.UniversalBoolean,
	KindNull:             tlv.UniversalNull,
	KindInteger:          tlv.UniversalInteger,
	KindEnumerated:       tlv.UniversalEnumerated,
	KindReal:             tlv.UniversalReal,
	KindBitString:        tlv.UniversalBitString,
	KindOctetString:      tlv.UniversalOctetString,
	KindObjectIdentifier: tlv.UniversalObjectIdentifier,
	KindRelativeOID:      tlv.UniversalRelativeOID,
	KindNumericString:    tlv.UniversalNumericString,
	KindPrintableString:  tlv.UniversalPrintableString,
	KindVisibleString:    tlv.UniversalVisibleString,
	KindIA5String:        tlv.UniversalIA5String,
	KindTeletexString:    tlv.UniversalTeletexString,
	KindVideotexString:   tlv.UniversalVideotexString,
	KindGraphicString:    tlv.UniversalGraphicString,
	KindGeneralString:    tlv.UniversalGeneralString,
	KindUniversalString:  tlv.UniversalUniversalString,
	KindBMPString:        tlv.UniversalBMPString,
	KindUTF8String:       tlv.UniversalUTF8String,
	KindCharacterString:  tlv.UniversalCharacterString,
	KindObjectDescriptor: tlv.UniversalObjectDescriptor,
	KindGeneralizedTime:  tlv.UniversalGeneralizedTime,
	KindUTCTime:          tlv.UniversalUTCTime,
	KindSequence:         tlv.UniversalSequence,
	KindSet:              tlv.UniversalSet,
	KindSequenceOf:       tlv.UniversalSequence,
	KindSetOf:            tlv.UniversalSet,
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// MarshalText encodes k as its ASN.1 name, e.g. "SEQUENCE OF".
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, errorf(ErrInvalidEncodeRule, "invalid kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText accepts a kind's ASN.1 name, case insensitively, or its
// number.
func (k *Kind) UnmarshalText(text []byte) error {
	s := string(text)
	for i, name := range kindNames {
		if strings.EqualFold(name, s) {
			*k = Kind(i)
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !Kind(n).Valid() {
		return errorf(ErrInvalidEncodeRule, "unknown kind %q", s)
	}
	*k = Kind(n)
	return nil
}

// UniversalTag returns the tag a value of kind k carries when untagged.
// CHOICE and open types have none.
func (k Kind) UniversalTag() (tlv.Tag, bool) {
	if !k.Valid() || k == KindChoice || k == KindOpen {
		return tlv.Tag{}, false
	}
	return tlv.Universal(universalTags[k]), true
}

// IsString reports whether k is one of the restricted character string
// kinds, or one of the time kinds, which are encoded as strings.
func (k Kind) IsString() bool {
	return k >= KindNumericString && k <= KindUTCTime && k != KindCharacterString
}

// IsTime reports whether k is GeneralizedTime or UTCTime.
func (k Kind) IsTime() bool {
	return k == KindGeneralizedTime || k == KindUTCTime
}

// IsList reports whether k is SEQUENCE OF or SET OF.
func (k Kind) IsList() bool {
	return k == KindSequenceOf || k == KindSetOf
}

// IsComposite reports whether k is SEQUENCE or SET.
func (k Kind) IsComposite() bool {
	return k == KindSequence || k == KindSet
}

// constructed reports whether values of kind k use the constructed form
// when encoded with tag-length-value rules.
func (k Kind) constructed() bool {
	switch k {
	case KindSequence, KindSet, KindSequenceOf, KindSetOf, KindCharacterString:
		return true
	}
	return false
}
