package asnrt

import (
	"strconv"
	"strings"

	"github.com/gemalto/flume"
)

var log = flume.New("asnrt")

// Rules selects an encoding rule set.  The numbering matches the rule
// identifiers of compiled schemas.
type Rules int

const (
	BER Rules = iota
	CER
	DER
	UPER
	APER
)

var rulesNames = []string{"BER", "CER", "DER", "UPER", "APER"}

func (r Rules) String() string {
	if r.Valid() {
		return rulesNames[r]
	}
	return "Rules(" + strconv.Itoa(int(r)) + ")"
}

func (r Rules) Valid() bool {
	return r >= BER && r <= APER
}

// Packed reports whether r is one of the bit-packed rule sets.  Packed
// buffers count positions in bits, the others in bytes.
func (r Rules) Packed() bool {
	return r == UPER || r == APER
}

// Aligned reports whether r pads fields to octet boundaries.
func (r Rules) Aligned() bool {
	return r == APER
}

// Canonical reports whether r allows a single encoding per value.
func (r Rules) Canonical() bool {
	return r == CER || r == DER
}

// ParseRules parses a rule set name, case insensitive.
func ParseRules(s string) (Rules, error) {
	for i, n := range rulesNames {
		if strings.EqualFold(s, n) {
			return Rules(i), nil
		}
	}
	return 0, errorf(ErrInvalidEncodeRule, "unknown rules %q", s)
}

func (r Rules) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rules) UnmarshalText(text []byte) (err error) {
	*r, err = ParseRules(string(text))
	return
}

// Marshal encodes v as a value of type t.  The converter for v's type is
// bound with DefaultBinder.
func Marshal(rules Rules, t *Type, v interface{}) ([]byte, error) {
	val, err := valueOf(v)
	if err != nil {
		return nil, err
	}
	c, err := DefaultBinder.Bind(t, val.Type())
	if err != nil {
		return nil, err
	}
	buf, err := Allocate(64, true, rules)
	if err != nil {
		return nil, err
	}
	if err := EncodeValue(buf, val, t, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data as a value of type t into v, which must be a
// non-nil pointer.  Trailing bytes after the value are an error.
func Unmarshal(rules Rules, data []byte, t *Type, v interface{}) error {
	val, err := pointee(v)
	if err != nil {
		return err
	}
	c, err := DefaultBinder.Bind(t, val.Type())
	if err != nil {
		return err
	}
	buf, err := Wrap(data, rules)
	if err != nil {
		return err
	}
	if err := DecodeValue(buf, val, t, c); err != nil {
		return err
	}
	if rest := buf.Remaining(); rest > 0 {
		if !rules.Packed() || rest >= 8 {
			return errorf(ErrExtraComponent, "%d trailing %s after value", rest, buf.unitName())
		}
	}
	return nil
}
