package tlv

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ansel1/merry"
)

// TLV is a view over a single BER encoded value: identifier octets, length
// octets, then contents.  The accessors never panic on truncated input.
type TLV []byte

// Header parses the identifier and length octets.  n is the number of
// header octets.
func (t TLV) Header() (h Header, n int, err error) {
	r := bytes.NewReader(t)
	h, err = ReadHeader(r)
	return h, len(t) - r.Len(), err
}

func (t TLV) Tag() Tag {
	h, _, _ := t.Header()
	return h.Tag
}

func (t TLV) Constructed() bool {
	return len(t) > 0 && t[0]&0x20 != 0
}

// Len is the number of content octets.
func (t TLV) Len() int {
	h, _, err := t.Header()
	if err != nil || h.Length < 0 {
		return 0
	}
	return h.Length
}

// FullLen is the number of octets in the whole encoding.
func (t TLV) FullLen() int {
	h, n, err := t.Header()
	if err != nil || h.Length < 0 {
		return n
	}
	return n + h.Length
}

// Value returns the content octets, or as much of them as is present.
func (t TLV) Value() []byte {
	h, n, err := t.Header()
	if err != nil || h.Length <= 0 {
		return nil
	}
	if len(t) < n+h.Length {
		return t[n:]
	}
	return t[n : n+h.Length]
}

// Valid checks the header and length of t and, when constructed, of every
// nested value.
func (t TLV) Valid() error {
	h, n, err := t.Header()
	if err != nil {
		return err
	}
	if h.Length == LengthIndefinite {
		return merry.Here(ErrInvalidLength).Append("indefinite length")
	}
	if len(t) < n+h.Length {
		return merry.Here(ErrValueTruncated)
	}
	if h.Constructed {
		inner := TLV(t[n : n+h.Length])
		for len(inner) > 0 {
			if err := inner.Valid(); err != nil {
				return merry.Prepend(err, h.Tag.String())
			}
			inner = inner[inner.FullLen():]
		}
	}
	return nil
}

// Next returns the value following t, or nil if t is the last one or is
// invalid.
func (t TLV) Next() TLV {
	if t.Valid() != nil {
		return nil
	}
	n := t[t.FullLen():]
	if len(n) == 0 {
		return nil
	}
	return n
}

func (t TLV) String() string {
	buf := bytes.NewBuffer(nil)
	_ = Print(buf, "", "  ", t)
	return buf.String()
}

// Print writes an indented, human readable rendering of t and any values
// following it.  Each line is prefixed with prefix, nested values get an
// additional indent.
func Print(w io.Writer, prefix, indent string, t TLV) (err error) {
	for first := true; len(t) > 0; first = false {
		if !first {
			fmt.Fprint(w, "\n")
		}
		if err = print1(w, prefix, indent, t); err != nil {
			return
		}
		t = t.Next()
	}
	return nil
}

func print1(w io.Writer, prefix, indent string, t TLV) (err error) {
	h, _, herr := t.Header()
	fmt.Fprintf(w, "%s%v (%d):", prefix, h.Tag, h.Length)

	if err = t.Valid(); err != nil {
		fmt.Fprintf(w, " (%s)", err.Error())
		switch {
		case herr != nil, merry.Is(err, ErrInvalidLength):
			fmt.Fprintf(w, " %#x", []byte(t))
			return
		case merry.Is(err, ErrValueTruncated):
			fmt.Fprintf(w, " %#x", t.Value())
			return
		}
	}

	if h.Constructed {
		s := TLV(t.Value())
		for s != nil {
			fmt.Fprint(w, "\n")
			if err = print1(w, prefix+indent, indent, s); err != nil {
				// no markers to pick back up again, so give up
				return
			}
			s = s.Next()
		}
		return
	}

	if v := formatValue(h.Tag, t.Value()); v != "" {
		fmt.Fprint(w, " ", v)
	}
	return
}

func formatValue(tag Tag, v []byte) string {
	if tag.Class != ClassUniversal {
		return fmt.Sprintf("%#x", v)
	}
	switch tag.Number {
	case UniversalNull:
		return ""
	case UniversalBoolean:
		if len(v) == 1 {
			return fmt.Sprint(v[0] != 0)
		}
	case UniversalInteger, UniversalEnumerated:
		if len(v) > 0 {
			return ParseInt(new(big.Int), v).String()
		}
	case UniversalObjectIdentifier, UniversalRelativeOID:
		if arcs, err := ParseOID(v, tag.Number == UniversalRelativeOID); err == nil {
			return FormatOID(arcs)
		}
	case UniversalUTF8String, UniversalNumericString, UniversalPrintableString, UniversalIA5String,
		UniversalVisibleString, UniversalUTCTime, UniversalGeneralizedTime, UniversalObjectDescriptor:
		if utf8.Valid(v) {
			return fmt.Sprintf("%q", v)
		}
	}
	if len(v) == 0 {
		return ""
	}
	return fmt.Sprintf("%#x", v)
}

// PrintPrettyHex writes the hex encoding of t, one value per line, with
// the header octets separated from the contents.  Any value that can't be
// parsed is printed as plain hex.  The output is still valid input to
// Hex2bytes.
func PrintPrettyHex(w io.Writer, prefix, indent string, t TLV) error {
	for first := true; len(t) > 0; first = false {
		if !first {
			fmt.Fprint(w, "\n")
		}
		if err := prettyHex1(w, prefix, indent, t); err != nil {
			return err
		}
		if t.Valid() != nil {
			return nil
		}
		t = t[t.FullLen():]
	}
	return nil
}

func prettyHex1(w io.Writer, prefix, indent string, t TLV) error {
	h, n, err := t.Header()
	if err != nil || h.Length < 0 {
		_, err = fmt.Fprint(w, prefix, hex.EncodeToString(t))
		return err
	}
	id := t[:identifierLen(t)]
	l := t[len(id):n]
	if len(t) < n+h.Length {
		_, err = fmt.Fprintf(w, "%s%x | %x\n%s", prefix, []byte(id), []byte(l), hex.EncodeToString(t[n:]))
		return err
	}
	if h.Constructed && t.Valid() == nil {
		fmt.Fprintf(w, "%s%x | %x", prefix, []byte(id), []byte(l))
		s := TLV(t[n : n+h.Length])
		for len(s) > 0 {
			fmt.Fprint(w, "\n")
			if err := prettyHex1(w, prefix+indent, indent, s); err != nil {
				return err
			}
			s = s[s.FullLen():]
		}
		return nil
	}
	if h.Length == 0 {
		_, err = fmt.Fprintf(w, "%s%x | %x", prefix, []byte(id), []byte(l))
		return err
	}
	_, err = fmt.Fprintf(w, "%s%x | %x | %x", prefix, []byte(id), []byte(l), []byte(t[n:n+h.Length]))
	return err
}

// identifierLen is the number of identifier octets at the start of t,
// which must hold a parsable header.
func identifierLen(t TLV) int {
	if t[0]&0x1f != 0x1f {
		return 1
	}
	i := 1
	for t[i]&0x80 != 0 {
		i++
	}
	return i + 1
}

// Hex2bytes converts a hex string to bytes.  Any non-hex characters in the
// string are stripped first.  Panics on error.
func Hex2bytes(s string) []byte {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'F':
		case r >= 'a' && r <= 'f':
		default:
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

type jsonTLV struct {
	Tag         string          `json:"tag"`
	Constructed bool            `json:"constructed,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON renders t as {"tag": ..., "value": ...}.  Constructed values
// hold an array of nested values, primitive values hold their contents as a
// hex string.
func (t TLV) MarshalJSON() ([]byte, error) {
	if err := t.Valid(); err != nil {
		return nil, err
	}
	h, _, _ := t.Header()
	jt := jsonTLV{Tag: h.Tag.String(), Constructed: h.Constructed}
	if h.Constructed {
		children := []TLV{}
		for s := TLV(t.Value()); len(s) > 0; s = s[s.FullLen():] {
			children = append(children, s[:s.FullLen()])
		}
		b, err := json.Marshal(children)
		if err != nil {
			return nil, err
		}
		jt.Value = b
	} else {
		b, err := json.Marshal(hex.EncodeToString(t.Value()))
		if err != nil {
			return nil, err
		}
		jt.Value = b
	}
	return json.Marshal(jt)
}

// UnmarshalJSON parses the format produced by MarshalJSON.
func (t *TLV) UnmarshalJSON(b []byte) error {
	var jt jsonTLV
	if err := json.Unmarshal(b, &jt); err != nil {
		return merry.Wrap(err)
	}
	tag, err := ParseTag(jt.Tag)
	if err != nil {
		return err
	}
	var content []byte
	if jt.Constructed {
		var children []TLV
		if len(jt.Value) > 0 {
			if err := json.Unmarshal(jt.Value, &children); err != nil {
				return merry.Wrap(err)
			}
		}
		for _, c := range children {
			content = append(content, c...)
		}
	} else if len(jt.Value) > 0 {
		var s string
		if err := json.Unmarshal(jt.Value, &s); err != nil {
			return merry.Wrap(err)
		}
		content, err = hex.DecodeString(s)
		if err != nil {
			return merry.Wrap(err)
		}
	}
	out := AppendHeader(nil, Header{Tag: tag, Constructed: jt.Constructed, Length: len(content)})
	*t = append(out, content...)
	return nil
}
