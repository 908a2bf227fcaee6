package asnrt

import (
	"math/bits"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

const (
	numericChars   = " 0123456789"
	printableChars = " '()+,-./0123456789:=?ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	bmpEncoding       encoding.Encoding = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	universalEncoding encoding.Encoding = utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)
	latinEncoding     encoding.Encoding = charmap.ISO8859_1
)

// charset returns the 8 bit encoding for kinds whose octets aren't UTF-8.
func charset(k Kind) encoding.Encoding {
	switch k {
	case KindBMPString:
		return bmpEncoding
	case KindUniversalString:
		return universalEncoding
	case KindTeletexString, KindVideotexString, KindGraphicString, KindGeneralString, KindObjectDescriptor:
		return latinEncoding
	}
	return nil
}

// permitted reports whether r belongs to the character set of kind k.
func permitted(k Kind, r rune) bool {
	switch k {
	case KindNumericString:
		return strings.ContainsRune(numericChars, r)
	case KindPrintableString:
		return strings.ContainsRune(printableChars, r)
	case KindVisibleString, KindGeneralizedTime, KindUTCTime:
		return r >= 0x20 && r <= 0x7e
	case KindIA5String:
		return r <= 0x7f
	case KindBMPString:
		return r <= 0xffff && (r < 0xd800 || r > 0xdfff)
	case KindTeletexString, KindVideotexString, KindGraphicString, KindGeneralString, KindObjectDescriptor:
		return r <= 0xff
	}
	return r != utf8.RuneError
}

// checkString validates s against the character set, permitted alphabet
// and size constraint of t.
func checkString(t *Type, s string) error {
	if !utf8.ValidString(s) {
		return errorf(ErrNotPermittedAlphabet, "%v: invalid UTF-8", t)
	}
	n := 0
	for _, r := range s {
		if !permitted(t.Kind, r) || t.Alphabet != "" && !strings.ContainsRune(t.Alphabet, r) {
			return errorf(ErrNotPermittedAlphabet, "%v: character %q", t, r)
		}
		n++
	}
	if !t.Size.Extensible && !t.Size.Contains(int64(n)) {
		return errorf(ErrInvalidSize, "%v: %d characters, expected %v", t, n, t.Size)
	}
	return nil
}

// encodeChars returns the content octets of s for kind k.
func encodeChars(k Kind, s string) ([]byte, error) {
	if cs := charset(k); cs != nil {
		b, err := cs.NewEncoder().String(s)
		if err != nil {
			return nil, errorf(ErrNotPermittedAlphabet, "%v: %v", k, err)
		}
		return []byte(b), nil
	}
	return []byte(s), nil
}

func decodeChars(k Kind, data []byte) (string, error) {
	switch k {
	case KindBMPString:
		if len(data)%2 != 0 {
			return "", errorf(ErrInvalidLength, "BMPString of %d octets", len(data))
		}
	case KindUniversalString:
		if len(data)%4 != 0 {
			return "", errorf(ErrInvalidLength, "UniversalString of %d octets", len(data))
		}
	}
	if cs := charset(k); cs != nil {
		b, err := cs.NewDecoder().Bytes(data)
		if err != nil {
			return "", errorf(ErrNotPermittedAlphabet, "%v: %v", k, err)
		}
		return string(b), nil
	}
	return string(data), nil
}

// alphabet is the effective character set of a known-multiplier string
// type in packed encodings, X.691 30.5.
type alphabet struct {
	// chars is sorted.  A nil chars is the full range [0, max].
	chars   []rune
	max     rune
	bits    int
	indexed bool
}

// knownMultiplier reports whether k is a known-multiplier character string
// kind in packed encodings.  Times are encoded as VisibleString.
func knownMultiplier(k Kind) bool {
	switch k {
	case KindNumericString, KindPrintableString, KindVisibleString, KindIA5String,
		KindBMPString, KindUniversalString, KindGeneralizedTime, KindUTCTime:
		return true
	}
	return false
}

func rangeOf(lo, hi rune) []rune {
	out := make([]rune, 0, hi-lo+1)
	for r := lo; r <= hi; r++ {
		out = append(out, r)
	}
	return out
}

func newAlphabet(t *Type, aligned bool) *alphabet {
	a := &alphabet{}
	switch {
	case t.Alphabet != "" && !t.Kind.IsTime():
		seen := map[rune]bool{}
		for _, r := range t.Alphabet {
			if !seen[r] {
				seen[r] = true
				a.chars = append(a.chars, r)
			}
		}
		sort.Slice(a.chars, func(i, j int) bool { return a.chars[i] < a.chars[j] })
	case t.Kind == KindNumericString:
		a.chars = []rune(numericChars)
	case t.Kind == KindPrintableString:
		a.chars = []rune(printableChars)
		sort.Slice(a.chars, func(i, j int) bool { return a.chars[i] < a.chars[j] })
	case t.Kind == KindIA5String:
		a.chars = rangeOf(0, 0x7f)
	case t.Kind == KindBMPString:
		a.max = 0xffff
		a.bits = 16
		return a
	case t.Kind == KindUniversalString:
		a.max = 0x10ffff
		a.bits = 32
		return a
	default:
		a.chars = rangeOf(0x20, 0x7e)
	}
	a.max = a.chars[len(a.chars)-1]
	a.bits = bits.Len(uint(len(a.chars) - 1))
	if aligned {
		// round up to a power of two
		for _, p := range []int{0, 1, 2, 4, 8, 16, 32} {
			if a.bits <= p {
				a.bits = p
				break
			}
		}
	}
	a.indexed = int64(a.max) > int64(1)<<uint(a.bits)-1
	return a
}

func (a *alphabet) code(r rune) (uint64, bool) {
	if a.chars == nil {
		return uint64(r), r >= 0 && r <= a.max
	}
	i := sort.Search(len(a.chars), func(i int) bool { return a.chars[i] >= r })
	if i == len(a.chars) || a.chars[i] != r {
		return 0, false
	}
	if a.indexed {
		return uint64(i), true
	}
	return uint64(r), true
}

func (a *alphabet) char(c uint64) (rune, bool) {
	if a.chars == nil || !a.indexed {
		r := rune(c)
		if c > uint64(a.max) {
			return 0, false
		}
		if a.chars != nil {
			i := sort.Search(len(a.chars), func(i int) bool { return a.chars[i] >= r })
			return r, i < len(a.chars) && a.chars[i] == r
		}
		return r, true
	}
	if c >= uint64(len(a.chars)) {
		return 0, false
	}
	return a.chars[c], true
}

// Time formats, X.680 46 and 47.  Encoders produce the DER forms: UTC,
// seconds always present, no trailing fractional zeros.

const (
	utcLayout         = "060102150405Z"
	generalizedLayout = "20060102150405.999999999"
)

func formatTime(k Kind, t time.Time) (string, error) {
	t = t.UTC()
	if k == KindUTCTime {
		if t.Year() < 1950 || t.Year() > 2049 {
			return "", errorf(ErrInvalidTime, "year %d not representable as UTCTime", t.Year())
		}
		return t.Format(utcLayout), nil
	}
	if t.Year() < 0 || t.Year() > 9999 {
		return "", errorf(ErrInvalidTime, "year %d not representable as GeneralizedTime", t.Year())
	}
	return t.Format(generalizedLayout) + "Z", nil
}

func parseTime(k Kind, s string) (time.Time, error) {
	t, err := parseTime1(k, s)
	if err != nil {
		return time.Time{}, errorf(ErrInvalidTime, "%v %q: %s", k, s, err.Error())
	}
	return t, nil
}

type timeSyntaxError string

func (e timeSyntaxError) Error() string {
	return string(e)
}

func parseTime1(k Kind, s string) (time.Time, error) {
	body, loc, err := splitZone(s)
	if err != nil {
		return time.Time{}, err
	}
	if k == KindUTCTime {
		if loc == nil {
			return time.Time{}, timeSyntaxError("missing time zone")
		}
		if len(body) != 10 && len(body) != 12 {
			return time.Time{}, timeSyntaxError("bad length")
		}
		body = "19" + body
		if body[2] < '5' {
			body = "20" + body[2:]
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	main, frac := body, ""
	if i := strings.IndexAny(body, ".,"); i >= 0 {
		main, frac = body[:i], body[i+1:]
		if frac == "" || !digits(frac) {
			return time.Time{}, timeSyntaxError("bad fraction")
		}
	}
	if !digits(main) || len(main) != 10 && len(main) != 12 && len(main) != 14 {
		return time.Time{}, timeSyntaxError("bad date and time")
	}
	num := func(from, to int) int {
		n, _ := strconv.Atoi(main[from:to])
		return n
	}
	year, month, day, hour := num(0, 4), num(4, 6), num(6, 8), num(8, 10)
	var min, sec int
	unit := time.Hour
	if len(main) >= 12 {
		min = num(10, 12)
		unit = time.Minute
	}
	if len(main) == 14 {
		sec = num(12, 14)
		unit = time.Second
	}
	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, loc)
	if t.Month() != time.Month(month) || t.Day() != day || t.Hour() != hour || t.Minute() != min || t.Second() != sec {
		return time.Time{}, timeSyntaxError("field out of range")
	}
	if frac != "" {
		f, _ := strconv.ParseFloat("0."+frac, 64)
		t = t.Add(time.Duration(f * float64(unit)))
	}
	return t, nil
}

// splitZone separates a trailing Z or +hhmm/-hhmm.  A nil location means
// local time.
func splitZone(s string) (string, *time.Location, error) {
	if strings.HasSuffix(s, "Z") {
		return s[:len(s)-1], time.UTC, nil
	}
	if n := len(s); n >= 5 && (s[n-5] == '+' || s[n-5] == '-') {
		z := s[n-4:]
		if !digits(z) {
			return "", nil, timeSyntaxError("bad time zone")
		}
		h, _ := strconv.Atoi(z[:2])
		m, _ := strconv.Atoi(z[2:])
		if h > 23 || m > 59 {
			return "", nil, timeSyntaxError("bad time zone")
		}
		off := (h*60 + m) * 60
		if s[n-5] == '-' {
			off = -off
		}
		return s[:n-5], time.FixedZone("", off), nil
	}
	return s, nil, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
