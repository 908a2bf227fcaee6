package asnutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var nonWordAtWordBoundary = regexp.MustCompile(`(\W)([a-zA-Z][a-z])`)
var startingDigits = regexp.MustCompile(`^([\d]+)(.*)`)

var title = cases.Title(language.Und, cases.NoLower)

// NormalizeName converts an ASN.1 identifier, like "protocol-version" or
// "serialNumber", into an exported Go identifier, like "ProtocolVersion" or
// "SerialNumber".
func NormalizeName(s string) string {
	// hyphens separate words in ASN.1 identifiers
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-', '(', ')':
			return ' '
		}
		return r
	}, s)

	s = nonWordAtWordBoundary.ReplaceAllString(s, " $2")

	// drop anything else that can't appear in a go identifier
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		case r == ' ':
		default:
			return '_'
		}
		return r
	}, s)

	words := strings.Fields(s)

	for i, w := range words {
		if i == 0 {
			// identifiers can't start with a digit
			w = startingDigits.ReplaceAllString(w, `$2$1`)
		}
		words[i] = title.String(w)
	}

	return strings.Join(words, "")
}
