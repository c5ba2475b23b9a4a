package ai

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeQuery converts to NFC and collapses whitespace runs to single spaces.
func NormalizeQuery(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// NeedsTranslation reports whether the query contains letters outside ASCII.
// Plain ASCII queries are sent to CLIP as they are.
func NeedsTranslation(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
