package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText lowercases s, strips diacritics and collapses whitespace so bank
// descriptions like "TRANSF. DOMICILIACIÓN  Stripe" compare against plain keywords.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ContainsFold reports whether the normalized haystack contains the normalized needle.
func ContainsFold(haystack, needle string) bool {
	n := NormalizeText(needle)
	if n == "" {
		return false
	}
	return strings.Contains(NormalizeText(haystack), n)
}
