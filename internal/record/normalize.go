package record

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize applies the standard cleaning pipeline to one field value:
// accents folded to ASCII-ish base letters, runs of whitespace (including
// newlines) collapsed to single spaces, surrounding quotes stripped, then
// lowercased and trimmed. Returns "" when nothing survives; callers treat
// that as a missing value.
func Normalize(value string) string {
	value = foldAccents(value)
	value = strings.Join(strings.Fields(value), " ")
	value = strings.Trim(value, `"'`)
	value = strings.ToLower(value)
	return strings.TrimSpace(value)
}

// foldAccents decomposes the string and drops combining marks, so that
// "café" and "cafe" normalize to the same value
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		// Fold failure keeps the original value rather than losing data
		return s
	}
	return out
}
