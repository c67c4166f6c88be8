// Package score computes relevance scores for tenders from keyword and
// organism rules. Scoring is two-phase: phase one over listing fields,
// phase two over detail fields once those have been fetched.
package score

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics, and collapses runs of
// whitespace to single spaces. The result is stable: normalizing an
// already-normalized string is a no-op.
func Normalize(s string) string {
	s = strings.ToLower(s)
	if out, _, err := transform.String(stripAccents, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(s), " ")
}
