package materials

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// NormalizeName case-folds and strips diacritics so searches match
// regardless of accents or casing in stored names.
func NormalizeName(s string) string {
	folded := foldCaser.String(strings.TrimSpace(s))
	decomposed := norm.NFD.String(folded)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}
