// Package textnorm canonicalizes text so phrase matching can compare
// competitor copy in one stable form. Normalization folds diacritics,
// typographic punctuation, case, and whitespace.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var punctReplacer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"‚", "'",
	"‛", "'",
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"„", `"`,
	"‟", `"`,
	"‐", "-", // hyphen
	"‑", "-", // non-breaking hyphen
	"‒", "-", // figure dash
	"–", "-", // en dash
	"—", "-", // em dash
	"―", "-", // horizontal bar
	"−", "-", // minus sign
	" ", " ", // no-break space
)

// Normalize canonicalizes text for matching. It decomposes Unicode
// characters and strips combining marks, folds curly quotes and the dash
// family to ASCII, lowercases, collapses every run of non-alphanumeric
// characters to a single space, and trims. Idempotent by construction.
func Normalize(text string) string {
	decomposed := norm.NFKD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	folded := strings.ToLower(punctReplacer.Replace(b.String()))

	var out strings.Builder
	out.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			if pendingSpace && out.Len() > 0 {
				out.WriteByte(' ')
			}
			pendingSpace = false
			out.WriteRune(r)
			continue
		}
		pendingSpace = true
	}
	return out.String()
}
