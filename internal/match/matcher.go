// Package match compiles keyword phrases into flexible patterns that
// tolerate reversed word order, a bounded gap of intervening words, and
// per-word synonyms. Inputs are expected to be pre-normalized with
// textnorm.Normalize, so matching is case-insensitive by construction.
package match

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultMaxGapWords bounds how many non-matching words may sit between
// consecutive phrase words.
const DefaultMaxGapWords = 30

// Options configures phrase compilation.
type Options struct {
	// MaxGapWords caps intervening words between phrase words.
	// Zero means DefaultMaxGapWords.
	MaxGapWords int
	// Synonyms maps a word to accepted alternatives. Nil means
	// DefaultSynonyms.
	Synonyms map[string][]string
}

// Span locates a match inside a haystack.
type Span struct {
	Start  int
	Length int
}

// Matcher is a compiled phrase pattern. Matchers are immutable after
// compilation and safe for concurrent use.
type Matcher struct {
	phrase string
	re     *regexp.Regexp
}

// Phrase returns the original phrase the matcher was compiled from.
func (m Matcher) Phrase() string {
	return m.phrase
}

// Compile builds a Matcher for the phrase. Multi-word phrases match in
// forward or reverse word order with at most MaxGapWords-1 words between
// consecutive phrase words. An empty phrase compiles to a matcher that
// never matches.
func Compile(phrase string, opts Options) Matcher {
	gap := opts.MaxGapWords
	if gap <= 0 {
		gap = DefaultMaxGapWords
	}
	synonyms := opts.Synonyms
	if synonyms == nil {
		synonyms = DefaultSynonyms()
	}

	words := strings.Fields(phrase)
	groups := make([]string, 0, len(words))
	for _, w := range words {
		variants := []string{regexp.QuoteMeta(w)}
		for _, alt := range synonyms[w] {
			variants = append(variants, regexp.QuoteMeta(alt))
		}
		groups = append(groups, "(?:"+strings.Join(variants, "|")+")")
	}

	if len(groups) == 0 {
		return Matcher{phrase: phrase}
	}
	if len(groups) == 1 {
		return Matcher{
			phrase: phrase,
			re:     regexp.MustCompile(`\b` + groups[0] + `\b`),
		}
	}

	between := `(?:[\W_]+\w+){0,` + strconv.Itoa(gap-1) + `}[\W_]+`
	forward := sequence(groups, between)
	reversed := make([]string, len(groups))
	for i, g := range groups {
		reversed[len(groups)-1-i] = g
	}
	reverse := sequence(reversed, between)
	return Matcher{
		phrase: phrase,
		re:     regexp.MustCompile(forward + "|" + reverse),
	}
}

// Find reports the first match of the phrase in the haystack.
func (m Matcher) Find(haystack string) (Span, bool) {
	if m.re == nil {
		return Span{}, false
	}
	loc := m.re.FindStringIndex(haystack)
	if loc == nil {
		return Span{}, false
	}
	return Span{Start: loc[0], Length: loc[1] - loc[0]}, true
}

// Match reports whether the phrase occurs in the haystack.
func (m Matcher) Match(haystack string) bool {
	_, ok := m.Find(haystack)
	return ok
}

func sequence(groups []string, between string) string {
	return `\b` + strings.Join(groups, `\b`+between) + `\b`
}
