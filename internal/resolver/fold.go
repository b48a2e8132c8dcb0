package resolver

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lowercases s and strips combining marks, so "MENÚ" and "menu" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// pattern compiles a phrase into a regexp over folded text. Words may be
// separated by any amount of whitespace, including none.
func pattern(phrase string) *regexp.Regexp {
	words := strings.Fields(fold(phrase))
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(strings.Join(words, `\s*`))
}

// matcher tests raw text against a folded pattern.
type matcher struct {
	raw string
	re  *regexp.Regexp
}

func newMatcher(phrase string) matcher {
	return matcher{raw: phrase, re: pattern(phrase)}
}

func (m matcher) match(text string) bool {
	return m.re.MatchString(fold(text))
}
