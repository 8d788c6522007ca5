package pretokenize

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

// Pattern is the reference split pattern. The (?!\S) lookahead is why this
// needs regexp2 rather than the RE2-based standard library engine.
const Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

// Regex splits text with Pattern. Input must be valid UTF-8: regexp2 works
// on runes, so invalid bytes would not survive the round trip.
type Regex struct {
	re *regexp2.Regexp
}

// NewRegex compiles Pattern.
func NewRegex() (*Regex, error) {
	re, err := regexp2.Compile(Pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile split pattern: %w", err)
	}
	return &Regex{re: re}, nil
}

// Split implements Splitter.
func (x *Regex) Split(text string) []string {
	var spans []string

	m, err := x.re.FindStringMatch(text)
	for err == nil && m != nil {
		spans = append(spans, m.String())
		m, err = x.re.FindNextMatch(m)
	}

	return spans
}
