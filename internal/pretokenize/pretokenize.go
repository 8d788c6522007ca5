// Package pretokenize splits raw text into the word-like spans that are
// byte-encoded and merged independently.
//
// Spans never overlap and always concatenate back to the input. Two
// implementations exist: Scanner, which classifies runes directly, and Regex,
// which runs the reference split pattern through a backtracking engine.
package pretokenize

import (
	"fmt"
	"strings"
)

// Splitter splits text into contiguous spans.
type Splitter interface {
	Split(text string) []string
}

// Kind names a Splitter implementation.
const (
	KindScanner = "scanner"
	KindRegex   = "regex"
)

// New returns the splitter registered under kind. An empty kind selects the Scanner.
func New(kind string) (Splitter, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindScanner:
		return Scanner{}, nil
	case KindRegex:
		return NewRegex()
	default:
		return nil, fmt.Errorf("invalid pretokenizer %q (expected %s|%s)", kind, KindScanner, KindRegex)
	}
}
