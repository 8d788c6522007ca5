package pretokenize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type class uint8

const (
	classOther class = iota
	classLetter
	classNumber
	classSpace
)

func classify(r rune) class {
	switch {
	case unicode.IsLetter(r):
		return classLetter
	case unicode.IsNumber(r):
		return classNumber
	case unicode.IsSpace(r):
		return classSpace
	default:
		return classOther
	}
}

var contractions = []string{"'s", "'t", "'re", "'ve", "'m", "'ll", "'d"}

// Scanner is the default Splitter. At every position it takes the first of:
// a contraction, an optional space followed by a run of letters, numbers or
// other symbols, or a whitespace run. A whitespace run that does not reach the
// end of the text leaves its last character to prefix the following word.
type Scanner struct{}

// Split implements Splitter.
func (Scanner) Split(text string) []string {
	var spans []string

	for i := 0; i < len(text); {
		n := spanLen(text[i:])
		spans = append(spans, text[i:i+n])
		i += n
	}

	return spans
}

// spanLen returns the byte length of the span starting at s[0]. It is always > 0.
func spanLen(s string) int {
	if s[0] == '\'' {
		for _, c := range contractions {
			if strings.HasPrefix(s, c) {
				return len(c)
			}
		}
	}

	r, size := utf8.DecodeRuneInString(s)
	cls := classify(r)

	// " ?X+" for letters, numbers and other symbols.
	if r == ' ' && len(s) > size {
		next, nsize := utf8.DecodeRuneInString(s[size:])
		if c := classify(next); c != classSpace {
			return size + nsize + runLen(s[size+nsize:], c)
		}
	}
	if cls != classSpace {
		return size + runLen(s[size:], cls)
	}

	// "\s+(?!\S)" then "\s+".
	n := size + runLen(s[size:], classSpace)
	if n < len(s) && n > size {
		_, last := utf8.DecodeLastRuneInString(s[:n])
		return n - last
	}
	return n
}

// runLen returns the byte length of the longest prefix of s whose runes are all of class c.
func runLen(s string, c class) int {
	for i, r := range s {
		if classify(r) != c {
			return i
		}
	}
	return len(s)
}
