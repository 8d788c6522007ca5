package bytecodec

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorPolicy controls how invalid UTF-8 is handled when decoding.
type ErrorPolicy string

const (
	// Strict fails on the first invalid sequence.
	Strict ErrorPolicy = "strict"
	// Replace substitutes one U+FFFD for each maximal ill-formed subpart.
	Replace ErrorPolicy = "replace"
	// Ignore drops ill-formed bytes.
	Ignore ErrorPolicy = "ignore"
)

// DefaultPolicy is used when no policy is configured.
const DefaultPolicy = Replace

// ErrInvalidUTF8 is wrapped by InvalidUTF8Error.
var ErrInvalidUTF8 = errors.New("invalid utf-8")

// InvalidUTF8Error reports the byte offset of the first ill-formed sequence.
type InvalidUTF8Error struct {
	Offset int
}

func (e *InvalidUTF8Error) Error() string {
	return fmt.Sprintf("bytecodec: %v at byte offset %d", ErrInvalidUTF8, e.Offset)
}

func (e *InvalidUTF8Error) Unwrap() error { return ErrInvalidUTF8 }

// ParseErrorPolicy converts a case-insensitive name to an ErrorPolicy.
// An empty string yields DefaultPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultPolicy, nil
	case Strict, Replace, Ignore:
		return p, nil
	default:
		return "", fmt.Errorf("invalid error policy %q (expected %s|%s|%s)", s, Strict, Replace, Ignore)
	}
}

// Apply decodes raw as UTF-8 under p.
func (p ErrorPolicy) Apply(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	switch p {
	case Strict:
		return "", &InvalidUTF8Error{Offset: firstInvalid(raw)}
	case Ignore:
		return rewriteIllFormed(raw, ""), nil
	case Replace, "":
		return rewriteIllFormed(raw, string(utf8.RuneError)), nil
	default:
		return "", fmt.Errorf("unsupported error policy %q", string(p))
	}
}

func firstInvalid(raw []byte) int {
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(raw)
}

// rewriteIllFormed copies raw, writing sub in place of every maximal
// ill-formed subpart.
func rewriteIllFormed(raw []byte, sub string) string {
	var sb strings.Builder
	sb.Grow(len(raw))

	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			sb.WriteString(sub)
			i += maximalSubpart(raw[i:])
			continue
		}
		sb.Write(raw[i : i+size])
		i += size
	}

	return sb.String()
}

// maximalSubpart returns the length of the longest prefix of b that starts
// a well-formed sequence without completing one (Unicode 3.9, table 3-7).
// Bytes that can never start a sequence count as a subpart of length 1.
func maximalSubpart(b []byte) int {
	lo, hi, need := byte(0x80), byte(0xBF), 0

	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		lo, need = 0xA0, 2
	case c == 0xED:
		hi, need = 0x9F, 2
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		lo, need = 0x90, 3
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	case c == 0xF4:
		hi, need = 0x8F, 3
	default:
		return 1
	}

	n := 1
	for n <= need && n < len(b) && b[n] >= lo && b[n] <= hi {
		n++
		lo, hi = 0x80, 0xBF
	}
	return n
}
