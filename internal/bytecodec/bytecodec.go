// Package bytecodec maps the 256 byte values onto 256 printable unicode
// characters so that byte-level BPE never has to handle whitespace or control
// characters directly.
//
// Bytes in the visible ranges '!'..'~', '¡'..'¬' and '®'..'ÿ' map to the
// code point of the same value. The remaining bytes are assigned, in
// ascending order, to the contiguous block starting at U+0100.
package bytecodec

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

// shiftBase is the first code point handed out to bytes outside the visible ranges.
const shiftBase = 256

// Codec is an immutable bijection between bytes and runes.
// It is safe for concurrent use.
type Codec struct {
	enc [256]rune
	dec map[rune]byte
}

// Default returns the process-wide codec.
var Default = sync.OnceValue(New)

// New builds the byte↔rune tables.
func New() *Codec {
	c := &Codec{dec: make(map[rune]byte, 256)}

	next := rune(shiftBase)
	for b := range 256 {
		r := rune(b)
		if !visible(byte(b)) {
			r = next
			next++
		}
		c.enc[b] = r
		c.dec[r] = byte(b)
	}

	return c
}

func visible(b byte) bool {
	switch {
	case b >= '!' && b <= '~':
		return true
	case b >= 0xA1 && b <= 0xAC:
		return true
	case b >= 0xAE:
		return true
	default:
		return false
	}
}

// EncodeByte returns the rune standing in for b.
func (c *Codec) EncodeByte(b byte) rune {
	return c.enc[b]
}

// DecodeRune returns the byte that r stands for. ok is false when r is not
// one of the 256 stand-in runes.
func (c *Codec) DecodeRune(r rune) (b byte, ok bool) {
	b, ok = c.dec[r]
	return b, ok
}

// EncodeText maps every UTF-8 byte of s through the codec.
func (c *Codec) EncodeText(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) * 2)

	for i := 0; i < len(s); i++ {
		sb.WriteRune(c.enc[s[i]])
	}

	return sb.String()
}

// DecodeBytes reverses EncodeText without interpreting the result as UTF-8.
func (c *Codec) DecodeBytes(s string) ([]byte, error) {
	out := make([]byte, 0, utf8.RuneCountInString(s))

	for i, r := range s {
		b, ok := c.dec[r]
		if !ok {
			return nil, &UnknownSymbolError{Rune: r, Offset: i}
		}
		out = append(out, b)
	}

	return out, nil
}

// DecodeText reverses EncodeText and decodes the bytes as UTF-8 under policy.
// A rune that is not a stand-in is always an error, whatever the policy.
func (c *Codec) DecodeText(s string, policy ErrorPolicy) (string, error) {
	raw, err := c.DecodeBytes(s)
	if err != nil {
		return "", err
	}

	return policy.Apply(raw)
}

// UnknownSymbolError reports a rune that has no byte mapping.
type UnknownSymbolError struct {
	Rune   rune
	Offset int
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("bytecodec: symbol %q (U+%04X) at offset %d has no byte mapping", e.Rune, e.Rune, e.Offset)
}
