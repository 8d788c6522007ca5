package pretokenize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var splitCases = []struct {
	name string
	in   string
	want []string
}{
	{"empty", "", nil},
	{"words", "Hello world", []string{"Hello", " world"}},
	{"contractions", "I'm sure it's they'll", []string{"I", "'m", " sure", " it", "'s", " they", "'ll"}},
	{"contraction case sensitive", "IT'S", []string{"IT", "'", "S"}},
	{"digits", "abc123 456", []string{"abc", "123", " 456"}},
	{"symbols", "hi!? (x)", []string{"hi", "!?", " (", "x", ")"}},
	{"double space", "a  b", []string{"a", " ", " b"}},
	{"trailing spaces", "a   ", []string{"a", "   "}},
	{"leading newline", "\nfoo", []string{"\n", "foo"}},
	{"newline then space", "x\n bar", []string{"x", "\n", " bar"}},
	{"tab run", "x\t\t\ty", []string{"x", "\t\t", "\t", "y"}},
	{"quote inside symbols", "?'s", []string{"?'", "s"}},
	{"space apostrophe", "a 's", []string{"a", " '", "s"}},
	{"unicode", "naïve café 東京 ٣", []string{"naïve", " café", " 東京", " ٣"}},
	{"emoji", "ok 💥🔥!", []string{"ok", " 💥🔥!"}},
	{"only whitespace", " \n ", []string{" \n "}},
}

func TestScanner_Split(t *testing.T) {
	for _, tt := range splitCases {
		t.Run(tt.name, func(t *testing.T) {
			got := Scanner{}.Split(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, strings.Join(got, ""))
		})
	}
}

func TestRegex_Split(t *testing.T) {
	re, err := NewRegex()
	require.NoError(t, err)

	for _, tt := range splitCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, re.Split(tt.in))
		})
	}
}

func TestScanner_MatchesRegex(t *testing.T) {
	re, err := NewRegex()
	require.NoError(t, err)

	inputs := []string{
		"The quick brown fox jumps over the lazy dog.",
		"  leading and trailing  \t\n",
		"she'd've said 'no' -- twice!!",
		"x = f(1.5e-3) + g[2]; // comment\r\n",
		"Ünïcödé non-breaking em space",
		"mixed123abc456 ½ ⅔ Ⅻ",
		"line one\n\nline two\n",
	}
	for _, in := range inputs {
		assert.Equal(t, re.Split(in), Scanner{}.Split(in), "input %q", in)
	}
}

func TestScanner_InvalidUTF8IsPreserved(t *testing.T) {
	in := "ab\xff\xfe cd"
	got := Scanner{}.Split(in)
	assert.Equal(t, in, strings.Join(got, ""))
}

func TestNew(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.IsType(t, Scanner{}, s)

	s, err = New("Regex")
	require.NoError(t, err)
	assert.IsType(t, &Regex{}, s)

	_, err = New("whitespace")
	require.Error(t, err)
}
