package tokenizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-bpe-tokenizer/internal/bpe"
	"github.com/example/go-bpe-tokenizer/internal/bytecodec"
	"github.com/example/go-bpe-tokenizer/internal/pretokenize"
	"github.com/example/go-bpe-tokenizer/internal/testutil"
	"github.com/example/go-bpe-tokenizer/internal/vocab"
	"github.com/example/go-bpe-tokenizer/internal/vocabfile"
)

func newTokenizer(t *testing.T, entries map[string]int, rules []string, opts ...Option) *Tokenizer {
	t.Helper()

	v, err := vocab.New(entries)
	require.NoError(t, err)

	pairs := make([]bpe.Pair, 0, len(rules))
	for _, rule := range rules {
		f := strings.Fields(rule)
		pairs = append(pairs, bpe.Pair{Left: f[0], Right: f[1]})
	}
	ranks, err := bpe.NewRanks(pairs)
	require.NoError(t, err)

	return New(v, ranks, opts...)
}

func newFixtureTokenizer(t *testing.T, opts ...Option) *Tokenizer {
	t.Helper()
	fx := testutil.Fixture()
	return newTokenizer(t, fx.Vocab, fx.Merges, opts...)
}

type capturingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (c *capturingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (c *capturingHandler) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}
func (c *capturingHandler) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *capturingHandler) WithGroup(string) slog.Handler      { return c }

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestTokenize_SingleMerge(t *testing.T) {
	tok := newTokenizer(t, map[string]int{"a": 0, "b": 1, "ab": 2}, []string{"a b"})

	tokens := tok.Tokenize("ab")
	assert.Equal(t, []string{"ab"}, tokens)
	assert.Equal(t, []int{2}, tok.TokensToIDs(tokens))
}

func TestTokenize_NoApplicableRule(t *testing.T) {
	tok := newTokenizer(t, map[string]int{"a": 0, "b": 1, "ab": 2}, []string{"a b"})
	assert.Equal(t, []string{"x", "z"}, tok.Tokenize("xz"))
}

func TestTokenToID_UnknownIsZero(t *testing.T) {
	tok := newTokenizer(t, map[string]int{"a": 5}, nil)
	assert.Equal(t, 0, tok.TokenToID("unseen_token"))
	assert.Equal(t, []int{5, 0}, tok.TokensToIDs([]string{"a", "unseen_token"}))
}

func TestIDToToken_UnknownFails(t *testing.T) {
	tok := newTokenizer(t, map[string]int{"a": 0}, nil)

	_, err := tok.IDToToken(999999)
	require.ErrorIs(t, err, vocab.ErrUnknownID)

	_, err = tok.IDsToTokens([]int{0, 999999})
	var unk *vocab.UnknownIDError
	require.ErrorAs(t, err, &unk)
	assert.Equal(t, 999999, unk.ID)
	assert.Contains(t, err.Error(), "position 1")
}

func TestTokenize_Fixture(t *testing.T) {
	tok := newFixtureTokenizer(t)

	tokens := tok.Tokenize("Hello world")
	assert.Equal(t, []string{"He", "l", "lo", "Ġworld"}, tokens)
	assert.Equal(t, []int{269, 'l', 261, 268}, tok.TokensToIDs(tokens))

	assert.Equal(t, []string{"t", "he", "Ġ", "low", "er"}, tok.Tokenize("the lower"))
}

// ---------------------------------------------------------------------------
// Round trips
// ---------------------------------------------------------------------------

var roundTripTexts = []string{
	"",
	"Hello world",
	"the lower tower in the world",
	"  leading, trailing  \n",
	"I'm sure they'll say it's fine.",
	"tabs\tand\r\nCRLF",
	"naïve café → 東京 💥🔥",
	"\x00\x01 control bytes \x7f",
}

func TestRoundTrip_TextThroughTokens(t *testing.T) {
	tok := newFixtureTokenizer(t, WithErrorPolicy(bytecodec.Strict))

	for _, text := range roundTripTexts {
		got, err := tok.TokensToString(tok.Tokenize(text))
		require.NoError(t, err, "text %q", text)
		assert.Equal(t, text, got)

		decoded, err := tok.Decode(tok.Encode(text))
		require.NoError(t, err, "text %q", text)
		assert.Equal(t, text, decoded)
	}
}

func TestRoundTrip_IDsThroughTokens(t *testing.T) {
	tok := newFixtureTokenizer(t)

	ids := []int{272, 268, 0, 255, 32, 258, 261}
	tokens, err := tok.IDsToTokens(ids)
	require.NoError(t, err)
	assert.Equal(t, ids, tok.TokensToIDs(tokens))
}

func TestRoundTrip_RegexSplitter(t *testing.T) {
	re, err := pretokenize.NewRegex()
	require.NoError(t, err)

	scan := newFixtureTokenizer(t)
	rx := newFixtureTokenizer(t, WithSplitter(re))

	for _, text := range roundTripTexts {
		assert.Equal(t, scan.Tokenize(text), rx.Tokenize(text), "text %q", text)
	}
}

// ---------------------------------------------------------------------------
// Decoding policy
// ---------------------------------------------------------------------------

func TestTokensToString_ErrorPolicy(t *testing.T) {
	// 0xFF alone is never valid UTF-8.
	invalid := []string{"Hello", "ÿ"}

	strict := newFixtureTokenizer(t, WithErrorPolicy(bytecodec.Strict))
	_, err := strict.TokensToString(invalid)
	require.ErrorIs(t, err, bytecodec.ErrInvalidUTF8)

	replace := newFixtureTokenizer(t)
	got, err := replace.TokensToString(invalid)
	require.NoError(t, err)
	assert.Equal(t, "Hello�", got)

	ignore := newFixtureTokenizer(t, WithErrorPolicy(bytecodec.Ignore))
	got, err = ignore.TokensToString(invalid)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
}

func TestTokensToString_ForeignSymbolAlwaysFails(t *testing.T) {
	tok := newFixtureTokenizer(t, WithErrorPolicy(bytecodec.Ignore))

	_, err := tok.TokensToString([]string{"世"})
	var unk *bytecodec.UnknownSymbolError
	require.ErrorAs(t, err, &unk)
}

// ---------------------------------------------------------------------------
// Max length, cache, normalization
// ---------------------------------------------------------------------------

func TestTokensToIDs_MaxLenWarnsWithoutTruncating(t *testing.T) {
	h := &capturingHandler{}
	tok := newFixtureTokenizer(t, WithMaxLen(3), WithLogger(slog.New(h)))

	ids := tok.Encode("Hello world again and again")
	assert.Greater(t, len(ids), 3)

	require.Len(t, h.records, 1)
	assert.Equal(t, slog.LevelWarn, h.records[0].Level)

	attrs := map[string]int64{}
	h.records[0].Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Int64()
		return true
	})
	assert.Equal(t, int64(len(ids)), attrs["length"])
	assert.Equal(t, int64(3), attrs["max_len"])

	h.records = nil
	_ = tok.Encode("Hi")
	assert.Empty(t, h.records)
}

func TestTokenize_CacheMatchesUncached(t *testing.T) {
	lru, err := bpe.NewLRUCache(2)
	require.NoError(t, err)

	cached := newFixtureTokenizer(t)
	bounded := newFixtureTokenizer(t, WithCache(lru))
	uncached := newFixtureTokenizer(t, WithCache(bpe.NopCache{}))

	text := "the lower tower in the world, the world in the tower"
	for range 3 {
		want := uncached.Tokenize(text)
		assert.Equal(t, want, cached.Tokenize(text))
		assert.Equal(t, want, bounded.Tokenize(text))
	}

	assert.Positive(t, cached.CacheLen())
	assert.LessOrEqual(t, bounded.CacheLen(), 2)
	assert.Zero(t, uncached.CacheLen())
}

func TestTokenize_Normalization(t *testing.T) {
	decomposed := "cafe\u0301"

	plain := newFixtureTokenizer(t)
	nfc := newFixtureTokenizer(t, WithNormalization(NormNFC))

	got, err := plain.TokensToString(plain.Tokenize(decomposed))
	require.NoError(t, err)
	assert.Equal(t, decomposed, got)

	got, err = nfc.TokensToString(nfc.Tokenize(decomposed))
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", got)
}

func TestParseNormalization(t *testing.T) {
	n, err := ParseNormalization("")
	require.NoError(t, err)
	assert.Equal(t, NormNone, n)

	n, err = ParseNormalization("NFKC")
	require.NoError(t, err)
	assert.Equal(t, NormNFKC, n)

	_, err = ParseNormalization("nfx")
	require.Error(t, err)
}

func TestVocab(t *testing.T) {
	tok := newFixtureTokenizer(t)
	fx := testutil.Fixture()

	assert.Equal(t, len(fx.Vocab), tok.VocabSize())
	assert.Equal(t, fx.Vocab, tok.Vocab())
}

// ---------------------------------------------------------------------------
// Batch
// ---------------------------------------------------------------------------

func TestEncodeBatch_MatchesSequential(t *testing.T) {
	tok := newFixtureTokenizer(t)

	texts := make([]string, 50)
	for i := range texts {
		texts[i] = fmt.Sprintf("Hello world %d, the lower tower %d", i, i*7)
	}

	got, err := tok.EncodeBatch(context.Background(), texts, 4)
	require.NoError(t, err)
	require.Len(t, got, len(texts))
	for i, text := range texts {
		assert.Equal(t, tok.Encode(text), got[i])
	}
}

func TestEncodeBatch_Cancelled(t *testing.T) {
	tok := newFixtureTokenizer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tok.EncodeBatch(ctx, []string{"a", "b"}, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// ---------------------------------------------------------------------------
// GPT-2 integration (skipped unless the real tables are configured)
// ---------------------------------------------------------------------------

func TestGPT2_KnownEncoding(t *testing.T) {
	vocabPath, mergesPath := testutil.RequireGPT2Files(t)

	tables, err := vocabfile.Load(vocabPath, mergesPath, vocabfile.MergesOptions{})
	require.NoError(t, err)
	tok := New(tables.Vocab, tables.Ranks)

	assert.Equal(t, []int{15496, 995}, tok.Encode("Hello world"))

	for _, text := range roundTripTexts {
		got, err := tok.Decode(tok.Encode(text))
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}
