// Package tokenizer composes byte encoding, pretokenization, BPE merging and
// the vocabulary into the text↔token↔id conversions consumed by a model.
//
// A Tokenizer is safe for concurrent use: its tables are immutable and every
// bpe.Cache implementation synchronizes internally.
package tokenizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/example/go-bpe-tokenizer/internal/bpe"
	"github.com/example/go-bpe-tokenizer/internal/bytecodec"
	"github.com/example/go-bpe-tokenizer/internal/pretokenize"
	"github.com/example/go-bpe-tokenizer/internal/vocab"
)

// Normalization selects an optional Unicode normalization applied before
// splitting. Anything other than NormNone breaks exact round-tripping for
// text that is not already in that form.
type Normalization string

const (
	NormNone Normalization = "none"
	NormNFC  Normalization = "nfc"
	NormNFKC Normalization = "nfkc"
)

// ParseNormalization converts a case-insensitive name to a Normalization.
// An empty string yields NormNone.
func ParseNormalization(s string) (Normalization, error) {
	switch n := Normalization(strings.ToLower(strings.TrimSpace(s))); n {
	case "":
		return NormNone, nil
	case NormNone, NormNFC, NormNFKC:
		return n, nil
	default:
		return "", fmt.Errorf("invalid normalization %q (expected %s|%s|%s)", s, NormNone, NormNFC, NormNFKC)
	}
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	policy   bytecodec.ErrorPolicy
	maxLen   int
	cache    bpe.Cache
	splitter pretokenize.Splitter
	norm     Normalization
	logger   *slog.Logger
}

func defaultOptions() options {
	return options{
		policy:   bytecodec.DefaultPolicy,
		splitter: pretokenize.Scanner{},
		norm:     NormNone,
		logger:   slog.Default(),
	}
}

// Option configures a Tokenizer.
type Option func(*options)

// WithErrorPolicy sets how invalid UTF-8 is handled by TokensToString.
func WithErrorPolicy(p bytecodec.ErrorPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithMaxLen sets the advisory id-sequence length. Longer sequences are
// logged, never truncated. Zero disables the check.
func WithMaxLen(n int) Option {
	return func(o *options) { o.maxLen = n }
}

// WithCache sets the merge cache. The default is an unbounded cache.
func WithCache(c bpe.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithSplitter replaces the default Scanner pretokenizer.
func WithSplitter(s pretokenize.Splitter) Option {
	return func(o *options) { o.splitter = s }
}

// WithNormalization enables Unicode normalization before splitting.
func WithNormalization(n Normalization) Option {
	return func(o *options) { o.norm = n }
}

// WithLogger sets the logger used for length warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// Tokenizer
// ---------------------------------------------------------------------------

// Tokenizer converts text to byte-level BPE tokens and ids, and back.
type Tokenizer struct {
	vocab    *vocab.Vocabulary
	engine   *bpe.Engine
	codec    *bytecodec.Codec
	splitter pretokenize.Splitter
	policy   bytecodec.ErrorPolicy
	maxLen   int
	norm     Normalization
	log      *slog.Logger
}

// New builds a Tokenizer over already-parsed tables.
func New(v *vocab.Vocabulary, ranks *bpe.Ranks, optFns ...Option) *Tokenizer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.cache == nil {
		opts.cache = bpe.NewUnboundedCache()
	}

	return &Tokenizer{
		vocab:    v,
		engine:   bpe.NewEngine(ranks, opts.cache),
		codec:    bytecodec.Default(),
		splitter: opts.splitter,
		policy:   opts.policy,
		maxLen:   opts.maxLen,
		norm:     opts.norm,
		log:      opts.logger,
	}
}

// Tokenize splits text into spans, byte-encodes and merges each one, and
// returns all subword tokens in order.
func (t *Tokenizer) Tokenize(text string) []string {
	switch t.norm {
	case NormNFC:
		text = norm.NFC.String(text)
	case NormNFKC:
		text = norm.NFKC.String(text)
	}

	var tokens []string
	for _, span := range t.splitter.Split(text) {
		tokens = append(tokens, t.engine.Merge(t.codec.EncodeText(span))...)
	}
	return tokens
}

// TokenToID returns the id of token, or vocab.UnknownID when it is absent.
func (t *Tokenizer) TokenToID(token string) int {
	return t.vocab.TokenToID(token)
}

// TokensToIDs maps each token through TokenToID. A result longer than the
// configured maximum is logged as a warning and returned in full.
func (t *Tokenizer) TokensToIDs(tokens []string) []int {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		ids[i] = t.vocab.TokenToID(tok)
	}

	if t.maxLen > 0 && len(ids) > t.maxLen {
		t.log.Warn("token sequence longer than maximum length; the model may fail to index it",
			slog.Int("length", len(ids)),
			slog.Int("max_len", t.maxLen),
		)
	}

	return ids
}

// IDToToken returns the token for id, or a *vocab.UnknownIDError.
func (t *Tokenizer) IDToToken(id int) (string, error) {
	return t.vocab.IDToToken(id)
}

// IDsToTokens maps each id to its token. The first unknown id fails the call.
func (t *Tokenizer) IDsToTokens(ids []int) ([]string, error) {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tok, err := t.vocab.IDToToken(id)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		tokens[i] = tok
	}
	return tokens, nil
}

// TokensToString concatenates tokens and decodes them back to text under the
// configured error policy.
func (t *Tokenizer) TokensToString(tokens []string) (string, error) {
	return t.codec.DecodeText(strings.Join(tokens, ""), t.policy)
}

// Encode is Tokenize followed by TokensToIDs.
func (t *Tokenizer) Encode(text string) []int {
	return t.TokensToIDs(t.Tokenize(text))
}

// Decode is IDsToTokens followed by TokensToString.
func (t *Tokenizer) Decode(ids []int) (string, error) {
	tokens, err := t.IDsToTokens(ids)
	if err != nil {
		return "", err
	}
	return t.TokensToString(tokens)
}

// EncodeBatch encodes texts on up to workers goroutines (unlimited when
// workers <= 0). Results are in input order. Cancelling ctx stops scheduling
// new texts and returns ctx's error.
func (t *Tokenizer) EncodeBatch(ctx context.Context, texts []string, workers int) ([][]int, error) {
	out := make([][]int, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, text := range texts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = t.Encode(text)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// VocabSize returns the number of vocabulary entries.
func (t *Tokenizer) VocabSize() int { return t.vocab.Size() }

// Vocab returns a copy of the token→id mapping.
func (t *Tokenizer) Vocab() map[string]int { return t.vocab.Map() }

// CacheLen reports how many distinct spans have been memoized.
func (t *Tokenizer) CacheLen() int { return t.engine.CacheLen() }
