// Package stageprof times each stage of the encode pipeline separately and
// labels them for CPU profiles.
package stageprof

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/pprof"
	"time"

	"github.com/example/go-bpe-tokenizer/internal/bpe"
	"github.com/example/go-bpe-tokenizer/internal/bytecodec"
	"github.com/example/go-bpe-tokenizer/internal/pretokenize"
	"github.com/example/go-bpe-tokenizer/internal/vocab"
)

// Pipeline holds the stage implementations to profile.
type Pipeline struct {
	Splitter pretokenize.Splitter
	Ranks    *bpe.Ranks
	Vocab    *vocab.Vocabulary
	// Cache is shared across runs, so warm runs measure lookups instead of
	// merging. Nil disables caching.
	Cache bpe.Cache
}

type Options struct {
	Runs   int
	Warmup int
}

// Timings are per-run averages.
type Timings struct {
	Runs       int
	Split      time.Duration
	ByteEncode time.Duration
	Merge      time.Duration
	Lookup     time.Duration
	Total      time.Duration
	Spans      int
	Tokens     int
}

// Profile runs the pipeline over text opts.Warmup+opts.Runs times and
// returns the averages of the profiled runs.
func Profile(ctx context.Context, p Pipeline, text string, opts Options) (Timings, error) {
	if opts.Runs < 1 {
		return Timings{}, errors.New("stageprof: runs must be >= 1")
	}
	if p.Splitter == nil || p.Ranks == nil || p.Vocab == nil {
		return Timings{}, errors.New("stageprof: incomplete pipeline")
	}

	cache := p.Cache
	if cache == nil {
		cache = bpe.NopCache{}
	}
	engine := bpe.NewEngine(p.Ranks, cache)

	for i := range opts.Warmup {
		if err := ctx.Err(); err != nil {
			return Timings{}, fmt.Errorf("warmup run %d: %w", i+1, err)
		}
		runOnce(ctx, p, engine, text)
	}

	var agg Timings
	for i := range opts.Runs {
		if err := ctx.Err(); err != nil {
			return Timings{}, fmt.Errorf("profiled run %d: %w", i+1, err)
		}
		t := runOnce(ctx, p, engine, text)
		agg.Split += t.Split
		agg.ByteEncode += t.ByteEncode
		agg.Merge += t.Merge
		agg.Lookup += t.Lookup
		agg.Total += t.Total
		agg.Spans = t.Spans
		agg.Tokens = t.Tokens
	}

	n := time.Duration(opts.Runs)
	return Timings{
		Runs:       opts.Runs,
		Split:      agg.Split / n,
		ByteEncode: agg.ByteEncode / n,
		Merge:      agg.Merge / n,
		Lookup:     agg.Lookup / n,
		Total:      agg.Total / n,
		Spans:      agg.Spans,
		Tokens:     agg.Tokens,
	}, nil
}

func runOnce(ctx context.Context, p Pipeline, engine *bpe.Engine, text string) Timings {
	var out Timings
	codec := bytecodec.Default()
	startTotal := time.Now()

	var spans []string
	pprof.Do(ctx, pprof.Labels("stage", "split"), func(context.Context) {
		start := time.Now()
		spans = p.Splitter.Split(text)
		out.Split = time.Since(start)
	})

	encoded := make([]string, len(spans))
	pprof.Do(ctx, pprof.Labels("stage", "byte_encode"), func(context.Context) {
		start := time.Now()
		for i, s := range spans {
			encoded[i] = codec.EncodeText(s)
		}
		out.ByteEncode = time.Since(start)
	})

	var tokens []string
	pprof.Do(ctx, pprof.Labels("stage", "merge"), func(context.Context) {
		start := time.Now()
		for _, s := range encoded {
			tokens = append(tokens, engine.Merge(s)...)
		}
		out.Merge = time.Since(start)
	})

	pprof.Do(ctx, pprof.Labels("stage", "lookup"), func(context.Context) {
		start := time.Now()
		ids := make([]int, len(tokens))
		for i, tok := range tokens {
			ids[i] = p.Vocab.TokenToID(tok)
		}
		out.Lookup = time.Since(start)
	})

	out.Total = time.Since(startTotal)
	out.Spans = len(spans)
	out.Tokens = len(tokens)
	return out
}

// Write prints t as key: value lines with each stage's share of the total.
func Write(w io.Writer, text string, t Timings) {
	msf := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

	fmt.Fprintf(w, "text_bytes: %d\n", len(text))
	fmt.Fprintf(w, "runs: %d\n", t.Runs)
	fmt.Fprintf(w, "spans: %d\n", t.Spans)
	fmt.Fprintf(w, "tokens: %d\n", t.Tokens)
	fmt.Fprintf(w, "avg_split_ms: %.3f\n", msf(t.Split))
	fmt.Fprintf(w, "avg_byte_encode_ms: %.3f\n", msf(t.ByteEncode))
	fmt.Fprintf(w, "avg_merge_ms: %.3f\n", msf(t.Merge))
	fmt.Fprintf(w, "avg_lookup_ms: %.3f\n", msf(t.Lookup))
	fmt.Fprintf(w, "avg_total_ms: %.3f\n", msf(t.Total))

	if t.Total > 0 {
		total := float64(t.Total)
		fmt.Fprintf(w, "share_split_pct: %.2f\n", 100*float64(t.Split)/total)
		fmt.Fprintf(w, "share_byte_encode_pct: %.2f\n", 100*float64(t.ByteEncode)/total)
		fmt.Fprintf(w, "share_merge_pct: %.2f\n", 100*float64(t.Merge)/total)
		fmt.Fprintf(w, "share_lookup_pct: %.2f\n", 100*float64(t.Lookup)/total)
	}
}
