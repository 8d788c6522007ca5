// Package doctor provides preflight checks for a vocabulary/merges pair.
package doctor

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/example/go-bpe-tokenizer/internal/bytecodec"
	"github.com/example/go-bpe-tokenizer/internal/tokenizer"
	"github.com/example/go-bpe-tokenizer/internal/vocabfile"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// SampleText is encoded and decoded by the round-trip check.
const SampleText = "Hello world! It's 2024, naïve café → 東京 🚀\n\tend"

// LoadFunc loads the tables named by the two paths.
type LoadFunc func(vocabPath, mergesPath string, opts vocabfile.MergesOptions) (*vocabfile.Tables, error)

// Config holds the inputs and injectable dependencies for each doctor check.
type Config struct {
	VocabPath  string
	MergesPath string
	Merges     vocabfile.MergesOptions
	// Load defaults to vocabfile.Load.
	Load LoadFunc
	// SkipRoundTrip skips the encode/decode self test.
	SkipRoundTrip bool
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark. Checks that need the
// loaded tables are skipped when loading fails.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- files ------------------------------------------------------------
	for _, f := range []struct{ name, path string }{
		{"vocab file", cfg.VocabPath},
		{"merges file", cfg.MergesPath},
	} {
		info, err := os.Stat(f.path)
		if err != nil {
			res.fail(fmt.Sprintf("%s %q: %v", f.name, f.path, err))
			fmt.Fprintf(w, "%s %s %s: not found\n", FailMark, f.name, f.path)
			continue
		}
		fmt.Fprintf(w, "%s %s: %s (%d bytes)\n", PassMark, f.name, f.path, info.Size())
	}
	if res.Failed() {
		return res
	}

	// ---- load -------------------------------------------------------------
	load := cfg.Load
	if load == nil {
		load = vocabfile.Load
	}
	tables, err := load(cfg.VocabPath, cfg.MergesPath, cfg.Merges)
	if err != nil {
		res.fail(fmt.Sprintf("load tables: %v", err))
		fmt.Fprintf(w, "%s load tables: %v\n", FailMark, err)
		return res
	}
	fmt.Fprintf(w, "%s load tables: %d tokens, %d merges\n", PassMark, tables.Vocab.Size(), tables.Ranks.Len())

	// ---- byte coverage ----------------------------------------------------
	codec := bytecodec.Default()
	var missing []string
	for b := range 256 {
		sym := string(codec.EncodeByte(byte(b)))
		if _, ok := tables.Vocab.Lookup(sym); !ok {
			missing = append(missing, fmt.Sprintf("0x%02X", b))
		}
	}
	if len(missing) > 0 {
		res.fail(fmt.Sprintf("byte coverage: %d of 256 byte symbols missing (%s)", len(missing), preview(missing)))
		fmt.Fprintf(w, "%s byte coverage: %d byte symbols missing\n", FailMark, len(missing))
	} else {
		fmt.Fprintf(w, "%s byte coverage: all 256 byte symbols present\n", PassMark)
	}

	// ---- merge results ----------------------------------------------------
	var orphans []string
	for _, p := range tables.Ranks.Pairs() {
		if _, ok := tables.Vocab.Lookup(p.Left + p.Right); !ok {
			orphans = append(orphans, p.String())
		}
	}
	if len(orphans) > 0 {
		res.fail(fmt.Sprintf("merge results: %d merges produce tokens absent from the vocabulary (%s)",
			len(orphans), preview(orphans)))
		fmt.Fprintf(w, "%s merge results: %d not in vocabulary\n", FailMark, len(orphans))
	} else {
		fmt.Fprintf(w, "%s merge results: all in vocabulary\n", PassMark)
	}

	// ---- id layout (informational) ----------------------------------------
	ids := make([]int, 0, tables.Vocab.Size())
	for _, id := range tables.Vocab.Map() {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if len(ids) > 0 && ids[0] == 0 && ids[len(ids)-1] == len(ids)-1 {
		fmt.Fprintf(w, "%s id layout: dense 0..%d\n", PassMark, len(ids)-1)
	} else if len(ids) > 0 {
		fmt.Fprintf(w, "%s id layout: sparse %d..%d\n", PassMark, ids[0], ids[len(ids)-1])
	}

	// ---- round trip -------------------------------------------------------
	if cfg.SkipRoundTrip {
		fmt.Fprintf(w, "%s round trip: skipped\n", PassMark)
		return res
	}
	tok := tokenizer.New(tables.Vocab, tables.Ranks, tokenizer.WithErrorPolicy(bytecodec.Strict))
	got, err := tok.Decode(tok.Encode(SampleText))
	switch {
	case err != nil:
		res.fail(fmt.Sprintf("round trip: %v", err))
		fmt.Fprintf(w, "%s round trip: %v\n", FailMark, err)
	case got != SampleText:
		res.fail(fmt.Sprintf("round trip: decoded %q; want %q", got, SampleText))
		fmt.Fprintf(w, "%s round trip: mismatch\n", FailMark)
	default:
		fmt.Fprintf(w, "%s round trip: ok (%d tokens)\n", PassMark, len(tok.Tokenize(SampleText)))
	}

	return res
}

// preview returns up to the first five items joined for a failure message.
func preview(items []string) string {
	const n = 5
	if len(items) <= n {
		return fmt.Sprint(items)
	}
	return fmt.Sprintf("%v and %d more", items[:n], len(items)-n)
}
