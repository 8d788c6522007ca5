// Package testutil provides fixture writers and skip helpers for tests.
//
// The fixture is a miniature GPT-2-style table set: every one of the 256
// byte symbols is in the vocabulary, so any text round-trips, plus a handful
// of merges that build common English fragments.
//
// Typical usage:
//
//	func TestLoad(t *testing.T) {
//	    vocabPath, mergesPath := testutil.WriteFixture(t, testutil.Fixture())
//	    ...
//	}
//
// Integration tests against real GPT-2 files call RequireGPT2Files, which
// skips unless BPETOK_TEST_VOCAB and BPETOK_TEST_MERGES point at them.
package testutil

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/example/go-bpe-tokenizer/internal/bytecodec"
)

// FixtureMerges are the merge rules of Fixture, in rank order.
var FixtureMerges = []string{
	"Ġ t",
	"h e",
	"Ġt he",
	"i n",
	"Ġ a",
	"l o",
	"lo w",
	"e r",
	"Ġ w",
	"o r",
	"Ġw or",
	"l d",
	"Ġwor ld",
	"H e",
	"l l",
	"He ll",
	"Hell o",
}

// Tables is a vocabulary plus ordered merge rules.
type Tables struct {
	Vocab  map[string]int
	Merges []string
}

// Fixture returns the byte-complete miniature tables. Byte symbols take ids
// 0..255 in byte order; each merge result takes the next id.
func Fixture() Tables {
	codec := bytecodec.Default()

	v := make(map[string]int, 256+len(FixtureMerges))
	for b := range 256 {
		v[string(codec.EncodeByte(byte(b)))] = b
	}

	next := 256
	for _, m := range FixtureMerges {
		tok := strings.Replace(m, " ", "", 1)
		if _, ok := v[tok]; !ok {
			v[tok] = next
			next++
		}
	}

	return Tables{Vocab: v, Merges: append([]string(nil), FixtureMerges...)}
}

// MergesText renders merges in the merges.txt layout: a #version header,
// one rule per line, and a trailing newline.
func MergesText(merges []string) string {
	var sb strings.Builder
	sb.WriteString("#version: 0.2\n")
	for _, m := range merges {
		sb.WriteString(m)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// WriteFixture writes vocab.json and merges.txt into a temp dir and returns their paths.
func WriteFixture(tb testing.TB, tables Tables) (vocabPath, mergesPath string) {
	tb.Helper()

	dir := tb.TempDir()
	vocabPath = filepath.Join(dir, "vocab.json")
	mergesPath = filepath.Join(dir, "merges.txt")

	writeFile(tb, vocabPath, vocabJSON(tb, tables.Vocab))
	writeFile(tb, mergesPath, []byte(MergesText(tables.Merges)))

	return vocabPath, mergesPath
}

// WriteGzipFixture is WriteFixture with both files gzip-compressed.
func WriteGzipFixture(tb testing.TB, tables Tables) (vocabPath, mergesPath string) {
	tb.Helper()

	dir := tb.TempDir()
	vocabPath = filepath.Join(dir, "vocab.json.gz")
	mergesPath = filepath.Join(dir, "merges.txt.gz")

	writeFile(tb, vocabPath, gzipBytes(tb, vocabJSON(tb, tables.Vocab)))
	writeFile(tb, mergesPath, gzipBytes(tb, []byte(MergesText(tables.Merges))))

	return vocabPath, mergesPath
}

// WriteFile writes data to name inside a fresh temp dir and returns the path.
func WriteFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), name)
	writeFile(tb, path, data)
	return path
}

// RequireGPT2Files skips the test unless BPETOK_TEST_VOCAB and
// BPETOK_TEST_MERGES name existing files, and returns those paths.
func RequireGPT2Files(tb testing.TB) (vocabPath, mergesPath string) {
	tb.Helper()

	vocabPath = os.Getenv("BPETOK_TEST_VOCAB")
	mergesPath = os.Getenv("BPETOK_TEST_MERGES")
	if vocabPath == "" || mergesPath == "" {
		tb.Skip("GPT-2 tables not configured; set BPETOK_TEST_VOCAB and BPETOK_TEST_MERGES")
	}

	for _, p := range []string{vocabPath, mergesPath} {
		if _, err := os.Stat(p); err != nil {
			tb.Skipf("GPT-2 table %q not available: %v", p, err)
		}
	}

	return vocabPath, mergesPath
}

func vocabJSON(tb testing.TB, v map[string]int) []byte {
	tb.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal vocab: %v", err)
	}
	return data
}

func gzipBytes(tb testing.TB, data []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		tb.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func writeFile(tb testing.TB, path string, data []byte) {
	tb.Helper()

	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
}
