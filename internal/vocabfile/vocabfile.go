// Package vocabfile loads vocab.json and merges.txt files into the in-memory
// tables used by the tokenizer. Paths ending in ".gz" are decompressed on the fly.
package vocabfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/example/go-bpe-tokenizer/internal/bpe"
	"github.com/example/go-bpe-tokenizer/internal/vocab"
)

// ErrEmptyPath is returned when a vocab or merges path is empty.
var ErrEmptyPath = errors.New("vocabfile: path must not be empty")

// Tables are the parsed inputs of a tokenizer.
type Tables struct {
	Vocab *vocab.Vocabulary
	Ranks *bpe.Ranks
}

// ReadVocab decodes a JSON object of token→id.
func ReadVocab(r io.Reader) (map[string]int, error) {
	var entries map[string]int
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode vocab json: %w", err)
	}
	if entries == nil {
		return nil, errors.New("decode vocab json: expected an object, got null")
	}
	return entries, nil
}

// Open opens path for reading, transparently decompressing gzip files.
func Open(path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open gzip %q: %w", path, err)
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	return errors.Join(g.Reader.Close(), g.f.Close())
}

// LoadVocab reads and validates a vocabulary file.
func LoadVocab(path string) (*vocab.Vocabulary, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer func() { _ = rc.Close() }()

	entries, err := ReadVocab(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return vocab.New(entries)
}

// LoadMerges reads a merges file and builds the rank table.
func LoadMerges(path string, opts MergesOptions) (*bpe.Ranks, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open merges: %w", err)
	}
	defer func() { _ = rc.Close() }()

	pairs, err := ReadMerges(rc, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return bpe.NewRanks(pairs)
}

// Load reads both files.
func Load(vocabPath, mergesPath string, opts MergesOptions) (*Tables, error) {
	v, err := LoadVocab(vocabPath)
	if err != nil {
		return nil, err
	}

	r, err := LoadMerges(mergesPath, opts)
	if err != nil {
		return nil, err
	}

	opts.logger().Debug("tokenizer tables loaded",
		slog.String("vocab_path", vocabPath),
		slog.String("merges_path", mergesPath),
		slog.Int("vocab_size", v.Size()),
		slog.Int("merges", r.Len()),
	)

	return &Tables{Vocab: v, Ranks: r}, nil
}
