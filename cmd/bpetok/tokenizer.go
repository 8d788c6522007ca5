package main

import (
	"fmt"
	"log/slog"

	"github.com/example/go-bpe-tokenizer/internal/bpe"
	"github.com/example/go-bpe-tokenizer/internal/bytecodec"
	"github.com/example/go-bpe-tokenizer/internal/config"
	"github.com/example/go-bpe-tokenizer/internal/pretokenize"
	"github.com/example/go-bpe-tokenizer/internal/tokenizer"
	"github.com/example/go-bpe-tokenizer/internal/vocabfile"
)

// mergesOptions translates the merges-file settings of cfg.
func mergesOptions(cfg config.Config) (vocabfile.MergesOptions, error) {
	trailer, err := vocabfile.ParseTrailerPolicy(cfg.Tokenizer.MergesTrailer)
	if err != nil {
		return vocabfile.MergesOptions{}, err
	}
	return vocabfile.MergesOptions{
		RequireHeader: cfg.Tokenizer.RequireHeader,
		Trailer:       trailer,
		Logger:        slog.Default(),
	}, nil
}

// loadTables reads the vocabulary and merges named by cfg.
func loadTables(cfg config.Config) (*vocabfile.Tables, error) {
	opts, err := mergesOptions(cfg)
	if err != nil {
		return nil, err
	}
	return vocabfile.Load(cfg.Paths.VocabPath, cfg.Paths.MergesPath, opts)
}

// tokenizerOptions translates the tokenizer settings of cfg.
func tokenizerOptions(cfg config.Config) ([]tokenizer.Option, error) {
	policy, err := bytecodec.ParseErrorPolicy(cfg.Tokenizer.Errors)
	if err != nil {
		return nil, err
	}
	norm, err := tokenizer.ParseNormalization(cfg.Tokenizer.Normalization)
	if err != nil {
		return nil, err
	}
	splitter, err := pretokenize.New(cfg.Tokenizer.Pretokenizer)
	if err != nil {
		return nil, err
	}
	cache, err := bpe.NewCache(cfg.Tokenizer.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("merge cache: %w", err)
	}

	return []tokenizer.Option{
		tokenizer.WithErrorPolicy(policy),
		tokenizer.WithMaxLen(cfg.Tokenizer.MaxLen),
		tokenizer.WithCache(cache),
		tokenizer.WithSplitter(splitter),
		tokenizer.WithNormalization(norm),
		tokenizer.WithLogger(slog.Default()),
	}, nil
}

// loadTokenizer builds a Tokenizer from the files and settings in cfg.
func loadTokenizer(cfg config.Config) (*tokenizer.Tokenizer, error) {
	opts, err := tokenizerOptions(cfg)
	if err != nil {
		return nil, err
	}
	tables, err := loadTables(cfg)
	if err != nil {
		return nil, err
	}
	return tokenizer.New(tables.Vocab, tables.Ranks, opts...), nil
}
