package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe-tokenizer/internal/server"
	"github.com/example/go-bpe-tokenizer/internal/tokenizer"
)

func newServeCmd() *cobra.Command {
	var (
		maxBatch int
		preload  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the tokenizer HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if maxBatch < 1 {
				return fmt.Errorf("--max-batch must be at least 1")
			}

			tok, err := loadTokenizer(cfg)
			if err != nil {
				return err
			}
			if preload != "" {
				if err := warmCache(tok, preload); err != nil {
					return err
				}
			}

			srv := server.New(cfg, tok).
				WithLogger(slog.Default()).
				WithHandlerOptions(server.WithMaxBatch(maxBatch))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&maxBatch, "max-batch", 256, "Max texts per /tokenize/batch request")
	cmd.Flags().StringVar(&preload, "preload", "", "Encode this file once before listening to fill the merge cache")

	return cmd
}

// warmCache encodes the file at path so its spans are memoized before the
// first request arrives.
func warmCache(tok *tokenizer.Tokenizer, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read --preload: %w", err)
	}

	ids := tok.Encode(string(raw))
	slog.Info("merge cache preloaded",
		slog.String("path", path),
		slog.Int("tokens", len(ids)),
		slog.Int("cached_spans", tok.CacheLen()),
	)
	return nil
}
