package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe-tokenizer/internal/server"
)

func newHealthCmd() *cobra.Command {
	var (
		addr      string
		timeout   time.Duration
		withVocab bool
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.ListenAddr
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := server.ProbeHTTPContext(ctx, addr); err != nil {
				return err
			}
			if !withVocab {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return err
			}

			size, err := server.ProbeVocab(ctx, addr)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok vocab_size=%d\n", size)
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP server address to probe")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Probe timeout")
	cmd.Flags().BoolVar(&withVocab, "vocab", false, "Also report the served vocabulary size")

	return cmd
}
