package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenizeCmd() *cobra.Command {
	var (
		text    string
		idsOnly bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "tokenize",
		Short: "Split text into BPE tokens and ids",
		Long:  "Tokenize --text, or standard input when --text is not given.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if format != "text" && format != "json" {
				return fmt.Errorf("--format must be 'text' or 'json'")
			}

			input := text
			if !cmd.Flags().Changed("text") {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				input = string(raw)
			}

			tok, err := loadTokenizer(cfg)
			if err != nil {
				return err
			}

			tokens := tok.Tokenize(input)
			ids := tok.TokensToIDs(tokens)

			return writeTokens(cmd.OutOrStdout(), format, idsOnly, tokens, ids)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to tokenize (default: read stdin)")
	cmd.Flags().BoolVar(&idsOnly, "ids", false, "Print only ids")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text|json")

	return cmd
}

// writeTokens prints tokens and ids. The text format puts space-separated
// tokens on one line and ids on the next.
func writeTokens(w io.Writer, format string, idsOnly bool, tokens []string, ids []int) error {
	if tokens == nil {
		tokens = []string{}
	}
	if ids == nil {
		ids = []int{}
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		if idsOnly {
			return enc.Encode(struct {
				IDs []int `json:"ids"`
			}{ids})
		}
		return enc.Encode(struct {
			Tokens []string `json:"tokens"`
			IDs    []int    `json:"ids"`
		}{tokens, ids})
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.Itoa(id)
	}
	if !idsOnly {
		if _, err := fmt.Fprintln(w, strings.Join(tokens, " ")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, strings.Join(strs, " "))
	return err
}
