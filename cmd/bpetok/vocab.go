package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

func newVocabCmd() *cobra.Command {
	var dump bool

	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Print the vocabulary size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			tok, err := loadTokenizer(cfg)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !dump {
				_, err = fmt.Fprintln(w, tok.VocabSize())
				return err
			}

			type entry struct {
				ID    int    `json:"id"`
				Token string `json:"token"`
			}
			v := tok.Vocab()
			entries := make([]entry, 0, len(v))
			for token, id := range v {
				entries = append(entries, entry{ID: id, Token: token})
			}
			slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.ID, b.ID) })

			enc := json.NewEncoder(w)
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "Print every entry as a JSON line, ordered by id")

	return cmd
}
