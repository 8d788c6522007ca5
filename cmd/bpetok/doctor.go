package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe-tokenizer/internal/doctor"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the vocabulary and merges files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			mopts, err := mergesOptions(cfg)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			result := doctor.Run(doctor.Config{
				VocabPath:  cfg.Paths.VocabPath,
				MergesPath: cfg.Paths.MergesPath,
				Merges:     mopts,
			}, stdout)

			// Settings are validated here so a bad value shows up alongside the file checks.
			if _, err := tokenizerOptions(cfg); err != nil {
				result.AddFailure(fmt.Sprintf("tokenizer settings: %v", err))
				_, _ = fmt.Fprintf(stdout, "%s tokenizer settings: %v\n", doctor.FailMark, err)
			} else {
				_, _ = fmt.Fprintf(stdout, "%s tokenizer settings: ok\n", doctor.PassMark)
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(stdout, "doctor checks passed")

			return nil
		},
	}

	return cmd
}
