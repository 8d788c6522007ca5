package main

import (
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-bpe-tokenizer/internal/bench"
	"github.com/example/go-bpe-tokenizer/internal/bench/stageprof"
	"github.com/example/go-bpe-tokenizer/internal/bpe"
	"github.com/example/go-bpe-tokenizer/internal/config"
	"github.com/example/go-bpe-tokenizer/internal/pretokenize"
)

func newBenchCmd() *cobra.Command {
	var (
		text          string
		file          string
		runs          int
		format        string
		minThroughput float64
		stages        bool
		warmup        int
		cpuprofile    string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark encode latency and throughput",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if file != "" {
				raw, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read --file: %w", err)
				}
				text = string(raw)
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text or --file is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			if cpuprofile != "" {
				f, err := os.Create(cpuprofile)
				if err != nil {
					return fmt.Errorf("create cpuprofile: %w", err)
				}
				defer f.Close()

				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("start cpuprofile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			out := cmd.OutOrStdout()
			if stages {
				timings, err := runStages(cmd, cfg, text, stageprof.Options{Runs: runs, Warmup: warmup})
				if err != nil {
					return err
				}
				stageprof.Write(out, text, timings)
				return nil
			}

			tok, err := loadTokenizer(cfg)
			if err != nil {
				return err
			}

			results, err := bench.Run(cmd.Context(), tok, text, runs)
			if err != nil {
				return err
			}
			stats := bench.ComputeStats(bench.Durations(results))

			switch format {
			case "json":
				bench.FormatJSON(results, stats, out)
			default:
				bench.FormatTable(results, stats, out)
			}

			return bench.CheckThroughputThreshold(bench.MeanThroughput(results), minThroughput)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to encode for each run")
	cmd.Flags().StringVar(&file, "file", "", "Read the text to encode from this file")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of encode runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&minThroughput, "min-throughput", 0, "Exit non-zero if mean warm tokens/s is below this value (0 = disabled)")
	cmd.Flags().BoolVar(&stages, "stages", false, "Report per-stage timings instead of the run table")
	cmd.Flags().IntVar(&warmup, "warmup", 1, "Unreported warmup runs before --stages profiling")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile with per-stage labels")

	return cmd
}

func runStages(cmd *cobra.Command, cfg config.Config, text string, opts stageprof.Options) (stageprof.Timings, error) {
	splitter, err := pretokenize.New(cfg.Tokenizer.Pretokenizer)
	if err != nil {
		return stageprof.Timings{}, err
	}
	tables, err := loadTables(cfg)
	if err != nil {
		return stageprof.Timings{}, err
	}
	cache, err := bpe.NewCache(cfg.Tokenizer.CacheSize)
	if err != nil {
		return stageprof.Timings{}, fmt.Errorf("merge cache: %w", err)
	}

	return stageprof.Profile(cmd.Context(), stageprof.Pipeline{
		Splitter: splitter,
		Ranks:    tables.Ranks,
		Vocab:    tables.Vocab,
		Cache:    cache,
	}, text, opts)
}
