package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-quill/internal/encoding"
)

func newBenchCmd() *cobra.Command {
	var (
		paragraphs int
		duration   time.Duration
		iterations int
		scalar     bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure encoding throughput on generated text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if paragraphs <= 0 {
				return fmt.Errorf("--paragraphs must be positive")
			}

			texts := encoding.GenerateLorem(paragraphs, time.Now().UnixNano())
			enc, err := encoding.New(texts[:max(1, len(texts)/2)], encoderOptions(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = enc.Close() }()

			ctx := cmd.Context()
			startTime := time.Now()
			endTime := startTime.Add(duration)
			var (
				totalVectors int64
				iter         int
				last         [][]int64
			)
			for iter < iterations || (duration > 0 && time.Now().Before(endTime)) {
				if scalar {
					last = make([][]int64, len(texts))
					for i, text := range texts {
						last[i] = enc.Encode(text)
					}
				} else if last, err = enc.BatchEncode(ctx, texts); err != nil {
					return err
				}
				totalVectors += int64(len(texts))
				iter++

				if iter%10 == 0 {
					elapsed := time.Since(startTime)
					log.Info().
						Str("elapsed", elapsed.Round(time.Second).String()).
						Int("iter", iter).
						Int64("total_vectors", totalVectors).
						Float64("tps", float64(totalVectors)/elapsed.Seconds()).
						Msg("Bench progress")
				}
			}

			totalElapsed := time.Since(startTime)
			log.Info().
				Int64("total_vectors", totalVectors).
				Dur("total_time", totalElapsed).
				Float64("avg_tps", float64(totalVectors)/totalElapsed.Seconds()).
				Bool("scalar", scalar).
				Msg("Bench complete")
			renderStats(cmd.OutOrStdout(), encoding.Summarize(last, enc.UnknownIndex()))
			return nil
		},
	}

	cmd.Flags().IntVarP(&paragraphs, "paragraphs", "p", 1000, "Number of generated paragraphs per iteration")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Keep running for this long (e.g. 10s, 20m)")
	cmd.Flags().IntVarP(&iterations, "iterations", "i", 10, "Minimum number of iterations")
	cmd.Flags().BoolVar(&scalar, "scalar", false, "Encode one text at a time instead of through the batch pipeline")
	return cmd
}
