package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-quill/internal/encoding"
)

func newVocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Build and inspect vocabularies",
	}
	cmd.AddCommand(newVocabBuildCmd())
	cmd.AddCommand(newVocabShowCmd())
	return cmd
}

func newVocabBuildCmd() *cobra.Command {
	var (
		samples []string
		lorem   int
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a vocabulary from sample text and write it to --encoder-vocab",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			var sample []string
			if len(samples) > 0 {
				if sample, err = readFiles(samples, cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if lorem > 0 {
				sample = append(sample, encoding.GenerateLorem(lorem, 1)...)
			}
			if len(sample) == 0 {
				return fmt.Errorf("no sample text: pass --sample FILE or --lorem N")
			}

			enc, err := encoding.New(sample, encoderOptions(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = enc.Close() }()

			if err := saveSnapshot(cfg.Encoder.Vocab, enc.Snapshot()); err != nil {
				return fmt.Errorf("write vocabulary: %w", err)
			}

			vectors, err := enc.BatchEncode(cmd.Context(), sample)
			if err != nil {
				return err
			}
			stats := encoding.Summarize(vectors, enc.UnknownIndex())
			log.Info().
				Str("path", cfg.Encoder.Vocab).
				Str("language", enc.Language()).
				Int("size", enc.VocabSize()).
				Int("sample", stats.Sequences).
				Int("tokens", stats.Tokens).
				Msg("Vocabulary written")
			renderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&samples, "sample", "s", nil, "Sample text files, one text per line (- for stdin)")
	cmd.Flags().IntVar(&lorem, "lorem", 0, "Add N generated Lorem Ipsum paragraphs to the sample")
	return cmd
}

func newVocabShowCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the vocabulary with token counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			enc, err := openEncoder(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = enc.Close() }()

			counts := make(map[string]int, len(enc.Counts()))
			for _, tc := range enc.Counts() {
				counts[tc.Token] = tc.Count
			}
			reserved := make(map[string]bool)
			for _, t := range enc.ReservedTokens() {
				reserved[t] = true
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "language: %s  backend: %s  size: %d  min occurrences: %d  append eos: %t\n\n",
				enc.Language(), enc.Backend(), enc.VocabSize(), enc.MinOccurrences(), enc.AppendEOS())

			var data [][]string
			for i, token := range enc.Vocab() {
				if limit > 0 && i >= limit {
					break
				}
				count := strconv.Itoa(counts[token])
				if reserved[token] {
					count = "reserved"
				}
				data = append(data, []string{strconv.Itoa(i), token, count})
			}

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"INDEX", "TOKEN", "COUNT"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderLine(false)
			table.SetBorder(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")
			table.AppendBulk(data)
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Show at most N tokens (0 for all)")
	return cmd
}

func renderStats(w io.Writer, s encoding.Stats) {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding(" ")
	table.AppendBulk([][]string{
		{"Sequences:", strconv.Itoa(s.Sequences)},
		{"Tokens:", strconv.Itoa(s.Tokens)},
		{"Mean length:", strconv.FormatFloat(s.MeanLength, 'f', 2, 64)},
		{"Stddev length:", strconv.FormatFloat(s.StdDevLength, 'f', 2, 64)},
		{"Median length:", strconv.FormatFloat(s.MedianLength, 'f', 0, 64)},
		{"P95 length:", strconv.FormatFloat(s.P95Length, 'f', 0, 64)},
		{"Max length:", strconv.Itoa(s.MaxLength)},
		{"Unknown ratio:", strconv.FormatFloat(s.UnknownRatio, 'f', 4, 64)},
	})
	table.Render()
}
