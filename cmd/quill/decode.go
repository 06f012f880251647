package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "decode [vector...]",
		Short: "Decode index vectors back to text",
		Long: "Decode index vectors back to text. Each argument or stdin line is one vector\n" +
			"of space or comma separated indices; with --format cbor stdin holds a CBOR [][]int64.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			var vectors [][]int64
			switch format {
			case "text":
				lines, err := readLines(args, cmd.InOrStdin())
				if err != nil {
					return err
				}
				if vectors, err = parseVectors(lines); err != nil {
					return err
				}
			case "cbor":
				if err := cbor.NewDecoder(cmd.InOrStdin()).Decode(&vectors); err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("decode CBOR input: %w", err)
				}
			default:
				return fmt.Errorf("unknown format %q (want text or cbor)", format)
			}

			enc, err := openEncoder(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = enc.Close() }()

			texts, err := enc.BatchDecode(vectors)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, text := range texts {
				fmt.Fprintln(out, text)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Input format: text or cbor")
	return cmd
}

func parseVectors(lines []string) ([][]int64, error) {
	vectors := make([][]int64, 0, len(lines))
	for n, line := range lines {
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		v := make([]int64, len(fields))
		for i, f := range fields {
			idx, err := strconv.ParseInt(f, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n+1, err)
			}
			v[i] = idx
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}
