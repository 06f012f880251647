package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-quill/internal/client"
)

func newEncodeCmd() *cobra.Command {
	var (
		format  string
		tokens  bool
		pad     bool
		forward bool
	)

	cmd := &cobra.Command{
		Use:   "encode [text...]",
		Short: "Encode texts (arguments or stdin lines) to index vectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			texts, err := readLines(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			enc, err := openEncoder(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = enc.Close() }()

			out := cmd.OutOrStdout()
			if tokens {
				for _, text := range texts {
					fmt.Fprintln(out, strings.Join(enc.Tokens(text), " "))
				}
				return nil
			}

			start := time.Now()
			vectors, err := enc.BatchEncode(cmd.Context(), texts)
			if err != nil {
				return err
			}
			log.Debug().
				Int("count", len(texts)).
				Dur("elapsed", time.Since(start)).
				Msg("Encoded sequences")

			if pad {
				vectors = enc.Pad(vectors).Tensor
			}

			rec, err := client.NewRecordBatchBuilder(memory.NewGoAllocator()).BuildRecordBatch(texts, vectors)
			if err != nil {
				return err
			}
			if rec != nil {
				defer rec.Release()
			}

			if forward {
				if rec == nil {
					return nil
				}
				return forwardRecord(cmd.Context(), cfg.Forward.Addr, cfg.Forward.Dataset, rec)
			}
			return writeVectors(out, format, vectors, rec)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, cbor or arrow")
	cmd.Flags().BoolVar(&tokens, "tokens", false, "Print the tokens instead of indices")
	cmd.Flags().BoolVar(&pad, "pad", false, "Right-pad vectors to the longest one")
	cmd.Flags().BoolVar(&forward, "forward", false, "Send the encoded batch to --forward-addr instead of stdout")
	return cmd
}

func writeVectors(w io.Writer, format string, vectors [][]int64, rec arrow.RecordBatch) error {
	switch format {
	case "text":
		for _, v := range vectors {
			fmt.Fprintln(w, formatVector(v))
		}
		return nil
	case "cbor":
		return cbor.NewEncoder(w).Encode(vectors)
	case "arrow":
		if rec == nil {
			return nil
		}
		return writeArrowStream(w, rec)
	default:
		return fmt.Errorf("unknown format %q (want text, cbor or arrow)", format)
	}
}

func formatVector(v []int64) string {
	parts := make([]string, len(v))
	for i, idx := range v {
		parts[i] = strconv.FormatInt(idx, 10)
	}
	return strings.Join(parts, " ")
}

func writeArrowStream(w io.Writer, rec arrow.RecordBatch) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func forwardRecord(ctx context.Context, addr, dataset string, rec arrow.RecordBatch) error {
	if addr == "" {
		return fmt.Errorf("--forward needs --forward-addr")
	}
	log.Info().Int64("count", rec.NumRows()).Str("server", addr).Str("dataset", dataset).Msg("Sending vectors to Longbow")
	fc, err := client.NewFlightClient(addr)
	if err != nil {
		return fmt.Errorf("connect to Longbow: %w", err)
	}
	defer func() {
		if err := fc.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close flight client")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := fc.DoPut(ctx, dataset, rec); err != nil {
		return fmt.Errorf("flight DoPut: %w", err)
	}
	log.Info().Msg("Successfully sent vectors to Longbow")
	return nil
}

