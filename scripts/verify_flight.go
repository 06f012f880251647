//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-quill/internal/client"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := "localhost:9090"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	log.Info().Str("addr", addr).Msg("Connecting to Quill Flight Server")

	c, err := client.NewFlightClient(addr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create client")
	}
	defer c.Close()

	texts := []string{
		"This ain't funny.",
		"Don't?",
		"Apache Arrow Flight is fast",
	}

	rec, err := client.NewRecordBatchBuilder(memory.NewGoAllocator()).BuildRecordBatch(texts, make([][]int64, len(texts)))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build request")
	}
	defer rec.Release()

	// Retry while the server starts up.
	var (
		gotTexts []string
		vectors  [][]int64
	)
	start := time.Now()
	for i := 0; i < 10; i++ {
		gotTexts, vectors, err = c.Exchange(context.Background(), rec)
		if err == nil {
			break
		}
		log.Warn().Err(err).Msg("Exchange failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Exchange failed after retries")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("Received vectors")

	if len(vectors) != len(texts) {
		log.Fatal().Int("expected", len(texts)).Int("got", len(vectors)).Msg("Count mismatch")
	}
	for i, vec := range vectors {
		if gotTexts[i] != texts[i] {
			log.Fatal().Int("index", i).Str("text", gotTexts[i]).Msg("Text mismatch")
		}
		if len(vec) == 0 {
			log.Fatal().Int("index", i).Msg("Empty vector")
		}
		log.Info().Int("index", i).Ints64("ids", vec).Msg("Vector valid")
	}

	fmt.Println("VERIFICATION PASSED")
}
