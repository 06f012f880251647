package tokenizer

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pipe segments texts in parallel and returns the token sequences in input
// order. workers <= 0 uses every CPU.
func Pipe(ctx context.Context, seg Segmenter, texts []string, workers int) ([][]string, error) {
	out := make([][]string, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(texts) {
		workers = len(texts)
	}

	g, ctx := errgroup.WithContext(ctx)
	chunkSize := (len(texts) + workers - 1) / workers
	for start := 0; start < len(texts); start += chunkSize {
		end := min(start+chunkSize, len(texts))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				out[i] = seg.Segment(texts[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
