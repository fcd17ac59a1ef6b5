package memory

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// EmbedConcurrently embeds texts with up to workers parallel calls to embed,
// preserving order. workers <= 0 means one per CPU.
func EmbedConcurrently(ctx context.Context, embed func(context.Context, string) ([]float32, error), texts []string, workers int) ([][]float32, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	vectors := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embed text #%d: %w", i+1, err)
			}
			vectors[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
