// Package cache memoizes embeddings in a ristretto cache.
//
// Users tend to repeat themselves and every query is embedded once per turn,
// so caching the query path saves a model call for repeated messages. Documents
// are embedded on every reload and benefit the same way.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/glados/memory"
)

// Config configures the cache.
type Config struct {
	// MaxBytes bounds the memory held by cached vectors.
	// Default: 64 MiB
	MaxBytes int64

	// NumCounters is the number of keys tracked for admission.
	// Default: 10x the number of 768-dim vectors fitting in MaxBytes.
	NumCounters int64
}

// Embedder wraps another embedder with an in-memory cache.
type Embedder struct {
	next  memory.Embedder
	cache *ristretto.Cache
}

// New wraps next.
func New(next memory.Embedder, cfg Config) (*Embedder, error) {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 << 20
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 10 * (cfg.MaxBytes / (768 * 4))
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Embedder{next: next, cache: c}, nil
}

// Embed returns the cached vector for text or computes and stores it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.get(text); ok {
		return vec, nil
	}
	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.put(text, vec)
	return vec, nil
}

// EmbedBatch embeds only the texts missing from the cache.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var missing []string
	var positions []int
	for i, text := range texts {
		if vec, ok := e.get(text); ok {
			vectors[i] = vec
			continue
		}
		missing = append(missing, text)
		positions = append(positions, i)
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	computed, err := e.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(computed) != len(missing) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(computed), len(missing))
	}
	for n, vec := range computed {
		vectors[positions[n]] = vec
		e.put(missing[n], vec)
	}
	return vectors, nil
}

// Dimensions returns the wrapped embedder's dimensions.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Wait blocks until pending cache writes are applied.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}

func (e *Embedder) get(text string) ([]float32, bool) {
	v, ok := e.cache.Get(text)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (e *Embedder) put(text string, vec []float32) {
	e.cache.Set(text, vec, int64(len(vec)*4))
}
