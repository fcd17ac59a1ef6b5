package cache_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/glados/memory/embedder/cache"
	"github.com/becomeliminal/glados/memory/embedder/mock"
)

// countingEmbedder counts texts reaching the wrapped embedder.
type countingEmbedder struct {
	*mock.Embedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.Embedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(int64(len(texts)))
	return c.Embedder.EmbedBatch(ctx, texts)
}

func TestEmbedder_CachesRepeatedText(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{Embedder: mock.NewWithDimensions(16)}

	e, err := cache.New(inner, cache.Config{})
	require.NoError(t, err)
	defer e.Close()

	first, err := e.Embed(ctx, "hello")
	require.NoError(t, err)
	e.Wait()

	second, err := e.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load())
	assert.Equal(t, 16, e.Dimensions())
}

func TestEmbedder_BatchOnlyEmbedsMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{Embedder: mock.NewWithDimensions(16)}

	e, err := cache.New(inner, cache.Config{})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(ctx, "b")
	require.NoError(t, err)
	e.Wait()

	vectors, err := e.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, int64(3), inner.calls.Load(), "b should come from the cache")

	want, err := inner.Embedder.Embed(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, want, vectors[2])
}
