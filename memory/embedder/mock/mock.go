package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/becomeliminal/glados/memory"
)

// Embedder is a deterministic embedder for testing and offline runs.
// Vectors are derived from a hash of the text, so identical texts embed
// identically and different texts are close to orthogonal.
type Embedder struct {
	dimensions int
	vectors    map[string][]float32
}

// New creates a mock embedder with 768 dimensions (multi-qa-mpnet-base-cos-v1).
func New() *Embedder {
	return NewWithDimensions(768)
}

// NewWithDimensions creates a mock embedder producing vectors of size dims.
func NewWithDimensions(dims int) *Embedder {
	return &Embedder{
		dimensions: dims,
		vectors:    make(map[string][]float32),
	}
}

// Set pins the vector returned for text. It is normalized on use.
// Not safe to call concurrently with Embed.
func (m *Embedder) Set(text string, vec []float32) {
	m.vectors[text] = vec
}

// Embed creates a deterministic embedding from text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vec, ok := m.vectors[text]; ok {
		return normalize(vec), nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// LCG step, mapped to [-1, 1]
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// EmbedBatch embeds texts in parallel.
func (m *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return memory.EmbedConcurrently(ctx, m.Embed, texts, 0)
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// normalize converts embedding to unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = v / norm
	}

	return normalized
}
