package memory

import (
	"context"

	"github.com/becomeliminal/glados/core"
)

// HistoryStore is the durable conversation log.
// Implementations: file.History.
type HistoryStore interface {
	// Append durably writes one turn and returns once it is persisted.
	// A turn is written atomically or not at all.
	Append(ctx context.Context, turn core.Turn) error

	// LoadAll returns every persisted turn in order.
	// Missing storage is an empty history, not an error.
	LoadAll(ctx context.Context) ([]core.Turn, error)

	// Clear truncates the log.
	Clear(ctx context.Context) error
}

// DocumentLog is the durable, content-deduplicated document store.
// Implementations: file.Documents.
type DocumentLog interface {
	// Append stores text under DocumentID(text).
	// Returns added=false with the existing document when the id is already present.
	Append(ctx context.Context, text string, meta Metadata) (doc Document, added bool, err error)

	// LoadAll returns every stored document in insertion order.
	LoadAll(ctx context.Context) ([]Document, error)

	// Clear truncates the log.
	Clear(ctx context.Context) error
}

// VectorIndex is the nearest-neighbour index over DocumentLog contents.
// Implementations: chromem.Index.
//
// Reload is the only way documents enter the index.
type VectorIndex interface {
	// Reload discards every vector and indexes docs from scratch.
	Reload(ctx context.Context, docs []Document) error

	// Query embeds text and returns up to k hits ordered by ascending distance.
	// An empty index yields an empty result.
	Query(ctx context.Context, text string, k int) ([]Hit, error)

	// Count returns the number of indexed documents.
	Count() int
}

// Embedder converts text to vector embeddings.
// Implementations: mock.Embedder (testing), onnx.Embedder (local model),
// cache.Embedder (memoizing decorator).
//
// Embeddings must be deterministic: the same text always yields the same vector.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts texts to vectors, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}
