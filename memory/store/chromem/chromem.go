package chromem

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/glados/memory"
)

// CollectionName is the single logical collection holding every document.
const CollectionName = "glados_memory"

// Index is a memory.VectorIndex backed by chromem-go.
// chromem-go is a pure Go, embedded vector database using cosine similarity.
//
// Reload builds a fresh database and swaps it in, so queries running during a
// reload see either the old index or the new one, never a mix.
type Index struct {
	embedder    memory.Embedder
	concurrency int

	mu  sync.RWMutex
	db  *chromem.DB
	col *chromem.Collection
}

// Option configures the index.
type Option func(*Index)

// WithConcurrency sets how many goroutines chromem-go uses when adding documents.
func WithConcurrency(n int) Option {
	return func(i *Index) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// New creates an empty index that embeds with embedder.
func New(embedder memory.Embedder, opts ...Option) (*Index, error) {
	i := &Index{
		embedder:    embedder,
		concurrency: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(i)
	}

	db, col, err := i.newCollection()
	if err != nil {
		return nil, err
	}
	i.db, i.col = db, col
	return i, nil
}

// newCollection creates an empty database with the memory collection.
func (i *Index) newCollection() (*chromem.DB, *chromem.Collection, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(
		CollectionName,
		map[string]string{"space": "cosine"},
		i.embeddingFunc,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create collection: %w", err)
	}
	return db, col, nil
}

// embeddingFunc adapts the embedder for chromem-go. Documents and queries
// normally arrive with embeddings already set.
func (i *Index) embeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return i.embedder.Embed(ctx, text)
}

// Reload discards every vector and indexes docs from scratch.
// On error the previous contents stay in place.
func (i *Index) Reload(ctx context.Context, docs []memory.Document) error {
	unique := make([]memory.Document, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		unique = append(unique, doc)
	}

	texts := make([]string, len(unique))
	for n, doc := range unique {
		texts[n] = doc.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = i.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed documents: %w", err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embed documents: got %d vectors for %d texts", len(vectors), len(texts))
		}
	}

	db, col, err := i.newCollection()
	if err != nil {
		return err
	}

	if len(unique) > 0 {
		chromemDocs := make([]chromem.Document, len(unique))
		for n, doc := range unique {
			chromemDocs[n] = chromem.Document{
				ID:        doc.ID,
				Content:   doc.Text,
				Embedding: vectors[n],
				Metadata:  metadataOf(doc),
			}
		}
		if err := col.AddDocuments(ctx, chromemDocs, i.concurrency); err != nil {
			return fmt.Errorf("add documents: %w", err)
		}
	}

	i.mu.Lock()
	i.db, i.col = db, col
	i.mu.Unlock()

	log.Printf("[INDEX] Reloaded %d documents", len(unique))
	return nil
}

// Query returns up to k nearest documents with their cosine distance.
func (i *Index) Query(ctx context.Context, text string, k int) ([]memory.Hit, error) {
	i.mu.RLock()
	col := i.col
	i.mu.RUnlock()

	// chromem-go requires 0 < nResults <= collection size
	count := col.Count()
	if count == 0 || k < 1 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	embedding, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]memory.Hit, len(results))
	for n, result := range results {
		hits[n] = memory.Hit{
			ID:       result.ID,
			Text:     result.Content,
			Distance: 1 - float64(result.Similarity),
		}
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.col.Count()
}

func metadataOf(doc memory.Document) map[string]string {
	metadata := map[string]string{}
	if doc.Metadata.Title != "" {
		metadata["title"] = doc.Metadata.Title
	}
	if doc.Metadata.URL != "" {
		metadata["url"] = doc.Metadata.URL
	}
	return metadata
}
