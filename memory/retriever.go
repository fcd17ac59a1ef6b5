package memory

import (
	"context"
	"fmt"
	"log"
)

// Retriever turns a query into at most one piece of context.
//
// Only the best hit is ever returned, and only when its similarity clears the
// threshold. TopK controls how many candidates are fetched, not how many are used.
type Retriever struct {
	index  VectorIndex
	config *RetrieverConfig
}

// NewRetriever creates a Retriever over index.
func NewRetriever(index VectorIndex, config *RetrieverConfig) *Retriever {
	if config == nil {
		config = DefaultRetrieverConfig
	}
	return &Retriever{
		index:  index,
		config: config,
	}
}

// Retrieve returns the best document's text when it is relevant enough.
// ok is false when there is no candidate or it falls below the threshold.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, bool, error) {
	k := r.config.TopK
	if k < 1 {
		k = 1
	}

	hits, err := r.index.Query(ctx, query, k)
	if err != nil {
		return "", false, fmt.Errorf("query index: %w", err)
	}
	if len(hits) == 0 {
		log.Printf("[MEMORY] No documents indexed, skipping context")
		return "", false, nil
	}

	best := hits[0]
	similarity := best.Similarity()
	if similarity < r.config.Threshold {
		log.Printf("[MEMORY] Best match below threshold: similarity=%.3f threshold=%.2f", similarity, r.config.Threshold)
		return "", false, nil
	}

	log.Printf("[MEMORY] Using context: similarity=%.3f text=%q", similarity, truncateLog(best.Text, 50))
	return best.Text, true, nil
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// RetrieverConfig holds Retriever configuration.
type RetrieverConfig struct {
	// TopK is how many candidates are fetched from the index.
	// Default: 1
	TopK int `yaml:"top_k"`

	// Threshold is the minimum similarity (1 - cosine distance) for a
	// document to be used as context. Inclusive.
	// Default: 0.4
	Threshold float64 `yaml:"threshold"`
}

// DefaultRetrieverConfig matches the original deployment.
var DefaultRetrieverConfig = &RetrieverConfig{
	TopK:      1,
	Threshold: 0.4,
}
