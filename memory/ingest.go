package memory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
)

var citationPattern = regexp.MustCompile(`\[\d+\]`)

// StripCitations removes bracketed citation markers such as "[12]".
func StripCitations(s string) string {
	return citationPattern.ReplaceAllString(s, "")
}

// RawResult is one unprocessed search result.
type RawResult struct {
	Title string
	URL   string
	Body  string
}

// Ingestor feeds search results into the document log and keeps the index in sync.
type Ingestor struct {
	docs  DocumentLog
	index VectorIndex
}

// NewIngestor creates an Ingestor.
func NewIngestor(docs DocumentLog, index VectorIndex) *Ingestor {
	return &Ingestor{
		docs:  docs,
		index: index,
	}
}

// Ingest cleans results, appends the new ones and reloads the index once.
// Returns the ids of documents that were not already present.
func (i *Ingestor) Ingest(ctx context.Context, results []RawResult) ([]string, error) {
	seen := make(map[string]struct{}, len(results))
	var added []string

	for n, result := range results {
		body := StripCitations(result.Body)
		if _, dup := seen[body]; dup {
			log.Printf("[INGEST] Skipping result #%d: duplicate body in batch", n+1)
			continue
		}
		seen[body] = struct{}{}

		doc, isNew, err := i.docs.Append(ctx, body, Metadata{Title: result.Title, URL: result.URL})
		if errors.Is(err, ErrEmptyText) {
			log.Printf("[INGEST] Skipping result #%d: empty body", n+1)
			continue
		}
		if err != nil {
			err = fmt.Errorf("append document: %w", err)
			if len(added) > 0 {
				// Documents appended so far must still reach the index.
				if _, rerr := i.Reindex(ctx); rerr != nil {
					err = errors.Join(err, rerr)
				}
			}
			return added, err
		}
		if !isNew {
			log.Printf("[INGEST] Result #%d already present: id=%s", n+1, doc.ID)
			continue
		}
		added = append(added, doc.ID)
	}

	log.Printf("[INGEST] Added %d documents (from %d results)", len(added), len(results))

	if _, err := i.Reindex(ctx); err != nil {
		return added, err
	}
	return added, nil
}

// Reindex rebuilds the index from the full document log.
func (i *Ingestor) Reindex(ctx context.Context) (int, error) {
	docs, err := i.docs.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load documents: %w", err)
	}
	if err := i.index.Reload(ctx, docs); err != nil {
		return 0, fmt.Errorf("reload index: %w", err)
	}
	return len(docs), nil
}
