package file

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/becomeliminal/glados/core"
	"github.com/becomeliminal/glados/memory"
)

// Documents is a JSONL document log deduplicated by content hash.
type Documents struct {
	path string
	mu   sync.Mutex
	byID map[string]memory.Document
}

// NewDocuments opens the log at path, creating an empty file if absent,
// and indexes the ids already stored.
func NewDocuments(path string) (*Documents, error) {
	if err := ensureFile(path); err != nil {
		return nil, core.StorageError("documents open", err)
	}

	d := &Documents{
		path: path,
		byID: make(map[string]memory.Document),
	}
	docs, err := d.load()
	if err != nil {
		return nil, core.StorageError("documents open", err)
	}
	for _, doc := range docs {
		d.byID[doc.ID] = doc
	}
	return d, nil
}

// Append stores text unless a document with the same content hash exists.
func (d *Documents) Append(ctx context.Context, text string, meta memory.Metadata) (memory.Document, bool, error) {
	doc, err := memory.NewDocument(text, meta)
	if err != nil {
		return memory.Document{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return memory.Document{}, false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.byID[doc.ID]; ok {
		return existing, false, nil
	}

	line, err := json.Marshal(doc)
	if err != nil {
		return memory.Document{}, false, fmt.Errorf("marshal document: %w", err)
	}
	if err := appendLine(d.path, line); err != nil {
		return memory.Document{}, false, core.StorageError("documents append", err)
	}

	d.byID[doc.ID] = doc
	return doc, true, nil
}

// LoadAll returns every stored document in insertion order.
func (d *Documents) LoadAll(ctx context.Context) ([]memory.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	docs, err := d.load()
	if err != nil {
		return nil, core.StorageError("documents load", err)
	}
	return docs, nil
}

// Clear truncates the log.
func (d *Documents) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := truncate(d.path); err != nil {
		return core.StorageError("documents clear", err)
	}
	d.byID = make(map[string]memory.Document)
	return nil
}

// Len returns the number of stored documents.
func (d *Documents) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byID)
}

func (d *Documents) load() ([]memory.Document, error) {
	lines, err := readLines(d.path)
	if err != nil {
		return nil, err
	}

	docs := make([]memory.Document, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for i, line := range lines {
		var doc memory.Document
		if err := json.Unmarshal(line, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if doc.ID == "" {
			doc.ID = memory.DocumentID(doc.Text)
		}
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		docs = append(docs, doc)
	}
	return docs, nil
}
