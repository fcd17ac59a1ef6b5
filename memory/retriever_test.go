package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/becomeliminal/glados/memory"
	"github.com/becomeliminal/glados/memory/embedder/mock"
	"github.com/becomeliminal/glados/memory/store/chromem"
)

// fakeIndex returns canned hits for any query.
type fakeIndex struct {
	hits    []memory.Hit
	err     error
	lastK   int
	reloads [][]memory.Document
}

func (f *fakeIndex) Reload(ctx context.Context, docs []memory.Document) error {
	f.reloads = append(f.reloads, docs)
	return f.err
}

func (f *fakeIndex) Query(ctx context.Context, text string, k int) ([]memory.Hit, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeIndex) Count() int {
	return len(f.hits)
}

func TestSimilarity(t *testing.T) {
	for _, d := range []float64{0, 0.25, 0.5, 1, 1.5, 2} {
		if got := memory.Similarity(d); got != 1-d {
			t.Errorf("Similarity(%v) = %v, want %v", d, got, 1-d)
		}
	}
}

func TestRetriever_Threshold(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		wantOK   bool
	}{
		{"similarity 0.39 is rejected", 0.61, false},
		{"similarity 0.41 is accepted", 0.59, true},
		{"similarity exactly at threshold is accepted", 0.6, true},
		{"identical text", 0, true},
		{"opposite vectors", 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := &fakeIndex{hits: []memory.Hit{{ID: "a", Text: "candidate", Distance: tt.distance}}}
			r := memory.NewRetriever(index, nil)

			text, ok, err := r.Retrieve(context.Background(), "query")
			if err != nil {
				t.Fatalf("Retrieve failed: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && text != "candidate" {
				t.Errorf("text = %q, want candidate", text)
			}
			if !ok && text != "" {
				t.Errorf("expected no context, got %q", text)
			}
		})
	}
}

func TestRetriever_OnlyBestCandidateIsUsed(t *testing.T) {
	index := &fakeIndex{hits: []memory.Hit{
		{ID: "a", Text: "best", Distance: 0.1},
		{ID: "b", Text: "second", Distance: 0.2},
		{ID: "c", Text: "third", Distance: 0.3},
	}}
	r := memory.NewRetriever(index, &memory.RetrieverConfig{TopK: 3, Threshold: 0.4})

	text, ok, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if !ok || text != "best" {
		t.Errorf("Retrieve = (%q, %v), want (best, true)", text, ok)
	}
	if index.lastK != 3 {
		t.Errorf("expected TopK=3 candidates to be evaluated, got k=%d", index.lastK)
	}
}

func TestRetriever_EmptyIndex(t *testing.T) {
	r := memory.NewRetriever(&fakeIndex{}, nil)

	text, ok, err := r.Retrieve(context.Background(), "query")
	if err != nil {
		t.Fatalf("Retrieve on empty index should not error: %v", err)
	}
	if ok || text != "" {
		t.Errorf("expected no context, got (%q, %v)", text, ok)
	}
}

func TestRetriever_IndexError(t *testing.T) {
	boom := errors.New("boom")
	r := memory.NewRetriever(&fakeIndex{err: boom}, nil)

	_, _, err := r.Retrieve(context.Background(), "query")
	if !errors.Is(err, boom) {
		t.Errorf("expected index error to propagate, got %v", err)
	}
}

func TestRetriever_WithChromemIndex(t *testing.T) {
	ctx := context.Background()

	embedder := mock.NewWithDimensions(2)
	embedder.Set("query", []float32{1, 0})
	// cos = 0.41 and 0.39 against the query
	embedder.Set("close", []float32{0.41, 0.91206})
	embedder.Set("far", []float32{0.39, 0.92081})

	index, err := chromem.New(embedder)
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	r := memory.NewRetriever(index, nil)

	for _, tt := range []struct {
		doc    string
		wantOK bool
	}{
		{"far", false},
		{"close", true},
	} {
		doc, err := memory.NewDocument(tt.doc, memory.Metadata{})
		if err != nil {
			t.Fatalf("NewDocument: %v", err)
		}
		if err := index.Reload(ctx, []memory.Document{doc}); err != nil {
			t.Fatalf("Reload failed: %v", err)
		}

		text, ok, err := r.Retrieve(ctx, "query")
		if err != nil {
			t.Fatalf("Retrieve failed: %v", err)
		}
		if ok != tt.wantOK {
			t.Errorf("%s: ok = %v, want %v", tt.doc, ok, tt.wantOK)
		}
		if ok && text != tt.doc {
			t.Errorf("%s: text = %q", tt.doc, text)
		}
	}
}
