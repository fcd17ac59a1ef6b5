package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrEmptyText is returned when a document has no text left after normalization.
var ErrEmptyText = errors.New("document text is empty")

// Metadata describes where a document came from.
type Metadata struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Document is a unit of retrievable text.
// ID is a content hash of Text, so identical text always maps to the same document.
type Document struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// NewDocument normalizes text and derives the document's ID from it.
func NewDocument(text string, meta Metadata) (Document, error) {
	text = Normalize(text)
	if text == "" {
		return Document{}, ErrEmptyText
	}
	return Document{
		ID:       DocumentID(text),
		Text:     text,
		Metadata: meta,
	}, nil
}

// Normalize is the single normalization applied before hashing and storing.
func Normalize(text string) string {
	return strings.TrimSpace(text)
}

// DocumentID returns the content hash identifying text.
func DocumentID(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Hit is one nearest-neighbour result.
type Hit struct {
	ID   string
	Text string

	// Distance is cosine distance in [0, 2].
	Distance float64
}

// Similarity returns 1 - Distance.
func (h Hit) Similarity() float64 {
	return Similarity(h.Distance)
}

// Similarity converts a cosine distance to a similarity score.
func Similarity(distance float64) float64 {
	return 1 - distance
}
