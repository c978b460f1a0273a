// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import "time"

// Document represents an uploaded source document (TXT, MD, PDF).
// Identity and filename are owned by the storage layer; the engine only
// reads them for provenance tagging.
type Document struct {
	ID         int64
	Filename   string
	Path       string
	UploadDate time.Time
}

// Chunk is one overlapping text segment of a document.
// Index is zero-based and sequential within the document; after a
// re-index the stored indices for a document are exactly 0..N-1.
type Chunk struct {
	ID         int64
	DocumentID int64
	Text       string
	Index      int
	Embedding  []float64 // nil until the embedding pass fills it in
}

// Embedded reports whether the chunk already carries an embedding vector.
func (c Chunk) Embedded() bool {
	return c.Embedding != nil
}

// SearchResult pairs a chunk with its relevance score and the filename of
// its source document for citation.
type SearchResult struct {
	Chunk    Chunk
	Score    float64
	Filename string
}

// SearchResponse is the outcome of a semantic search. Indexed is false
// when no stored chunk carries an embedding yet, which is a different
// state from a search that ran and matched nothing.
type SearchResponse struct {
	Results []SearchResult
	Indexed bool
}

// EmbedStats summarizes one embedding pass over a chunk set.
type EmbedStats struct {
	Generated int
	Skipped   int
	Elapsed   time.Duration
}

// Answer is a language-model answer grounded in retrieved chunks.
// Indexed mirrors SearchResponse.Indexed: when false no answer was
// generated because nothing has been embedded yet.
type Answer struct {
	Answer  string
	Model   string
	Sources []SearchResult
	Indexed bool
}
