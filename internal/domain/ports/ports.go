// Package ports defines interfaces for external dependencies.
// Clean Architecture: These are the boundaries - usecases depend on these abstractions,
// not concrete implementations. Adapters implement these interfaces.
package ports

import (
	"context"

	"github.com/opschat/opschat-go/internal/domain/entities"
)

// EmbeddingService generates a vector embedding for a piece of text.
// One call per chunk; batching and retry policy belong to the host.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// LLMService generates a chat completion from a system and user message.
type LLMService interface {
	Generate(ctx context.Context, system, user string) (string, error)

	// Model returns the model identifier reported alongside answers.
	Model() string
}

// DocumentStore owns document records and their identity.
type DocumentStore interface {
	// CreateDocument inserts a document and assigns its ID.
	CreateDocument(ctx context.Context, doc *entities.Document) error

	// GetDocument returns entities.ErrNotFound for an unknown id.
	GetDocument(ctx context.Context, id int64) (*entities.Document, error)

	// FindDocumentByPath returns entities.ErrNotFound when no document
	// references the given file path.
	FindDocumentByPath(ctx context.Context, path string) (*entities.Document, error)

	ListDocuments(ctx context.Context) ([]entities.Document, error)

	// DeleteDocument removes the document record only; chunks are the
	// ChunkStore's to delete.
	DeleteDocument(ctx context.Context, id int64) error
}

// ChunkStore owns chunk and embedding lifetime.
//
// For the List methods, documentID > 0 scopes the listing to one document
// ordered by chunk index; documentID == 0 lists every chunk ordered by
// (document id, chunk index).
type ChunkStore interface {
	// InsertChunk appends a chunk record and assigns its ID. The caller
	// supplies the sequential index; no embedding is attached yet.
	InsertChunk(ctx context.Context, chunk *entities.Chunk) error

	// DeleteChunks removes every chunk (and embedding) belonging to the
	// document. Idempotent: deleting a document with zero chunks is fine.
	DeleteChunks(ctx context.Context, documentID int64) error

	CountChunks(ctx context.Context, documentID int64) (int, error)

	ListChunks(ctx context.Context, documentID int64) ([]entities.Chunk, error)

	// ListEmbeddedChunks returns only chunks that carry an embedding.
	ListEmbeddedChunks(ctx context.Context, documentID int64) ([]entities.Chunk, error)

	// SetEmbedding attaches or replaces the embedding for one chunk.
	// Returns entities.ErrNotFound for an unknown chunk id.
	SetEmbedding(ctx context.Context, chunkID int64, embedding []float64) error
}

// TextExtractor turns a document file into plain UTF-8 text.
// Container-format handling (PDF page parsing etc.) lives entirely behind
// this boundary.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)

	// SupportedExtensions returns file extensions this extractor handles.
	SupportedExtensions() []string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
