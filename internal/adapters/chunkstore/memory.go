// Package chunkstore provides document and chunk storage adapters.
// Clean Architecture: Adapters implementing ports.DocumentStore and
// ports.ChunkStore. The in-memory store covers tests and ephemeral runs;
// the SQLite store persists across restarts.
package chunkstore

import (
	"context"
	"sort"
	"sync"

	"github.com/opschat/opschat-go/internal/domain/entities"
)

// MemoryStore keeps documents and chunks in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	nextDocID   int64
	nextChunkID int64
	docs        map[int64]entities.Document
	chunks      map[int64][]entities.Chunk // document id -> chunks ordered by index
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[int64]entities.Document),
		chunks: make(map[int64][]entities.Chunk),
	}
}

// CreateDocument inserts a document and assigns its ID.
func (s *MemoryStore) CreateDocument(_ context.Context, doc *entities.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDocID++
	doc.ID = s.nextDocID
	s.docs[doc.ID] = *doc
	return nil
}

// GetDocument retrieves a document by ID.
func (s *MemoryStore) GetDocument(_ context.Context, id int64) (*entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	return &doc, nil
}

// FindDocumentByPath retrieves a document by its stored file path.
func (s *MemoryStore) FindDocumentByPath(_ context.Context, path string) (*entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, doc := range s.docs {
		if doc.Path == path {
			d := doc
			return &d, nil
		}
	}
	return nil, entities.ErrNotFound
}

// ListDocuments returns all documents ordered by ID.
func (s *MemoryStore) ListDocuments(_ context.Context) ([]entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]entities.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// DeleteDocument removes the document record.
func (s *MemoryStore) DeleteDocument(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return entities.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

// InsertChunk appends a chunk record and assigns its ID.
func (s *MemoryStore) InsertChunk(_ context.Context, chunk *entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextChunkID++
	chunk.ID = s.nextChunkID
	s.chunks[chunk.DocumentID] = append(s.chunks[chunk.DocumentID], *chunk)
	return nil
}

// DeleteChunks removes every chunk belonging to the document. Idempotent.
func (s *MemoryStore) DeleteChunks(_ context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chunks, documentID)
	return nil
}

// CountChunks returns the number of chunks stored for the document, or the
// store-wide total when documentID == 0.
func (s *MemoryStore) CountChunks(_ context.Context, documentID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if documentID > 0 {
		return len(s.chunks[documentID]), nil
	}
	total := 0
	for _, chunks := range s.chunks {
		total += len(chunks)
	}
	return total, nil
}

// ListChunks returns chunks ordered by index, scoped to one document when
// documentID > 0 or across all documents ordered by (document id, index)
// when documentID == 0.
func (s *MemoryStore) ListChunks(_ context.Context, documentID int64) ([]entities.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(documentID, false), nil
}

// ListEmbeddedChunks is ListChunks restricted to chunks carrying an embedding.
func (s *MemoryStore) ListEmbeddedChunks(_ context.Context, documentID int64) ([]entities.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(documentID, true), nil
}

func (s *MemoryStore) collect(documentID int64, embeddedOnly bool) []entities.Chunk {
	var docIDs []int64
	if documentID > 0 {
		docIDs = []int64{documentID}
	} else {
		for id := range s.chunks {
			docIDs = append(docIDs, id)
		}
		sort.Slice(docIDs, func(i, j int) bool { return docIDs[i] < docIDs[j] })
	}

	var out []entities.Chunk
	for _, id := range docIDs {
		for _, c := range s.chunks[id] {
			if embeddedOnly && !c.Embedded() {
				continue
			}
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// SetEmbedding attaches or replaces the embedding for one chunk.
func (s *MemoryStore) SetEmbedding(_ context.Context, chunkID int64, embedding []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for docID, chunks := range s.chunks {
		for i := range chunks {
			if chunks[i].ID == chunkID {
				s.chunks[docID][i].Embedding = embedding
				return nil
			}
		}
	}
	return entities.ErrNotFound
}
