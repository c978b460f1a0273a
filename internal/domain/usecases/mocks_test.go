package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/opschat/opschat-go/internal/domain/entities"
)

// fakeStore implements ports.DocumentStore and ports.ChunkStore in memory,
// with failure injection for the rollback paths.
type fakeStore struct {
	nextDocID   int64
	nextChunkID int64
	docs        map[int64]entities.Document
	chunks      map[int64][]entities.Chunk

	inserts      int
	failInsertAt int // 1-based insert count that fails; 0 = never
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   make(map[int64]entities.Document),
		chunks: make(map[int64][]entities.Chunk),
	}
}

func (s *fakeStore) CreateDocument(_ context.Context, doc *entities.Document) error {
	s.nextDocID++
	doc.ID = s.nextDocID
	s.docs[doc.ID] = *doc
	return nil
}

func (s *fakeStore) GetDocument(_ context.Context, id int64) (*entities.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	return &doc, nil
}

func (s *fakeStore) FindDocumentByPath(_ context.Context, path string) (*entities.Document, error) {
	for _, doc := range s.docs {
		if doc.Path == path {
			d := doc
			return &d, nil
		}
	}
	return nil, entities.ErrNotFound
}

func (s *fakeStore) ListDocuments(_ context.Context) ([]entities.Document, error) {
	var docs []entities.Document
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *fakeStore) DeleteDocument(_ context.Context, id int64) error {
	if _, ok := s.docs[id]; !ok {
		return entities.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

func (s *fakeStore) InsertChunk(_ context.Context, chunk *entities.Chunk) error {
	s.inserts++
	if s.failInsertAt > 0 && s.inserts == s.failInsertAt {
		return errors.New("disk full")
	}
	s.nextChunkID++
	chunk.ID = s.nextChunkID
	s.chunks[chunk.DocumentID] = append(s.chunks[chunk.DocumentID], *chunk)
	return nil
}

func (s *fakeStore) DeleteChunks(_ context.Context, documentID int64) error {
	delete(s.chunks, documentID)
	return nil
}

func (s *fakeStore) CountChunks(_ context.Context, documentID int64) (int, error) {
	if documentID > 0 {
		return len(s.chunks[documentID]), nil
	}
	total := 0
	for _, chunks := range s.chunks {
		total += len(chunks)
	}
	return total, nil
}

func (s *fakeStore) ListChunks(_ context.Context, documentID int64) ([]entities.Chunk, error) {
	return s.collect(documentID, false), nil
}

func (s *fakeStore) ListEmbeddedChunks(_ context.Context, documentID int64) ([]entities.Chunk, error) {
	return s.collect(documentID, true), nil
}

func (s *fakeStore) collect(documentID int64, embeddedOnly bool) []entities.Chunk {
	var out []entities.Chunk
	for docID, chunks := range s.chunks {
		if documentID > 0 && docID != documentID {
			continue
		}
		for _, c := range chunks {
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

func (s *fakeStore) SetEmbedding(_ context.Context, chunkID int64, embedding []float64) error {
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

// fakeEmbedder counts external calls and can fail at a given call number.
type fakeEmbedder struct {
	calls      int
	failAt     int // 1-based call count that fails; 0 = never
	vectors    map[string][]float64
	defaultVec []float64
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.calls++
	if e.failAt > 0 && e.calls == e.failAt {
		return nil, errors.New("provider unreachable")
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	if e.defaultVec != nil {
		return e.defaultVec, nil
	}
	return []float64{0.1, 0.2}, nil
}

// fakeLLM records the prompts it was asked with.
type fakeLLM struct {
	response   string
	lastSystem string
	lastUser   string
}

func (l *fakeLLM) Generate(_ context.Context, system, user string) (string, error) {
	l.lastSystem = system
	l.lastUser = user
	if l.response != "" {
		return l.response, nil
	}
	return "mocked answer", nil
}

func (l *fakeLLM) Model() string { return "fake-model" }

// fakeExtractor serves canned text per path.
type fakeExtractor struct {
	texts map[string]string
}

func (e *fakeExtractor) Extract(_ context.Context, path string) (string, error) {
	text, ok := e.texts[path]
	if !ok {
		return "", fmt.Errorf("no such file: %s", path)
	}
	return text, nil
}

func (e *fakeExtractor) SupportedExtensions() []string {
	return []string{".txt", ".md"}
}
