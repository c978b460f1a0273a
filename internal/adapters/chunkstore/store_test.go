package chunkstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opschat/opschat-go/internal/domain/entities"
	"github.com/opschat/opschat-go/internal/domain/ports"
)

// store is the combined surface both adapters implement.
type store interface {
	ports.DocumentStore
	ports.ChunkStore
}

func runStoreSuite(t *testing.T, open func(t *testing.T) store) {
	ctx := context.Background()

	t.Run("document lifecycle", func(t *testing.T) {
		s := open(t)

		doc := &entities.Document{Filename: "guide.txt", Path: "uploads/guide.txt"}
		require.NoError(t, s.CreateDocument(ctx, doc))
		require.NotZero(t, doc.ID)

		got, err := s.GetDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "guide.txt", got.Filename)

		byPath, err := s.FindDocumentByPath(ctx, "uploads/guide.txt")
		require.NoError(t, err)
		assert.Equal(t, doc.ID, byPath.ID)

		_, err = s.GetDocument(ctx, 9999)
		assert.ErrorIs(t, err, entities.ErrNotFound)

		_, err = s.FindDocumentByPath(ctx, "uploads/missing.txt")
		assert.ErrorIs(t, err, entities.ErrNotFound)

		docs, err := s.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Len(t, docs, 1)

		require.NoError(t, s.DeleteDocument(ctx, doc.ID))
		assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), entities.ErrNotFound)
	})

	t.Run("chunks ordered by index", func(t *testing.T) {
		s := open(t)

		doc := &entities.Document{Filename: "a.txt", Path: "a.txt"}
		require.NoError(t, s.CreateDocument(ctx, doc))

		for i := 0; i < 3; i++ {
			c := &entities.Chunk{DocumentID: doc.ID, Text: "chunk", Index: i}
			require.NoError(t, s.InsertChunk(ctx, c))
			require.NotZero(t, c.ID)
		}

		count, err := s.CountChunks(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		chunks, err := s.ListChunks(ctx, doc.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.False(t, c.Embedded())
		}
	})

	t.Run("delete chunks is idempotent", func(t *testing.T) {
		s := open(t)

		doc := &entities.Document{Filename: "b.txt", Path: "b.txt"}
		require.NoError(t, s.CreateDocument(ctx, doc))
		require.NoError(t, s.InsertChunk(ctx, &entities.Chunk{DocumentID: doc.ID, Text: "x", Index: 0}))

		require.NoError(t, s.DeleteChunks(ctx, doc.ID))
		count, err := s.CountChunks(ctx, doc.ID)
		require.NoError(t, err)
		assert.Zero(t, count)

		// Second delete on a zero-chunk document must also succeed.
		require.NoError(t, s.DeleteChunks(ctx, doc.ID))
	})

	t.Run("embeddings", func(t *testing.T) {
		s := open(t)

		doc := &entities.Document{Filename: "c.txt", Path: "c.txt"}
		require.NoError(t, s.CreateDocument(ctx, doc))

		chunks := make([]*entities.Chunk, 4)
		for i := range chunks {
			chunks[i] = &entities.Chunk{DocumentID: doc.ID, Text: "t", Index: i}
			require.NoError(t, s.InsertChunk(ctx, chunks[i]))
		}

		require.NoError(t, s.SetEmbedding(ctx, chunks[1].ID, []float64{0.1, 0.2}))
		require.NoError(t, s.SetEmbedding(ctx, chunks[3].ID, []float64{0.3, 0.4}))
		assert.ErrorIs(t, s.SetEmbedding(ctx, 9999, []float64{1}), entities.ErrNotFound)

		embedded, err := s.ListEmbeddedChunks(ctx, doc.ID)
		require.NoError(t, err)
		require.Len(t, embedded, 2)
		assert.Equal(t, 1, embedded[0].Index)
		assert.Equal(t, []float64{0.1, 0.2}, embedded[0].Embedding)
		assert.Equal(t, 3, embedded[1].Index)
	})

	t.Run("global listing ordered by document then index", func(t *testing.T) {
		s := open(t)

		first := &entities.Document{Filename: "one.txt", Path: "one.txt"}
		second := &entities.Document{Filename: "two.txt", Path: "two.txt"}
		require.NoError(t, s.CreateDocument(ctx, first))
		require.NoError(t, s.CreateDocument(ctx, second))

		// Insert interleaved to prove ordering comes from the store.
		require.NoError(t, s.InsertChunk(ctx, &entities.Chunk{DocumentID: second.ID, Text: "s0", Index: 0}))
		require.NoError(t, s.InsertChunk(ctx, &entities.Chunk{DocumentID: first.ID, Text: "f0", Index: 0}))
		require.NoError(t, s.InsertChunk(ctx, &entities.Chunk{DocumentID: first.ID, Text: "f1", Index: 1}))

		all, err := s.ListChunks(ctx, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "f0", all[0].Text)
		assert.Equal(t, "f1", all[1].Text)
		assert.Equal(t, "s0", all[2].Text)

		total, err := s.CountChunks(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store {
		return NewMemoryStore()
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
