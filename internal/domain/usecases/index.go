// Package usecases contains application business rules.
// Clean Architecture: Usecases orchestrate entities and depend on port interfaces.
// They contain NO framework code - just the engine's indexing and retrieval logic.
package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/opschat/opschat-go/internal/domain/chunker"
	"github.com/opschat/opschat-go/internal/domain/entities"
	"github.com/opschat/opschat-go/internal/domain/ports"
)

// IndexUseCase turns document files into stored, embedded chunk sets.
//
// File-level operations are serialized per path: the upload handler and the
// file watcher both call IndexFile for the same file (the watcher sees the
// handler's own write), so there must be one writer per document at a time,
// and the replay must not redo work. A content fingerprint per path makes
// re-indexing an unchanged file a no-op with zero embedding calls.
type IndexUseCase struct {
	docs      ports.DocumentStore
	chunks    ports.ChunkStore
	embedder  ports.EmbeddingService
	extractor ports.TextExtractor
	chunkSize int
	overlap   int

	mu           sync.Mutex
	pathLocks    map[string]*sync.Mutex
	fingerprints map[string]string
}

// NewIndexUseCase creates an IndexUseCase with injected dependencies.
func NewIndexUseCase(
	docs ports.DocumentStore,
	chunks ports.ChunkStore,
	embedder ports.EmbeddingService,
	extractor ports.TextExtractor,
	chunkSize, overlap int,
) *IndexUseCase {
	if chunkSize <= 0 {
		chunkSize = 500 // Default chunk size in characters
	}
	if overlap < 0 {
		overlap = 50
	}
	return &IndexUseCase{
		docs:         docs,
		chunks:       chunks,
		embedder:     embedder,
		extractor:    extractor,
		chunkSize:    chunkSize,
		overlap:      overlap,
		pathLocks:    make(map[string]*sync.Mutex),
		fingerprints: make(map[string]string),
	}
}

// lockPath acquires the per-path mutex, creating it on first use. Returns
// the unlock function.
func (uc *IndexUseCase) lockPath(path string) func() {
	uc.mu.Lock()
	if uc.pathLocks == nil {
		uc.pathLocks = make(map[string]*sync.Mutex)
	}
	l, ok := uc.pathLocks[path]
	if !ok {
		l = &sync.Mutex{}
		uc.pathLocks[path] = l
	}
	uc.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (uc *IndexUseCase) getFingerprint(path string) string {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.fingerprints[path]
}

func (uc *IndexUseCase) setFingerprint(path, fp string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.fingerprints == nil {
		uc.fingerprints = make(map[string]string)
	}
	if fp == "" {
		delete(uc.fingerprints, path)
		return
	}
	uc.fingerprints[path] = fp
}

func contentFingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Reindex replaces the document's stored chunk set with fresh segments of
// text. The old set (embeddings included) is deleted first so nothing stale
// survives a re-chunk. If an insert fails partway, the chunks inserted so
// far are deleted again: a half-indexed document must never participate in
// retrieval.
func (uc *IndexUseCase) Reindex(ctx context.Context, documentID int64, text string) (int, error) {
	segments, err := chunker.Split(text, uc.chunkSize, uc.overlap)
	if err != nil {
		return 0, err
	}

	if err := uc.chunks.DeleteChunks(ctx, documentID); err != nil {
		return 0, fmt.Errorf("clearing chunks for document %d: %w", documentID, err)
	}

	for i, segment := range segments {
		chunk := entities.Chunk{DocumentID: documentID, Text: segment, Index: i}
		if err := uc.chunks.InsertChunk(ctx, &chunk); err != nil {
			if delErr := uc.chunks.DeleteChunks(ctx, documentID); delErr != nil {
				return 0, fmt.Errorf("inserting chunk %d: %v (rollback failed: %w)", i, err, delErr)
			}
			return 0, fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	if stats := chunker.Summarize(segments); stats.Count > 0 {
		log.Printf("[INFO] Document %d chunked: %d chunks, %d chars avg (min %d, max %d)",
			documentID, stats.Count, stats.AvgLength, stats.MinLength, stats.MaxLength)
	}

	return len(segments), nil
}

// EmbedPending generates embeddings for every chunk of the document that
// does not carry one yet; chunks that already do are skipped, never
// re-embedded. documentID == 0 processes the whole store. A failure partway
// leaves the embeddings written so far intact and reports the counts
// reached when the batch stopped.
func (uc *IndexUseCase) EmbedPending(ctx context.Context, documentID int64) (entities.EmbedStats, error) {
	start := time.Now()
	var stats entities.EmbedStats

	all, err := uc.chunks.ListChunks(ctx, documentID)
	if err != nil {
		return stats, fmt.Errorf("listing chunks: %w", err)
	}

	for _, chunk := range all {
		if chunk.Embedded() {
			stats.Skipped++
			continue
		}

		vector, err := uc.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			stats.Elapsed = time.Since(start)
			return stats, fmt.Errorf("embedding chunk %d: %w", chunk.ID, err)
		}
		if err := uc.chunks.SetEmbedding(ctx, chunk.ID, vector); err != nil {
			stats.Elapsed = time.Since(start)
			return stats, fmt.Errorf("storing embedding for chunk %d: %w", chunk.ID, err)
		}
		stats.Generated++
	}

	stats.Elapsed = time.Since(start)
	return stats, nil
}

// IndexFile extracts the file's text, registers the document (reusing the
// record when the path was indexed before), re-chunks it and runs an
// embedding pass. This is the single entry point used by uploads and the
// file watcher. Calls for the same path are serialized, and a call whose
// extracted content matches the last indexed content for that path returns
// the current state without re-chunking or re-embedding anything.
func (uc *IndexUseCase) IndexFile(ctx context.Context, path string) (*entities.Document, int, entities.EmbedStats, error) {
	unlock := uc.lockPath(path)
	defer unlock()

	text, err := uc.extractor.Extract(ctx, path)
	if err != nil {
		return nil, 0, entities.EmbedStats{}, fmt.Errorf("extracting %s: %w", path, err)
	}
	fp := contentFingerprint(text)

	doc, err := uc.docs.FindDocumentByPath(ctx, path)
	switch {
	case errors.Is(err, entities.ErrNotFound):
		doc = &entities.Document{Filename: filepath.Base(path), Path: path, UploadDate: time.Now()}
		if err := uc.docs.CreateDocument(ctx, doc); err != nil {
			return nil, 0, entities.EmbedStats{}, fmt.Errorf("registering document: %w", err)
		}
	case err != nil:
		return nil, 0, entities.EmbedStats{}, fmt.Errorf("looking up document: %w", err)
	case uc.getFingerprint(path) == fp:
		count, err := uc.chunks.CountChunks(ctx, doc.ID)
		if err != nil {
			return doc, 0, entities.EmbedStats{}, fmt.Errorf("counting chunks: %w", err)
		}
		log.Printf("[DEBUG] %s unchanged, index replay skipped", path)
		return doc, count, entities.EmbedStats{Skipped: count}, nil
	}

	inserted, err := uc.Reindex(ctx, doc.ID, text)
	if err != nil {
		return doc, 0, entities.EmbedStats{}, err
	}

	stats, err := uc.EmbedPending(ctx, doc.ID)
	if err != nil {
		return doc, inserted, stats, err
	}
	uc.setFingerprint(path, fp)
	return doc, inserted, stats, nil
}

// ReindexDocument re-extracts a known document from its stored path and
// rebuilds its chunk set and embeddings. An explicit reindex always runs,
// even when the content is unchanged.
func (uc *IndexUseCase) ReindexDocument(ctx context.Context, documentID int64) (int, entities.EmbedStats, error) {
	doc, err := uc.docs.GetDocument(ctx, documentID)
	if err != nil {
		return 0, entities.EmbedStats{}, err
	}

	unlock := uc.lockPath(doc.Path)
	defer unlock()

	text, err := uc.extractor.Extract(ctx, doc.Path)
	if err != nil {
		return 0, entities.EmbedStats{}, fmt.Errorf("extracting %s: %w", doc.Path, err)
	}

	inserted, err := uc.Reindex(ctx, doc.ID, text)
	if err != nil {
		return 0, entities.EmbedStats{}, err
	}

	stats, err := uc.EmbedPending(ctx, doc.ID)
	if err != nil {
		return inserted, stats, err
	}
	uc.setFingerprint(doc.Path, contentFingerprint(text))
	return inserted, stats, nil
}

// DeleteDocument removes a document together with its chunks and its path
// fingerprint, so a later re-appearance of the same file is indexed fresh.
func (uc *IndexUseCase) DeleteDocument(ctx context.Context, documentID int64) error {
	doc, err := uc.docs.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := uc.chunks.DeleteChunks(ctx, documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if err := uc.docs.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	uc.setFingerprint(doc.Path, "")
	return nil
}

// RemoveFile deletes the document registered for a path, if any. Used by
// the file watcher when a source file disappears.
func (uc *IndexUseCase) RemoveFile(ctx context.Context, path string) error {
	unlock := uc.lockPath(path)
	defer unlock()

	doc, err := uc.docs.FindDocumentByPath(ctx, path)
	if errors.Is(err, entities.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return uc.DeleteDocument(ctx, doc.ID)
}
