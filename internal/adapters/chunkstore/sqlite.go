package chunkstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/opschat/opschat-go/internal/domain/entities"
)

// SQLiteStore persists documents and chunks in a single SQLite file.
// Embeddings are stored as JSON blobs next to their chunk; the brute-force
// retrieval scan reads them back in one pass.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "opschat.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		file_path TEXT NOT NULL,
		upload_date TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL,
		chunk_text TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		embedding BLOB,
		FOREIGN KEY (document_id) REFERENCES documents(id)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateDocument inserts a document and assigns its ID.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *entities.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.UploadDate.IsZero() {
		doc.UploadDate = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (filename, file_path, upload_date) VALUES (?, ?, ?)`,
		doc.Filename, doc.Path, doc.UploadDate)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	doc.ID, err = res.LastInsertId()
	return err
}

// GetDocument retrieves a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanDocument(s.db.QueryRowContext(ctx,
		`SELECT id, filename, file_path, upload_date FROM documents WHERE id = ?`, id))
}

// FindDocumentByPath retrieves a document by its stored file path.
func (s *SQLiteStore) FindDocumentByPath(ctx context.Context, path string) (*entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanDocument(s.db.QueryRowContext(ctx,
		`SELECT id, filename, file_path, upload_date FROM documents WHERE file_path = ?`, path))
}

func (s *SQLiteStore) scanDocument(row *sql.Row) (*entities.Document, error) {
	var doc entities.Document
	err := row.Scan(&doc.ID, &doc.Filename, &doc.Path, &doc.UploadDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entities.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns all documents ordered by ID.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]entities.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, file_path, upload_date FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []entities.Document
	for rows.Next() {
		var doc entities.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Path, &doc.UploadDate); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes the document record.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrNotFound
	}
	return nil
}

// InsertChunk appends a chunk record and assigns its ID.
func (s *SQLiteStore) InsertChunk(ctx context.Context, chunk *entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (document_id, chunk_text, chunk_index) VALUES (?, ?, ?)`,
		chunk.DocumentID, chunk.Text, chunk.Index)
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}
	chunk.ID, err = res.LastInsertId()
	return err
}

// DeleteChunks removes every chunk belonging to the document. Idempotent.
func (s *SQLiteStore) DeleteChunks(ctx context.Context, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	return err
}

// CountChunks returns the number of chunks stored for the document, or the
// store-wide total when documentID == 0.
func (s *SQLiteStore) CountChunks(ctx context.Context, documentID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	var err error
	if documentID > 0 {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	}
	return count, err
}

// ListChunks returns chunks ordered by index, scoped to one document when
// documentID > 0 or across all documents when documentID == 0.
func (s *SQLiteStore) ListChunks(ctx context.Context, documentID int64) ([]entities.Chunk, error) {
	return s.listChunks(ctx, documentID, false)
}

// ListEmbeddedChunks is ListChunks restricted to chunks carrying an embedding.
func (s *SQLiteStore) ListEmbeddedChunks(ctx context.Context, documentID int64) ([]entities.Chunk, error) {
	return s.listChunks(ctx, documentID, true)
}

func (s *SQLiteStore) listChunks(ctx context.Context, documentID int64, embeddedOnly bool) ([]entities.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, document_id, chunk_text, chunk_index, embedding FROM chunks`
	var (
		where []string
		args  []any
	)
	if documentID > 0 {
		where = append(where, `document_id = ?`)
		args = append(args, documentID)
	}
	if embeddedOnly {
		where = append(where, `embedding IS NOT NULL`)
	}
	for i, cond := range where {
		if i == 0 {
			query += ` WHERE ` + cond
		} else {
			query += ` AND ` + cond
		}
	}
	query += ` ORDER BY document_id, chunk_index`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []entities.Chunk
	for rows.Next() {
		var (
			chunk entities.Chunk
			blob  []byte
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Text, &chunk.Index, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if blob != nil {
			if err := json.Unmarshal(blob, &chunk.Embedding); err != nil {
				return nil, fmt.Errorf("decoding embedding for chunk %d: %w", chunk.ID, err)
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// SetEmbedding attaches or replaces the embedding for one chunk.
func (s *SQLiteStore) SetEmbedding(ctx context.Context, chunkID int64, embedding []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding = ? WHERE id = ?`, blob, chunkID)
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrNotFound
	}
	return nil
}
