// Package http provides the JSON API server. Outermost layer: it translates
// HTTP requests into usecase calls and usecase errors into status codes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/opschat/opschat-go/internal/domain/chunker"
	"github.com/opschat/opschat-go/internal/domain/entities"
	"github.com/opschat/opschat-go/internal/domain/ports"
	"github.com/opschat/opschat-go/internal/domain/usecases"
)

const maxUploadBytes = 32 << 20 // 32 MiB

// Server is the HTTP server for the document Q&A API.
type Server struct {
	query     *usecases.QueryUseCase
	index     *usecases.IndexUseCase
	docs      ports.DocumentStore
	chunks    ports.ChunkStore
	uploadDir string
	addr      string
}

// NewServer creates the API server.
func NewServer(
	query *usecases.QueryUseCase,
	index *usecases.IndexUseCase,
	docs ports.DocumentStore,
	chunks ports.ChunkStore,
	uploadDir, addr string,
) *Server {
	return &Server{
		query:     query,
		index:     index,
		docs:      docs,
		chunks:    chunks,
		uploadDir: uploadDir,
		addr:      addr,
	}
}

// Handler builds the route table. Exposed separately so tests can drive the
// mux without a listening socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentByID)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/ask", s.handleAsk)

	return corsMiddleware(loggingMiddleware(mux))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	log.Printf("[INFO] OpsChat server starting on %s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "opschat",
		"message": "document Q&A API",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	total, err := s.chunks.CountChunks(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"documents": len(docs),
		"chunks":    total,
	})
}

type documentResponse struct {
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	UploadDate string `json:"upload_date"`
	Chunks     int    `json:"chunks"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	docs, err := s.docs.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		count, err := s.chunks.CountChunks(r.Context(), doc.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, documentResponse{
			ID:         doc.ID,
			Filename:   doc.Filename,
			UploadDate: doc.UploadDate.Format(time.RFC3339),
			Chunks:     count,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

// handleDocumentByID serves DELETE /documents/{id} and
// POST /documents/{id}/reindex.
func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/documents/")
	idStr, action, _ := strings.Cut(rest, "/")

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		s.deleteDocument(w, r, id)
	case action == "reindex" && r.Method == http.MethodPost:
		s.reindexDocument(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.index.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, entities.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) reindexDocument(w http.ResponseWriter, r *http.Request, id int64) {
	n, stats, err := s.index.ReindexDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, entities.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": id,
		"chunks":      n,
		"embedded":    stats.Generated,
		"skipped":     stats.Skipped,
		"stats":       s.chunkStats(r.Context(), id),
	})
}

// chunkStats summarizes the stored chunk lengths for a document. Stats are
// informational; a listing failure just yields empty stats.
func (s *Server) chunkStats(ctx context.Context, documentID int64) map[string]int {
	chunks, err := s.chunks.ListChunks(ctx, documentID)
	if err != nil {
		return map[string]int{}
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	st := chunker.Summarize(texts)
	return map[string]int{
		"count":      st.Count,
		"avg_length": st.AvgLength,
		"min_length": st.MinLength,
		"max_length": st.MaxLength,
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := sanitizeFilename(header.Filename)
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Timestamp prefix keeps re-uploads of the same filename distinct.
	stored := time.Now().Format("20060102_150405_") + name
	path := filepath.Join(s.uploadDir, stored)

	dst, err := os.Create(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dst.Close()

	doc, n, stats, err := s.index.IndexFile(r.Context(), path)
	if err != nil {
		os.Remove(path)
		if errors.Is(err, entities.ErrUnsupportedType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"chunks":      n,
		"embedded":    stats.Generated,
		"stats":       s.chunkStats(r.Context(), doc.ID),
	})
}

type searchRequest struct {
	Query      string `json:"query"`
	Mode       string `json:"mode"` // "semantic" (default) or "lexical"
	TopK       int    `json:"top_k"`
	DocumentID int64  `json:"document_id"`
}

type searchResult struct {
	DocumentID int64   `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Mode {
	case "", "semantic":
		resp, err := s.query.SemanticSearch(r.Context(), req.Query, req.DocumentID, req.TopK)
		if err != nil {
			writeQueryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"indexed": resp.Indexed,
			"results": toSearchResults(resp.Results),
		})
	case "lexical":
		results, err := s.query.LexicalSearch(r.Context(), req.Query, req.DocumentID, req.TopK)
		if err != nil {
			writeQueryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"indexed": true,
			"results": toSearchResults(results),
		})
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown search mode %q", req.Mode))
	}
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.query.Ask(r.Context(), req.Question, req.TopK)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	if !answer.Indexed {
		writeJSON(w, http.StatusOK, map[string]any{
			"indexed": false,
			"answer":  "No documents have been indexed yet. Upload a document first.",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"indexed": true,
		"answer":  answer.Answer,
		"model":   answer.Model,
		"sources": toSearchResults(answer.Sources),
	})
}

func toSearchResults(results []entities.SearchResult) []searchResult {
	out := make([]searchResult, 0, len(results))
	for _, r := range results {
		out = append(out, searchResult{
			DocumentID: r.Chunk.DocumentID,
			Filename:   r.Filename,
			ChunkIndex: r.Chunk.Index,
			Text:       r.Chunk.Text,
			Score:      r.Score,
		})
	}
	return out
}

func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entities.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query must not be empty")
	case errors.Is(err, entities.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ERROR] Encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// sanitizeFilename strips any path components from a client-supplied name.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
