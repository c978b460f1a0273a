package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opschat/opschat-go/internal/adapters/chunkstore"
	"github.com/opschat/opschat-go/internal/domain/entities"
	"github.com/opschat/opschat-go/internal/domain/usecases"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return []float64{1, 0}, nil
}

type stubLLM struct{}

func (stubLLM) Generate(_ context.Context, _, _ string) (string, error) {
	return "stubbed answer", nil
}
func (stubLLM) Model() string { return "stub-model" }

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, path string) (string, error) {
	if !strings.HasSuffix(path, ".txt") {
		return "", fmt.Errorf("%w %q", entities.ErrUnsupportedType, filepath.Ext(path))
	}
	return "deploys happen on tuesday and rollbacks on wednesday", nil
}
func (stubExtractor) SupportedExtensions() []string { return []string{".txt"} }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := chunkstore.NewMemoryStore()
	index := usecases.NewIndexUseCase(store, store, stubEmbedder{}, stubExtractor{}, 500, 50)
	query := usecases.NewQueryUseCase(store, store, stubEmbedder{}, stubLLM{}, 5, false)

	srv := NewServer(query, index, store, store, t.TempDir(), ":0")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func uploadFile(t *testing.T, ts *httptest.Server, filename, content string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["documents"])
}

func TestUploadThenListDocuments(t *testing.T) {
	ts := newTestServer(t)

	resp := uploadFile(t, ts, "runbook.txt", "file content")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "runbook.txt", strings.TrimLeft(body["filename"].(string), "0123456789_"))
	assert.Greater(t, body["chunks"].(float64), 0.0)

	listResp, err := http.Get(ts.URL + "/documents")
	require.NoError(t, err)
	listBody := decodeBody(t, listResp)
	docs := listBody["documents"].([]any)
	require.Len(t, docs, 1)

	doc := docs[0].(map[string]any)
	assert.Contains(t, doc["filename"], "runbook.txt")
	assert.Greater(t, doc["chunks"].(float64), 0.0)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	ts := newTestServer(t)

	resp := uploadFile(t, ts, "binary.exe", "MZ")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadWithoutFileField(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/upload", "multipart/form-data; boundary=x", strings.NewReader("--x--"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchBeforeAnyIndexing(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/search", "application/json",
		strings.NewReader(`{"query": "anything"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["indexed"], "missing index is a state, not an error")
}

func TestSemanticSearchReturnsResults(t *testing.T) {
	ts := newTestServer(t)
	uploadFile(t, ts, "runbook.txt", "content").Body.Close()

	resp, err := http.Post(ts.URL+"/search", "application/json",
		strings.NewReader(`{"query": "when do deploys happen?", "top_k": 3}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["indexed"])
	results := body["results"].([]any)
	require.NotEmpty(t, results)

	first := results[0].(map[string]any)
	assert.Contains(t, first["text"], "deploys happen on tuesday")
	assert.Contains(t, first["filename"], "runbook.txt")
}

func TestLexicalSearchMode(t *testing.T) {
	ts := newTestServer(t)
	uploadFile(t, ts, "runbook.txt", "content").Body.Close()

	resp, err := http.Post(ts.URL+"/search", "application/json",
		strings.NewReader(`{"query": "rollbacks", "mode": "lexical"}`))
	require.NoError(t, err)

	body := decodeBody(t, resp)
	results := body["results"].([]any)
	require.Len(t, results, 1)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/search", "application/json",
		strings.NewReader(`{"query": "   "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/search", "application/json",
		strings.NewReader(`{"query": "q", "mode": "fuzzy"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAskEndpoint(t *testing.T) {
	ts := newTestServer(t)
	uploadFile(t, ts, "runbook.txt", "content").Body.Close()

	resp, err := http.Post(ts.URL+"/ask", "application/json",
		strings.NewReader(`{"question": "when do we deploy?"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["indexed"])
	assert.Equal(t, "stubbed answer", body["answer"])
	assert.Equal(t, "stub-model", body["model"])
	assert.NotEmpty(t, body["sources"])
}

func TestAskBeforeAnyIndexing(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/ask", "application/json",
		strings.NewReader(`{"question": "hello?"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["indexed"])
	assert.Contains(t, body["answer"], "Upload a document first")
}

func TestDeleteDocument(t *testing.T) {
	ts := newTestServer(t)
	uploadResp := uploadFile(t, ts, "runbook.txt", "content")
	uploadBody := decodeBody(t, uploadResp)
	id := int64(uploadBody["document_id"].(float64))

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/documents/%d", ts.URL, id), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	listResp, err := http.Get(ts.URL + "/documents")
	require.NoError(t, err)
	listBody := decodeBody(t, listResp)
	assert.Empty(t, listBody["documents"])
}

func TestDeleteUnknownDocument(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/documents/999", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteInvalidDocumentID(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/documents/abc", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReindexDocument(t *testing.T) {
	ts := newTestServer(t)
	uploadResp := uploadFile(t, ts, "runbook.txt", "content")
	uploadBody := decodeBody(t, uploadResp)
	id := int64(uploadBody["document_id"].(float64))

	resp, err := http.Post(fmt.Sprintf("%s/documents/%d/reindex", ts.URL, id), "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.EqualValues(t, id, body["document_id"])
	assert.Greater(t, body["chunks"].(float64), 0.0)

	stats := body["stats"].(map[string]any)
	assert.Greater(t, stats["count"].(float64), 0.0)
	assert.Greater(t, stats["avg_length"].(float64), 0.0)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/search", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSearchResultsKeepZeroScores(t *testing.T) {
	payload, err := json.Marshal(toSearchResults([]entities.SearchResult{
		{Chunk: entities.Chunk{DocumentID: 1, Text: "t"}, Score: 0, Filename: "f.txt"},
	}))
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"score":0`, "a genuine zero similarity must not vanish from the response")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "notes.txt", sanitizeFilename("../../etc/notes.txt"))
	assert.Equal(t, "notes.txt", sanitizeFilename(`C:\Users\x\notes.txt`))
	assert.Equal(t, "", sanitizeFilename(".."))
}
