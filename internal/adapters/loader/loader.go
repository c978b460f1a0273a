// Package loader provides text extraction adapters implementing
// ports.TextExtractor. Extractors turn an uploaded file into plain text;
// everything downstream (chunking, embedding) only sees the text.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/opschat/opschat-go/internal/domain/entities"
)

// TextExtractor reads plain text files (.txt, .md) as-is.
type TextExtractor struct{}

// NewTextExtractor creates an extractor for plain text files.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract reads the file contents.
func (e *TextExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// SupportedExtensions returns the extensions this extractor handles.
func (e *TextExtractor) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// PDFExtractor extracts PDF text via an external extractor service that
// accepts raw PDF bytes on POST /parse and returns {"text": ...}.
type PDFExtractor struct {
	serviceURL string
	client     *http.Client
}

// NewPDFExtractor creates a PDF extractor. serviceURL defaults to the local
// extractor service.
func NewPDFExtractor(serviceURL string) *PDFExtractor {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	return &PDFExtractor{
		serviceURL: serviceURL,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

type parseResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
	Error string `json:"error,omitempty"`
}

// Extract reads the PDF and sends it to the extractor service.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling PDF service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("PDF parse error: %s", result.Error)
	}
	return result.Text, nil
}

// SupportedExtensions returns the extensions this extractor handles.
func (e *PDFExtractor) SupportedExtensions() []string {
	return []string{".pdf"}
}

// Healthy reports whether the extractor service is reachable.
func (e *PDFExtractor) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", e.serviceURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// extractor is the minimal surface MultiExtractor dispatches over.
type extractor interface {
	Extract(ctx context.Context, path string) (string, error)
	SupportedExtensions() []string
}

// MultiExtractor dispatches to the right extractor by file extension.
// Unknown extensions are rejected rather than guessed at.
type MultiExtractor struct {
	byExt map[string]extractor
}

// NewMultiExtractor builds the default dispatch table.
func NewMultiExtractor(extractors ...extractor) *MultiExtractor {
	if len(extractors) == 0 {
		extractors = []extractor{NewTextExtractor(), NewPDFExtractor("")}
	}
	byExt := make(map[string]extractor)
	for _, e := range extractors {
		for _, ext := range e.SupportedExtensions() {
			byExt[ext] = e
		}
	}
	return &MultiExtractor{byExt: byExt}
}

// Extract dispatches by the path's extension. Unknown extensions yield
// entities.ErrUnsupportedType.
func (m *MultiExtractor) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := m.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w %q (supported: %s)",
			entities.ErrUnsupportedType, ext, strings.Join(m.SupportedExtensions(), ", "))
	}
	return e.Extract(ctx, path)
}

// SupportedExtensions returns all handled extensions, sorted.
func (m *MultiExtractor) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.byExt))
	for ext := range m.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
