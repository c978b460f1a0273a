// Package embedding provides adapters implementing ports.EmbeddingService.
// The domain layer never sees provider specifics; it only receives vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// OpenAIAdapter implements ports.EmbeddingService using the OpenAI
// embeddings API (or any API-compatible endpoint).
type OpenAIAdapter struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
}

// NewOpenAIAdapter creates an OpenAI embedding adapter. dimensions is the
// expected vector width; responses with a different width are rejected so a
// provider misconfiguration cannot poison the index.
func NewOpenAIAdapter(baseURL, apiKey, model string, dimensions int, timeout time.Duration) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: timeout},
	}
}

type openaiEmbedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding for a single text. Newlines are flattened to
// spaces before the call; the embedding models treat them as noise.
func (a *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	text = strings.ReplaceAll(text, "\n", " ")

	reqBody := openaiEmbedRequest{
		Model:      a.model,
		Input:      text,
		Dimensions: a.dimensions,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("[ERROR] Embedding call failed: %v", err)
		return nil, fmt.Errorf("calling embedding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var embedResp openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(embedResp.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no data")
	}

	vec := embedResp.Data[0].Embedding
	if len(vec) != a.dimensions {
		return nil, fmt.Errorf("embedding API returned %d dimensions, expected %d", len(vec), a.dimensions)
	}
	return vec, nil
}
