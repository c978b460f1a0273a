// Package usecases - query.go handles retrieval and answer generation.
package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/opschat/opschat-go/internal/domain/entities"
	"github.com/opschat/opschat-go/internal/domain/ports"
	"github.com/opschat/opschat-go/internal/domain/ranker"
)

// MaxTopK bounds how many results a single retrieval may return.
const MaxTopK = 20

const systemPrompt = `You are a helpful assistant that answers questions based ONLY on the provided document context.

Rules:
- Answer using ONLY the information in the provided chunks
- If the answer is not in the chunks, say "I don't have enough information to answer that question based on the available documents."
- Be concise and accurate
- When you use information from a chunk, mention which chunk number(s) you used
- Do not make up information or use external knowledge`

// QueryUseCase composes the chunk store, the ranker and the external
// services into the two retrieval modes and RAG answering.
type QueryUseCase struct {
	docs          ports.DocumentStore
	chunks        ports.ChunkStore
	embedder      ports.EmbeddingService
	llm           ports.LLMService
	defaultTopK   int
	caseSensitive bool
}

// NewQueryUseCase creates a QueryUseCase with injected dependencies.
// The llm may be nil when only search is needed; Ask then fails cleanly.
func NewQueryUseCase(
	docs ports.DocumentStore,
	chunks ports.ChunkStore,
	embedder ports.EmbeddingService,
	llm ports.LLMService,
	defaultTopK int,
	caseSensitive bool,
) *QueryUseCase {
	if defaultTopK <= 0 || defaultTopK > MaxTopK {
		defaultTopK = 5
	}
	return &QueryUseCase{
		docs:          docs,
		chunks:        chunks,
		embedder:      embedder,
		llm:           llm,
		defaultTopK:   defaultTopK,
		caseSensitive: caseSensitive,
	}
}

// clampTopK maps out-of-range values to the configured default or the cap.
func (uc *QueryUseCase) clampTopK(k int) int {
	if k <= 0 {
		return uc.defaultTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// SemanticSearch embeds the query, ranks every embedded chunk against it
// and returns the top k with provenance. documentID > 0 scopes the search
// to one document. When no chunk in scope carries an embedding the response
// reports Indexed=false - "nothing indexed yet" rather than "no matches".
func (uc *QueryUseCase) SemanticSearch(ctx context.Context, query string, documentID int64, k int) (*entities.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, entities.ErrEmptyQuery
	}

	queryVector, err := uc.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidates, err := uc.chunks.ListEmbeddedChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing embedded chunks: %w", err)
	}
	if len(candidates) == 0 {
		return &entities.SearchResponse{Indexed: false}, nil
	}

	results, err := ranker.Rank(queryVector, candidates, uc.clampTopK(k))
	if err != nil {
		return nil, err
	}

	if err := uc.annotate(ctx, results); err != nil {
		return nil, err
	}
	return &entities.SearchResponse{Results: results, Indexed: true}, nil
}

// LexicalSearch scans chunk text for a substring match, in storage order,
// capped at k results. It needs no embeddings and serves as the fallback
// path before anything has been embedded.
func (uc *QueryUseCase) LexicalSearch(ctx context.Context, query string, documentID int64, k int) ([]entities.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, entities.ErrEmptyQuery
	}
	limit := uc.clampTopK(k)

	all, err := uc.chunks.ListChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}

	needle := query
	if !uc.caseSensitive {
		needle = strings.ToLower(query)
	}

	var results []entities.SearchResult
	for _, chunk := range all {
		text := chunk.Text
		if !uc.caseSensitive {
			text = strings.ToLower(text)
		}
		if strings.Contains(text, needle) {
			results = append(results, entities.SearchResult{Chunk: chunk})
			if len(results) == limit {
				break
			}
		}
	}

	if err := uc.annotate(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

// Ask retrieves the most relevant chunks for the question and asks the
// language model to answer from them. An un-indexed store yields
// Indexed=false with no answer, mirroring SemanticSearch.
func (uc *QueryUseCase) Ask(ctx context.Context, question string, k int) (*entities.Answer, error) {
	if uc.llm == nil {
		return nil, fmt.Errorf("no language model configured")
	}

	search, err := uc.SemanticSearch(ctx, question, 0, k)
	if err != nil {
		return nil, err
	}
	if !search.Indexed {
		return &entities.Answer{Indexed: false}, nil
	}

	answer, err := uc.llm.Generate(ctx, systemPrompt, buildUserPrompt(question, search.Results))
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	return &entities.Answer{
		Answer:  answer,
		Model:   uc.llm.Model(),
		Sources: search.Results,
		Indexed: true,
	}, nil
}

// annotate fills each result's Filename from its source document.
func (uc *QueryUseCase) annotate(ctx context.Context, results []entities.SearchResult) error {
	names := make(map[int64]string)
	for i := range results {
		docID := results[i].Chunk.DocumentID
		name, ok := names[docID]
		if !ok {
			doc, err := uc.docs.GetDocument(ctx, docID)
			if err != nil {
				return fmt.Errorf("resolving document %d: %w", docID, err)
			}
			name = doc.Filename
			names[docID] = name
		}
		results[i].Filename = name
	}
	return nil
}

// buildUserPrompt formats the retrieved chunks and the question for the
// chat model, tagging each chunk with its source filename.
func buildUserPrompt(question string, results []entities.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Here are relevant document chunks:\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "\n--- Chunk %d (from %s) ---\n%s\n", i+1, r.Filename, r.Chunk.Text)
	}
	sb.WriteString("\nBased ONLY on the above chunks, please answer this question:\n")
	sb.WriteString(question)
	return sb.String()
}
