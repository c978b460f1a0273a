// Package chunker splits extracted document text into overlapping segments.
// Pure business logic - no I/O, no external dependencies.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Configuration errors, rejected before any work begins.
var (
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrInvalidOverlap   = errors.New("overlap must not be negative")
)

// Split breaks text into segments of at most size characters, with
// consecutive segments sharing roughly overlap characters.
//
// All whitespace runs (including newlines) are collapsed to single spaces
// before segmenting, so chunk text is whitespace-normalized. Boundaries
// back off to the nearest space so words stay whole; when a segment is
// one unbroken token there is no space to back off to and the token is
// cut at size. Empty or whitespace-only input yields an empty result,
// not an error.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: %w (got %d)", ErrInvalidChunkSize, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunker: %w (got %d)", ErrInvalidOverlap, overlap)
	}

	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return nil, nil
	}

	// Sizes and boundaries are measured in runes, not bytes, so a long
	// multibyte token is never cut mid-rune.
	runes := []rune(cleaned)

	var chunks []string
	length := len(runes)
	start := 0

	for start < length {
		end := start + size
		if end > length {
			end = length
		}

		// Not the final segment: move the boundary back to the last
		// space so a word is not split across chunks.
		if end < length {
			for i := end - 1; i > start; i-- {
				if runes[i] == ' ' {
					end = i
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		// The scan must strictly advance. When the overlap swallows the
		// whole window, continue from end without overlap rather than
		// stall; termination wins over strictness here.
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, nil
}

// Stats summarizes the segments produced by Split.
type Stats struct {
	Count     int
	AvgLength int
	MinLength int
	MaxLength int
}

// Summarize computes length statistics over a chunk list.
func Summarize(chunks []string) Stats {
	if len(chunks) == 0 {
		return Stats{}
	}

	s := Stats{Count: len(chunks), MinLength: utf8.RuneCountInString(chunks[0])}
	total := 0
	for _, c := range chunks {
		n := utf8.RuneCountInString(c)
		total += n
		if n < s.MinLength {
			s.MinLength = n
		}
		if n > s.MaxLength {
			s.MaxLength = n
		}
	}
	s.AvgLength = total / len(chunks)
	return s
}
