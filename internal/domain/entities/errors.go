package entities

import "errors"

// Domain errors represent business failures, distinct from infrastructure
// errors. Callers compare with errors.Is.
var (
	// ErrNotFound indicates a requested document or chunk does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmptyQuery indicates a search or question with no content.
	ErrEmptyQuery = errors.New("empty query")

	// ErrUnsupportedType indicates a file whose extension no extractor
	// handles.
	ErrUnsupportedType = errors.New("unsupported file type")
)
