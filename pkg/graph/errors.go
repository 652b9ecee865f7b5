package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrUnknownEntityType is returned when an entity type is not in the
	// registered vocabulary, or an id carries no type qualifier.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrInvalidKey is returned for empty natural keys.
	ErrInvalidKey = errors.New("invalid entity key")

	// ErrUnknownRelationType is returned for labels outside the vocabulary
	// when the graph runs in strict mode.
	ErrUnknownRelationType = errors.New("unknown relation type")

	// ErrEntityNotFound is returned by read operations that need an
	// existing entity.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidSeverity is returned when an issue carries a severity
	// outside critical/high/medium/low.
	ErrInvalidSeverity = errors.New("invalid severity")

	// ErrInvalidFact is returned by Apply for facts of unknown kind or
	// missing the fields their kind needs.
	ErrInvalidFact = errors.New("invalid fact")
)
