package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("schema: not found")
	ErrConflict     = errors.New("schema: already exists")
	ErrInvalidInput = errors.New("schema: invalid input")

	// ErrUnknownEntity is returned when an entity id or name does not
	// resolve against the catalog. Unknown entities are never implicitly
	// allowed anywhere downstream.
	ErrUnknownEntity = errors.New("schema: unknown entity")
)

// FieldError describes one rejected payload field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every field rejection found in one payload, so
// callers can report them all at once instead of fixing one at a time.
type ValidationError struct {
	Entity string       `json:"entity"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("schema: payload invalid for %s (%s)", e.Entity, strings.Join(parts, "; "))
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) sorted() *ValidationError {
	sort.Slice(e.Fields, func(i, j int) bool { return e.Fields[i].Field < e.Fields[j].Field })
	return e
}
