// Package docstore provides the remote document store client used for serve
// attempt and client records.
//
// The store is a hosted collection/document API addressed by project and
// database identifiers. This package defines the narrow CRUD surface the
// pipeline consumes and a REST implementation of it; query support is
// limited to equality filters, descending order, and limit/offset, which is
// all the pipeline needs.
package docstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested document doesn't exist.
var ErrNotFound = errors.New("document not found")

// Document is one stored record: an opaque ID plus its fields.
type Document struct {
	ID     string
	Fields map[string]any
}

// ListResult is a page of documents plus the collection's total match count.
type ListResult struct {
	Documents []Document
	Total     int
}

// Query narrows and orders a List call.
type Query struct {
	// Equals filters on exact field values. Multiple entries AND together.
	Equals map[string]string

	// OrderDesc sorts descending by the named field.
	OrderDesc string

	Limit  int
	Offset int
}

// Store defines the document operations the pipeline consumes.
//
// All methods are context-aware for timeout and cancellation support.
type Store interface {
	// Create inserts a document with the given ID. The ID must not exist.
	Create(ctx context.Context, collection, id string, fields map[string]any) (*Document, error)

	// Update patches only the supplied fields of an existing document and
	// returns the full stored document.
	Update(ctx context.Context, collection, id string, fields map[string]any) (*Document, error)

	// Get fetches a document by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// List returns documents matching the query plus the total count.
	List(ctx context.Context, collection string, q Query) (*ListResult, error)

	// Delete removes a document by ID.
	Delete(ctx context.Context, collection, id string) error
}

// IsNotFound reports whether the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
