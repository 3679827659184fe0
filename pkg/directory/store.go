// Package directory models the black-box document store the spec calls the
// "directory store": a filter/sort/limit queryable collection store with
// per-collection create/update/delete, kept deliberately narrow so a single
// interface can be backed by Postgres in production and an in-memory fake
// in tests.
package directory

import "context"

// Operator is a filter comparison, modeled after the original content
// service's "_eq"/"_gt"/... query grammar.
type Operator string

const (
	OpEq  Operator = "_eq"
	OpGt  Operator = "_gt"
	OpGte Operator = "_gte"
	OpLt  Operator = "_lt"
	OpLte Operator = "_lte"
	OpIn  Operator = "_in"
)

// Condition is a single field filter.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// Query describes a filter/sort/limit read against one collection.
type Query struct {
	Filter []Condition
	// Sort is a field name; a leading "-" means descending, matching the
	// original content service's sort grammar.
	Sort  string
	Limit int
}

// Item is a loosely typed record: the directory store is schema-opaque to
// its callers, who marshal/unmarshal their own domain types into it.
type Item map[string]any

// ErrNotFound is returned by UpdateItem/DeleteItem when the id does
// not exist in the collection.
var ErrNotFound = &NotFoundError{}

// NotFoundError indicates an item or collection entry is absent.
type NotFoundError struct {
	Collection string
	ID         string
}

func (e *NotFoundError) Error() string {
	if e.Collection == "" {
		return "directory: item not found"
	}
	return "directory: item not found: " + e.Collection + ":" + e.ID
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ErrConflict is returned by CreateItem when an item with the same id
// already exists in the collection — the primitive the run store builds
// its optimistic append retry on.
var ErrConflict = &ConflictError{}

// ConflictError indicates a unique-key collision on create.
type ConflictError struct {
	Collection string
	ID         string
}

func (e *ConflictError) Error() string {
	if e.Collection == "" {
		return "directory: item already exists"
	}
	return "directory: item already exists: " + e.Collection + ":" + e.ID
}

func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)
	return ok
}

// Store is the black-box document store interface. Implementations must be
// safe for concurrent use.
type Store interface {
	// CreateItem inserts item into collection, assigning an id if item has
	// none, and returns the stored record.
	CreateItem(ctx context.Context, collection string, item Item) (Item, error)

	// UpdateItem merges fields into the existing record with the given id.
	UpdateItem(ctx context.Context, collection string, id string, fields Item) (Item, error)

	// GetItems returns records from collection matching q, in q.Sort order,
	// capped at q.Limit (0 means unlimited).
	GetItems(ctx context.Context, collection string, q Query) ([]Item, error)

	// DeleteItem removes the record with the given id from collection.
	DeleteItem(ctx context.Context, collection string, id string) error

	// Ping reports whether the store is reachable, for health checks.
	Ping(ctx context.Context) error
}
