// Package memdir is an in-memory directory.Store used by unit tests,
// grounded on the original content service's InMemoryDirectus test fake:
// per-collection maps, an auto-increment id counter, and the same
// "_eq"/"_gt"/"_gte"/"_lt"/"_lte"/"_in" filter grammar.
package memdir

import (
	"context"
	"fmt"
	"sync"

	"github.com/dembrane/agentic/pkg/directory"
)

// Store is a goroutine-safe in-memory directory.Store.
type Store struct {
	mu         sync.Mutex
	collection map[string]map[string]directory.Item
	counter    map[string]int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		collection: make(map[string]map[string]directory.Item),
		counter:    make(map[string]int),
	}
}

func (s *Store) table(name string) map[string]directory.Item {
	t, ok := s.collection[name]
	if !ok {
		t = make(map[string]directory.Item)
		s.collection[name] = t
	}
	return t
}

func cloneItem(item directory.Item) directory.Item {
	out := make(directory.Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// CreateItem implements directory.Store.
func (s *Store) CreateItem(_ context.Context, collection string, item directory.Item) (directory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := cloneItem(item)
	id, _ := record["id"].(string)
	table := s.table(collection)
	if id == "" {
		s.counter[collection]++
		id = fmt.Sprintf("%s-%d", collection, s.counter[collection])
		record["id"] = id
	} else if _, exists := table[id]; exists {
		return nil, &directory.ConflictError{Collection: collection, ID: id}
	}

	table[id] = record
	return cloneItem(record), nil
}

// UpdateItem implements directory.Store.
func (s *Store) UpdateItem(_ context.Context, collection string, id string, fields directory.Item) (directory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.table(collection)
	existing, ok := table[id]
	if !ok {
		return nil, &directory.NotFoundError{Collection: collection, ID: id}
	}

	merged := cloneItem(existing)
	for k, v := range fields {
		merged[k] = v
	}
	table[id] = merged
	return cloneItem(merged), nil
}

// GetItems implements directory.Store.
func (s *Store) GetItems(_ context.Context, collection string, q directory.Query) ([]directory.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []directory.Item
	for _, row := range s.table(collection) {
		rows = append(rows, cloneItem(row))
	}

	return directory.ApplyQuery(rows, q), nil
}

// DeleteItem implements directory.Store.
func (s *Store) DeleteItem(_ context.Context, collection string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table := s.table(collection)
	if _, ok := table[id]; !ok {
		return &directory.NotFoundError{Collection: collection, ID: id}
	}
	delete(table, id)
	return nil
}

// Ping always succeeds; the in-memory store has no external connectivity.
func (s *Store) Ping(_ context.Context) error {
	return nil
}
