// Package docstore defines the document-store boundary used by microfeed:
// schemaless records grouped in collections, partial updates that can remove
// fields, and ordered queries. Backends live in subpackages.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// Record is a stored document: its store-assigned ID and its fields.
type Record struct {
	ID     string
	Fields map[string]any
}

// Patch is a partial update. Keys in Set are written, keys in Unset are
// removed from the document. Fields named in neither are left untouched.
type Patch struct {
	Set   map[string]any
	Unset []string
}

// Empty reports whether applying p would change nothing.
func (p Patch) Empty() bool {
	return len(p.Set) == 0 && len(p.Unset) == 0
}

// Apply merges p into fields in place.
func (p Patch) Apply(fields map[string]any) {
	for k, v := range p.Set {
		fields[k] = v
	}
	for _, k := range p.Unset {
		delete(fields, k)
	}
}

// Query selects documents from a collection. Where holds equality filters,
// OrderBy names the sort field (empty keeps store order) and Limit <= 0 means
// no limit.
type Query struct {
	Where   map[string]any
	OrderBy string
	Desc    bool
	Limit   int
}

// Store is implemented by every backend.
type Store interface {
	// Create inserts a new document and returns its generated ID.
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Get returns a document by ID or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Record, error)
	// Query returns the documents matching q in the requested order.
	Query(ctx context.Context, collection string, q Query) ([]Record, error)
	// Update applies a partial update to an existing document or returns ErrNotFound.
	Update(ctx context.Context, collection, id string, p Patch) error
	// Set merges fields into the document with the given ID, creating it if needed.
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// OpenFunc opens a backend from a data source string.
type OpenFunc func(ctx context.Context, dsn string) (Store, error)

var drivers = map[string]OpenFunc{
	DriverMemory: func(context.Context, string) (Store, error) { return NewMemory(), nil },
}

// Register makes a backend available to Open. Backends call it from init.
func Register(name string, fn OpenFunc) {
	drivers[name] = fn
}

// Open returns a Store for the named driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	fn, ok := drivers[driver]
	if !ok {
		return nil, fmt.Errorf("docstore: unknown driver %q", driver)
	}
	return fn(ctx, dsn)
}
