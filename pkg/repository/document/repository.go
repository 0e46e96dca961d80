package document

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by single-document operations when no document matches the id.
var ErrNotFound = errors.New("document not found")

// DuplicateKeyError reports a write rejected by a unique index. Field and
// Value name the first conflicting key when the store reports it.
type DuplicateKeyError struct {
	Field string
	Value string
	Cause error
}

func (e *DuplicateKeyError) Error() string {
	if e.Field == "" {
		return "duplicate key"
	}
	return fmt.Sprintf("%s:%s already exists", e.Field, e.Value)
}

func (e *DuplicateKeyError) Unwrap() error { return e.Cause }

// Document is a single stored record as decoded from the store.
type Document = map[string]interface{}

// Filter represents field-based filtering criteria for document stores.
// Values are store-native predicate expressions (bson operators for MongoDB).
type Filter map[string]interface{}

// Sort specifies field and direction for sorting results.
type Sort struct {
	Field string
	Order SortOrder
}

// Direction returns the store sort direction: 1 ascending, -1 descending.
func (s Sort) Direction() int {
	if s.Order == SortDesc {
		return -1
	}
	return 1
}

// SortOrder defines the direction of sorting.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Projection restricts the fields returned per document.
// An empty Fields slice means no restriction. When Exclude is set the listed
// fields are removed instead of selected. Inclusion projections always carry
// the identity field unless IDExcluded is set.
type Projection struct {
	Fields     []string
	Exclude    bool
	IDExcluded bool
}

// IsEmpty reports whether the projection returns all fields.
func (p Projection) IsEmpty() bool {
	return len(p.Fields) == 0
}

// FindOptions encapsulates filtering, sorting, projection and offset pagination for a fetch.
type FindOptions struct {
	Filter     Filter
	Sort       Sort
	Projection Projection
	Skip       int64
	Limit      int64
}

// Finder provides the two read operations a list query needs.
type Finder interface {
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
	Find(ctx context.Context, collection string, opts FindOptions) ([]Document, error)
}

// Store adds the single-document operations used by resource handlers.
type Store interface {
	Finder
	FindByID(ctx context.Context, collection string, id interface{}) (Document, error)
	Insert(ctx context.Context, collection string, doc Document) (Document, error)
	UpdateByID(ctx context.Context, collection string, id interface{}, patch Document) (Document, error)
	DeleteByID(ctx context.Context, collection string, id interface{}) (bool, error)
}
