// Package docstore is the remote document collection substrate: keyed documents grouped in
// collections, equality queries with a single ordering, and optimistic transactions.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	// ErrConflict is returned when a transaction kept losing to concurrent writers.
	ErrConflict = errors.New("transaction conflict")
	// ErrReadAfterWrite is returned when a transaction reads after it has written.
	ErrReadAfterWrite = errors.New("transaction reads must precede writes")
)

// MaxAttempts bounds how many times a transaction function runs before giving up.
const MaxAttempts = 5

type Direction int

const (
	Asc Direction = iota
	Desc
)

// Filter matches documents whose top-level field Path equals Value.
type Filter struct {
	Path  string
	Value interface{}
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	Limit      int
}

// Where returns a copy of q with an extra equality filter.
func (q Query) Where(path string, value interface{}) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Path: path, Value: value})
	return q
}

type Document interface {
	ID() string
	DataTo(v interface{}) error
}

// Tx is the view of the store inside RunTransaction. All reads must happen before
// the first write.
type Tx interface {
	Get(collection, id string) (Document, error)
	Set(collection, id string, data interface{}) error
	// Create fails the commit with ErrAlreadyExists when the document exists.
	Create(collection, id string, data interface{}) error
}

type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Set(ctx context.Context, collection, id string, data interface{}) error
	// Update overwrites the given top-level fields of an existing document.
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	NewID(collection string) string
	// RunTransaction runs fn and commits its writes atomically. fn may run more than once
	// when a concurrent writer touched a document it read; its error aborts the transaction
	// and is returned unchanged.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
