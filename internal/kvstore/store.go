// Package kvstore is the durable string key-value store backing the local state cache.
package kvstore

import "context"

// Store is a string-keyed, string-valued store. It has no schema; SetMany is its only
// multi-key write and it is atomic.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// SetMany writes every entry or none of them.
	SetMany(ctx context.Context, values map[string]string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}
