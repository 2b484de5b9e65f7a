// Package kv provides named key-value buckets with SQLite persistence and an
// in-memory fallback.
package kv

import "errors"

// ErrEmptyKey is returned when a bucket operation is given an empty key.
var ErrEmptyKey = errors.New("kv: empty key")

// Bucket is the interface for key-value storage operations.
// Values are stored as JSON so both implementations round-trip identically.
type Bucket interface {
	// Name returns the bucket name.
	Name() string

	// IsPersistent returns true if the bucket is backed by SQLite.
	IsPersistent() bool

	// Put saves value under key, replacing any previous value.
	// A replaced key keeps its original position in Keys.
	Put(key string, value any) error

	// Load decodes the value stored under key into out.
	// Returns false if the key does not exist.
	Load(key string, out any) (bool, error)

	// Exists returns true if the key exists.
	Exists(key string) (bool, error)

	// Delete removes a key from the bucket.
	// Returns true if the key existed.
	Delete(key string) (bool, error)

	// Keys returns all keys in insertion order.
	Keys() ([]string, error)

	// Clear removes all keys from the bucket.
	Clear() error
}
