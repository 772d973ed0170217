package cache

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidKey is returned when a key cannot be used to address an entry.
var ErrInvalidKey = errors.New("invalid cache key")

// Store defines the interface for cache implementations. The generic type T
// represents the value being cached.
//
// Entries are not invalidated by the store on a fixed schedule: the caller
// supplies the lifetime when reading, and an entry is only returned while its
// age is strictly less than that lifetime.
type Store[T any] interface {
	// Get retrieves a value from the cache. Returns the entry, whether a valid
	// entry was found, and any error.
	Get(ctx context.Context, key string, lifetime time.Duration) (Entry[T], bool, error)

	// Set stores a value in the cache, replacing any existing entry.
	Set(ctx context.Context, key string, value T) error

	// Invalidate removes a value from the cache.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Entry is a cached value along with the time it was written.
type Entry[T any] struct {
	Value     T
	WrittenAt time.Time
}

// Age returns how long ago the entry was written, relative to now.
func (e Entry[T]) Age(now time.Time) time.Duration {
	return now.Sub(e.WrittenAt)
}

// Valid reports whether the entry is still usable for the given lifetime.
func (e Entry[T]) Valid(now time.Time, lifetime time.Duration) bool {
	return e.Age(now) < lifetime
}
