package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// Memory is an in-memory cache implementation using otter. The generic type T
// represents the value being cached.
//
// The retention passed to NewMemory bounds how long otter keeps an entry at
// all; whether an entry is still valid is decided at read time against the
// lifetime supplied to Get.
type Memory[T any] struct {
	cache     *otter.Cache[string, Entry[T]]
	retention time.Duration
	counter   *stats.Counter
	now       func() time.Time
}

// NewMemory creates a new in-memory cache with the specified retention and
// max size.
func NewMemory[T any](retention time.Duration, maxSize int) (*Memory[T], error) {
	counter := stats.NewCounter()
	cache := otter.Must(&otter.Options[string, Entry[T]]{
		MaximumSize:      maxSize,
		StatsRecorder:    counter,
		ExpiryCalculator: otter.ExpiryCreating[string, Entry[T]](retention),
	})

	return &Memory[T]{
		cache:     cache,
		retention: retention,
		counter:   counter,
		now:       time.Now,
	}, nil
}

// Get retrieves a value from the cache.
// Returns the entry, whether it was found and valid, and any error.
func (m *Memory[T]) Get(ctx context.Context, key string, lifetime time.Duration) (Entry[T], bool, error) {
	cached, ok := m.cache.GetEntry(key)
	if !ok || !cached.Value.Valid(m.now(), lifetime) {
		return Entry[T]{}, false, nil
	}

	return cached.Value, true, nil
}

// Set stores a value in the cache.
func (m *Memory[T]) Set(ctx context.Context, key string, value T) error {
	m.cache.Set(key, Entry[T]{Value: value, WrittenAt: m.now()})
	return nil
}

// Invalidate removes a value from the cache.
func (m *Memory[T]) Invalidate(ctx context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Close is a no-op for the in-memory cache.
func (m *Memory[T]) Close() error {
	return nil
}
