package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// storedEntry is the serialized form of an entry in Valkey. The write time is
// kept alongside the value so that read-time lifetimes can be applied.
type storedEntry[T any] struct {
	WrittenAt time.Time `json:"written_at"`
	Value     T         `json:"value"`
}

// Distributed implements Store using Valkey. Entries are written with an
// expiry equal to the retention so that abandoned keys are eventually
// reclaimed by the server.
// The generic type T represents the value being cached.
type Distributed[T any] struct {
	client    valkey.Client
	retention time.Duration
	prefix    string
	now       func() time.Time
}

// NewDistributed creates a new Valkey-backed cache. Every key is prefixed with
// prefix, allowing several stores to share one server.
func NewDistributed[T any](valkeyClient valkey.Client, retention time.Duration, prefix string) (*Distributed[T], error) {
	if retention < time.Second {
		return nil, fmt.Errorf("retention must be at least one second, got %s", retention)
	}

	return &Distributed[T]{
		client:    valkeyClient,
		retention: retention,
		prefix:    prefix,
		now:       time.Now,
	}, nil
}

// Get retrieves a value from the cache.
// Returns the entry, whether it was found and valid, and any error.
func (d *Distributed[T]) Get(ctx context.Context, key string, lifetime time.Duration) (Entry[T], bool, error) {
	var zero Entry[T]

	cmd := d.client.B().Get().Key(d.storageKey(key)).Build()
	result := d.client.Do(ctx, cmd)

	if err := result.Error(); err != nil {
		// Key not found is not an error in our semantics
		if valkey.IsValkeyNil(err) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("failed to get cached value: %w", err)
	}

	val, err := result.ToString()
	if err != nil {
		return zero, false, fmt.Errorf("failed to convert cached value to string: %w", err)
	}

	var stored storedEntry[T]
	if err := json.Unmarshal([]byte(val), &stored); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	entry := Entry[T]{Value: stored.Value, WrittenAt: stored.WrittenAt}
	if !entry.Valid(d.now(), lifetime) {
		return zero, false, nil
	}

	return entry, true, nil
}

// Set stores a value in the cache with the configured retention.
// The value is JSON-serialized before storage.
func (d *Distributed[T]) Set(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(storedEntry[T]{WrittenAt: d.now().UTC(), Value: value})
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	cmd := d.client.B().Set().Key(d.storageKey(key)).Value(string(data)).ExSeconds(int64(d.retention.Seconds())).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set cached value: %w", err)
	}
	return nil
}

// Invalidate removes a value from the cache.
func (d *Distributed[T]) Invalidate(ctx context.Context, key string) error {
	cmd := d.client.B().Del().Key(d.storageKey(key)).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to invalidate cached value: %w", err)
	}
	return nil
}

// Close releases resources associated with the cache client.
func (d *Distributed[T]) Close() error {
	d.client.Close()
	return nil
}

func (d *Distributed[T]) storageKey(key string) string {
	return d.prefix + key
}
