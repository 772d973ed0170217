package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGet_NotFound(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[CacheTestDummy](time.Minute, 100)
	require.NoError(t, err)

	entry, found, err := cache.Get(ctx, "nonexistent", time.Minute)

	assert.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, Entry[CacheTestDummy]{}, entry)
}

func TestMemorySetAndGet_Success(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[CacheTestDummy](time.Minute, 100)
	require.NoError(t, err)

	written := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return written }

	expected := CacheTestDummy{Data: "testdata"}

	err = cache.Set(ctx, "test-key", expected)
	require.NoError(t, err)

	entry, found, err := cache.Get(ctx, "test-key", time.Minute)

	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, expected, entry.Value)
	assert.Equal(t, written, entry.WrittenAt)
}

func TestMemoryGet_LifetimeAppliedAtRead(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[CacheTestDummy](time.Hour, 100)
	require.NoError(t, err)

	now := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "test-key", CacheTestDummy{Data: "testdata"}))

	now = now.Add(30 * time.Second)

	_, found, err := cache.Get(ctx, "test-key", time.Minute)
	require.NoError(t, err)
	assert.True(t, found, "30s old entry is valid for a 60s lifetime")

	_, found, err = cache.Get(ctx, "test-key", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, found, "age equal to lifetime is expired")
}

func TestMemoryInvalidate_RemovesEntry(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[CacheTestDummy](time.Minute, 100)
	require.NoError(t, err)

	err = cache.Set(ctx, "test-key", CacheTestDummy{Data: "testdata"})
	require.NoError(t, err)

	err = cache.Invalidate(ctx, "test-key")
	require.NoError(t, err)

	_, found, err := cache.Get(ctx, "test-key", time.Minute)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryRetentionExpiry(t *testing.T) {
	ctx := context.Background()
	// Use very short retention for testing
	cache, err := NewMemory[CacheTestDummy](100*time.Millisecond, 100)
	require.NoError(t, err)

	err = cache.Set(ctx, "test-key", CacheTestDummy{Data: "testdata"})
	require.NoError(t, err)

	// Verify value is present immediately
	_, found, err := cache.Get(ctx, "test-key", time.Hour)
	assert.NoError(t, err)
	assert.True(t, found)

	// Wait for retention to expire
	time.Sleep(150 * time.Millisecond)

	// Verify the value is no longer present, even for a long lifetime
	_, found, err = cache.Get(ctx, "test-key", time.Hour)
	assert.NoError(t, err)
	assert.False(t, found)
}

// CacheTestDummy is a simple struct used for testing the generic caches.
type CacheTestDummy struct {
	Data string `json:"data"`
}
