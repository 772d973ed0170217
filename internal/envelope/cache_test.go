package envelope

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simplixity/smiirl-feed/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	cache.Store[Result]
}

func (failingStore) Get(ctx context.Context, key string, lifetime time.Duration) (cache.Entry[Result], bool, error) {
	return cache.Entry[Result]{}, false, errors.New("disk on fire")
}

func (failingStore) Set(ctx context.Context, key string, value Result) error {
	return errors.New("disk on fire")
}

func TestCache_RoundTripAddsCacheInfo(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := cache.NewFile[Result](dir)
	require.NoError(t, err)
	c := NewCache(store)

	original := New("instagram").
		WithNumber(4242).
		WithUsername("acme").
		WithResponse(Build(200, "", ""))

	require.True(t, c.Set(ctx, "instagram", original))

	got, found := c.Get(ctx, "instagram", 120*time.Second)
	require.True(t, found)

	require.NotNil(t, got.Cache)
	assert.Equal(t, "120s", got.Cache.Lifetime)
	assert.Regexp(t, `^\d+s$`, got.Cache.Age)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, got.Cache.CreatedAt)

	assert.Equal(t, original, got.WithCache(nil), "payload reproduced apart from cache info")
}

func TestCache_SetStripsCacheInfo(t *testing.T) {
	ctx := context.Background()

	store, err := cache.NewMemory[Result](time.Hour, 10)
	require.NoError(t, err)
	c := NewCache(store)

	decorated := New("instagram").WithCache(&CacheInfo{Age: "5s", CreatedAt: "x", Lifetime: "120s"})
	require.True(t, c.Set(ctx, "instagram", decorated))

	entry, found, err := store.Get(ctx, "instagram", time.Hour)
	require.NoError(t, err)
	require.True(t, found)
	assert.Nil(t, entry.Value.Cache)

	// the caller's value is untouched
	assert.NotNil(t, decorated.Cache)
}

func TestCache_AgeReflectsWriteTime(t *testing.T) {
	ctx := context.Background()

	store, err := cache.NewMemory[Result](time.Hour, 10)
	require.NoError(t, err)
	c := NewCache(store)

	require.True(t, c.Set(ctx, "instagram", New("instagram")))
	c.now = func() time.Time { return time.Now().Add(42 * time.Second) }

	got, found := c.Get(ctx, "instagram", time.Hour)
	require.True(t, found)
	assert.Equal(t, "42s", got.Cache.Age)
	assert.Equal(t, "3600s", got.Cache.Lifetime)
}

func TestCache_Miss(t *testing.T) {
	store, err := cache.NewMemory[Result](time.Hour, 10)
	require.NoError(t, err)
	c := NewCache(store)

	_, found := c.Get(context.Background(), "instagram", time.Minute)
	assert.False(t, found)
}

func TestCache_StoreErrorsAreContained(t *testing.T) {
	c := NewCache(failingStore{})

	_, found := c.Get(context.Background(), "instagram", time.Minute)
	assert.False(t, found)

	assert.False(t, c.Set(context.Background(), "instagram", New("instagram")))
}
