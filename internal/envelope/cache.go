package envelope

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simplixity/smiirl-feed/internal/cache"
)

const createdAtLayout = "2006-01-02 15:04:05"

// Cache stores results keyed by service name. Results read from the cache are
// decorated with their age; the decoration is never written.
type Cache struct {
	store cache.Store[Result]
	now   func() time.Time
}

func NewCache(store cache.Store[Result]) *Cache {
	return &Cache{
		store: store,
		now:   time.Now,
	}
}

// Get returns the cached result for key if it is younger than lifetime. Store
// errors are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string, lifetime time.Duration) (Result, bool) {
	entry, found, err := c.store.Get(ctx, key, lifetime)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		return Result{}, false
	}
	if !found {
		return Result{}, false
	}

	info := &CacheInfo{
		Age:       seconds(entry.Age(c.now())),
		CreatedAt: entry.WrittenAt.Local().Format(createdAtLayout),
		Lifetime:  seconds(lifetime),
	}

	return entry.Value.WithCache(info), true
}

// Set stores the result under key, without any cache decoration. It reports
// whether the write succeeded; failures are logged but otherwise ignored as
// the result is still valid for the caller.
func (c *Cache) Set(ctx context.Context, key string, r Result) bool {
	err := c.store.Set(ctx, key, r.WithCache(nil))
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache write failed")
		return false
	}

	return true
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%ds", int64(d/time.Second))
}
