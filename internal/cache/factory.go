package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simplixity/smiirl-feed/internal/config"
	"github.com/valkey-io/valkey-go"
)

// maxMemoryEntries bounds the in-memory cache. The service only ever holds a
// handful of keys.
const maxMemoryEntries = 1_000

// NewFromConfig creates a cache implementation based on the provided
// configuration. The name identifies the store in telemetry and, for Valkey,
// namespaces its keys. Retention is the longest lifetime that readers of this
// store will ask for: backends that expire entries themselves keep them at
// least this long.
//
// The cache type must be "file", "memory" or "valkey". Any other value returns
// an error.
func NewFromConfig[T any](
	ctx context.Context,
	cacheConfig config.CacheConfig,
	name string,
	retention time.Duration,
) (Store[T], error) {
	switch cacheConfig.Type {
	case "file":
		log.Info().
			Str("cache_type", "file").
			Str("cache_name", name).
			Str("dir", cacheConfig.Dir).
			Msg("initializing file cache")

		file, err := NewFile[T](cacheConfig.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create file cache: %w", err)
		}

		return NewInstrumented(file, "file", name), nil

	case "valkey":
		log.Info().
			Str("cache_type", "valkey").
			Str("cache_name", name).
			Str("address", cacheConfig.Valkey.Address).
			Bool("tls", cacheConfig.Valkey.TLS).
			Msg("initializing distributed cache")

		if cacheConfig.Valkey.Address == "" {
			return nil, fmt.Errorf("valkey address is required when cache type is valkey")
		}

		valkeyOpts := valkey.ClientOption{
			InitAddress: []string{cacheConfig.Valkey.Address},
			Username:    cacheConfig.Valkey.Username,
			Password:    cacheConfig.Valkey.Password,
		}

		// Configure TLS if enabled
		if cacheConfig.Valkey.TLS {
			valkeyOpts.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}

		valkeyClient, err := valkey.NewClient(valkeyOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to create valkey client: %w", err)
		}

		distributed, err := NewDistributed[T](valkeyClient, retention, "smiirl-feed:"+name+":")
		if err != nil {
			valkeyClient.Close()
			return nil, fmt.Errorf("failed to create distributed cache: %w", err)
		}

		return NewInstrumented(distributed, "distributed", name), nil

	case "memory":
		log.Info().
			Str("cache_type", "memory").
			Str("cache_name", name).
			Msg("initializing in-memory cache")

		memory, err := NewMemory[T](retention, maxMemoryEntries)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}

		return NewInstrumented(memory, "memory", name), nil

	default:
		return nil, fmt.Errorf("invalid cache type %q: must be one of \"file\", \"memory\" or \"valkey\"", cacheConfig.Type)
	}
}
