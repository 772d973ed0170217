package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Cache     CacheConfig
	Feed      FeedConfig
	Graph     GraphConfig
	Instagram InstagramConfig
	Observe   ObserveConfig
	Server    ServerConfig
	Settings  SettingsConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080" validate:"gt=0,lte=65535"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25" validate:"gte=0"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100" validate:"gte=0"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20" validate:"gte=0"`

	// UpstreamTimeoutSeconds bounds every outbound request. A timeout is
	// reported like any other non-200 upstream response.
	UpstreamTimeoutSeconds int `env:"UPSTREAM_TIMEOUT_SECS, default=30" validate:"gt=0"`
}

func (c ServerConfig) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// FeedConfig controls the feed endpoint itself.
type FeedConfig struct {
	// DefaultService is used when the request does not name a service.
	DefaultService string `env:"SERVICE, default=instagram"`
}

// SettingsConfig locates the writable settings file. This is the same dotenv
// file that is loaded at startup, so values discovered at runtime survive a
// restart.
type SettingsConfig struct {
	File string `env:"ENV_FILE, default=.env"`
}

// CacheConfig specifies cache configuration.
type CacheConfig struct {
	// Type selects the cache implementation: "file" (default), "memory" or
	// "valkey".
	Type string `env:"CACHE_TYPE, default=file" validate:"oneof=file memory valkey"`

	// Dir is the directory holding cache files when Type is "file".
	Dir string `env:"CACHE_DIR, default=cache"`

	// LifetimeSeconds is how long a service result (success or failure) is
	// served from the cache.
	LifetimeSeconds int `env:"CACHE_LIFETIME, default=120" validate:"gt=0"`

	// PageTokenLifetimeSeconds is how long a Graph page access token is reused.
	PageTokenLifetimeSeconds int `env:"CACHE_PAGE_TOKEN_LIFETIME, default=3600" validate:"gt=0"`

	// Valkey holds distributed cache settings.
	Valkey ValkeyConfig
}

func (c CacheConfig) Lifetime() time.Duration {
	return time.Duration(c.LifetimeSeconds) * time.Second
}

func (c CacheConfig) PageTokenLifetime() time.Duration {
	return time.Duration(c.PageTokenLifetimeSeconds) * time.Second
}

// ValkeyConfig specifies distributed cache configuration.
type ValkeyConfig struct {
	// Address is the Valkey server address (host:port).
	Address string `env:"VALKEY_ADDRESS"`

	// TLS enables TLS connection to Valkey. Defaults to true so the secure option
	// is the default.
	TLS bool `env:"VALKEY_TLS, default=true"`

	Username string `env:"VALKEY_USERNAME"`
	Password string `env:"VALKEY_PASSWORD"`
}

// InstagramConfig configures the unofficial web profile lookup.
type InstagramConfig struct {
	Username      string `env:"INSTAGRAM_USERNAME"`
	WebProfileURL string `env:"INSTAGRAM_WEB_PROFILE_URL, default=https://www.instagram.com/api/v1/users/web_profile_info/" validate:"url"`
}

// GraphConfig configures the official Graph API chain.
type GraphConfig struct {
	APIURL string `env:"GRAPH_API_URL, default=https://graph.facebook.com/v24.0" validate:"url"`

	SystemUserAccessToken string `env:"FACEBOOK_SYSTEM_USER_ACCESS_TOKEN"`

	// BusinessAccountID seeds the settings store. Once discovered through the
	// API, the id is written to the settings file and this value is ignored.
	BusinessAccountID string `env:"INSTAGRAM_BUSINESS_ACCOUNT_ID"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc" validate:"oneof=grpc stdout"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=smiirl-feed"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

// Load reads the dotenv file named by ENV_FILE (default ".env") into the
// process environment without overriding variables that are already set, then
// processes the environment into a validated Config.
func Load(ctx context.Context) (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}

	if err := loadDotEnv(envFile); err != nil {
		return Config{}, err
	}

	return load(ctx, nil) // load from OS environment
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		// the file is optional
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not read environment file %s: %w", path, err)
	}
	return nil
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the cross-field rules of the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.Type == "file" && c.Dir == "" {
		return fmt.Errorf("CACHE_DIR required when CACHE_TYPE=file")
	}

	if c.Type == "valkey" && c.Valkey.Address == "" {
		return fmt.Errorf("VALKEY_ADDRESS required when CACHE_TYPE=valkey")
	}

	return nil
}
