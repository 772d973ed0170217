package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/simplixity/smiirl-feed/internal/audit"
	"github.com/simplixity/smiirl-feed/internal/cache"
	"github.com/simplixity/smiirl-feed/internal/config"
	"github.com/simplixity/smiirl-feed/internal/envelope"
	"github.com/simplixity/smiirl-feed/internal/feed"
	"github.com/simplixity/smiirl-feed/internal/graph"
	"github.com/simplixity/smiirl-feed/internal/instagram"
	"github.com/simplixity/smiirl-feed/internal/observe"
	"github.com/simplixity/smiirl-feed/internal/server"
	"github.com/simplixity/smiirl-feed/internal/settings"
	"github.com/simplixity/smiirl-feed/internal/upstream"
)

// feedRoutes serve the same document: the bare root is kept for counters
// configured with the host only.
var feedRoutes = []string{"GET /{$}", "GET /smiirl-json-feed"}

func configureServerRoutes(cfg config.Config, source FeedSource) http.Handler {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// The feed takes no request body: the limit only guards against abuse.
	requestLimitBytes := int64(20 << 10) // 20 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	feedRouteMiddleware := alice.New(requestLimiter, allowAnyOrigin, audit.Middleware())
	standardRouteMiddleware := alice.New(requestLimiter)

	feedHandler := feedRouteMiddleware.Then(handleFeed(source, cfg.Feed.DefaultService))
	for _, route := range feedRoutes {
		mux.Handle(route, feedHandler)
	}

	// healthchecks are not included in telemetry or audit
	muxWithoutTelemetry.Handle("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	log.Info().Strs("routes", mux.Routes()).Msg("feed routes registered")

	return mux
}

// configureFeed wires the providers to their caches and the settings store.
// Resources needing cleanup are registered with hooks.
func configureFeed(ctx context.Context, cfg config.Config, hooks *server.ShutdownHooks) (*feed.Router, error) {
	// the configured id only seeds the store when the settings file does not
	// define it itself
	settingsStore, err := settings.OpenFile(cfg.Settings.File, map[string]string{
		settings.BusinessAccountIDKey: cfg.Graph.BusinessAccountID,
	})
	if err != nil {
		return nil, fmt.Errorf("settings store failed: %w", err)
	}

	results, err := cache.NewFromConfig[envelope.Result](ctx, cfg.Cache, "results", cfg.Cache.Lifetime())
	if err != nil {
		return nil, fmt.Errorf("result cache configuration failed: %w", err)
	}
	hooks.AddCloser("result-cache", results)

	pageTokens, err := cache.NewFromConfig[graph.PageToken](ctx, cfg.Cache, "page-tokens", cfg.Cache.PageTokenLifetime())
	if err != nil {
		return nil, fmt.Errorf("page token cache configuration failed: %w", err)
	}
	hooks.AddCloser("page-token-cache", pageTokens)

	httpClient := upstream.NewClient(cfg.Server.UpstreamTimeout())
	resultCache := envelope.NewCache(results)

	graphClient := graph.New(
		graph.Config{
			APIURL:            cfg.Graph.APIURL,
			SystemToken:       cfg.Graph.SystemUserAccessToken,
			CacheKey:          feed.ServiceInstagram,
			Lifetime:          cfg.Cache.Lifetime(),
			PageTokenLifetime: cfg.Cache.PageTokenLifetime(),
		},
		httpClient,
		resultCache,
		pageTokens,
		settingsStore,
	)

	webClient := instagram.New(
		instagram.Config{
			Username:      cfg.Instagram.Username,
			WebProfileURL: cfg.Instagram.WebProfileURL,
			CacheKey:      feed.ServiceInstagramV1,
			Lifetime:      cfg.Cache.Lifetime(),
		},
		httpClient,
		resultCache,
	)

	router := feed.NewRouter()
	router.Register(feed.ServiceInstagram, feed.Audited(feed.ServiceInstagram, graphClient.Followers))
	router.Register(feed.ServiceInstagramV1, feed.Audited(feed.ServiceInstagramV1, webClient.Followers))

	return router, nil
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	hooks := &server.ShutdownHooks{}

	// configure telemetry, including wrapping default HTTP client
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
	}

	// setup routing and dependencies
	router, err := configureFeed(ctx, cfg, hooks)
	if err != nil {
		return fmt.Errorf("feed configuration failed: %w", err)
	}

	// telemetry is flushed last so that the closing of other resources is
	// still recorded
	hooks.AddContext("telemetry", shutdownTelemetry)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           configureServerRoutes(cfg, router),
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second

	err = server.ListenAndServe(ctx, srv, shutdownTimeout, hooks)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
