// Command clearcache removes cached feed results and page tokens so that the
// next request queries the upstream services again. With
// -forget-business-account it also removes the discovered business account id
// from the settings file, forcing it to be looked up again.
//
// Configuration is read the same way as the server: from the environment and
// the dotenv file named by ENV_FILE.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/simplixity/smiirl-feed/internal/cache"
	"github.com/simplixity/smiirl-feed/internal/config"
	"github.com/simplixity/smiirl-feed/internal/envelope"
	"github.com/simplixity/smiirl-feed/internal/feed"
	"github.com/simplixity/smiirl-feed/internal/graph"
	"github.com/simplixity/smiirl-feed/internal/settings"
)

type options struct {
	forgetBusinessAccount bool
}

func main() {
	opts := options{}
	flag.BoolVar(&opts.forgetBusinessAccount, "forget-business-account", false,
		"also remove the discovered business account id from the settings file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error clearing cache: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options) error {
	if cfg.Cache.Type == "memory" {
		log.Info().Msg("memory cache is held by the server process: restart the server to clear it")
	} else if err := clearCache(ctx, cfg); err != nil {
		return err
	}

	if opts.forgetBusinessAccount {
		store, err := settings.OpenFile(cfg.Settings.File, nil)
		if err != nil {
			return err
		}

		if err := store.Forget(settings.BusinessAccountIDKey); err != nil {
			return fmt.Errorf("could not forget business account id: %w", err)
		}

		log.Info().Str("file", store.Path()).Msg("business account id removed")
	}

	return nil
}

func clearCache(ctx context.Context, cfg config.Config) error {
	if cfg.Cache.Type == "file" {
		files, err := cache.NewFile[envelope.Result](cfg.Cache.Dir)
		if err != nil {
			return err
		}

		removed, err := files.Clear()
		if err != nil {
			return err
		}

		log.Info().Str("dir", files.Dir()).Int("removed", removed).Msg("cache cleared")
		return nil
	}

	results, err := cache.NewFromConfig[envelope.Result](ctx, cfg.Cache, "results", cfg.Cache.Lifetime())
	if err != nil {
		return err
	}
	defer results.Close()

	pageTokens, err := cache.NewFromConfig[graph.PageToken](ctx, cfg.Cache, "page-tokens", cfg.Cache.PageTokenLifetime())
	if err != nil {
		return err
	}
	defer pageTokens.Close()

	for _, key := range []string{feed.ServiceInstagram, feed.ServiceInstagramV1} {
		if err := results.Invalidate(ctx, key); err != nil {
			return fmt.Errorf("could not invalidate %s: %w", key, err)
		}
	}

	if err := pageTokens.Invalidate(ctx, feed.ServiceInstagram+"-page-token"); err != nil {
		return fmt.Errorf("could not invalidate page token: %w", err)
	}

	log.Info().Str("type", cfg.Cache.Type).Msg("cache cleared")
	return nil
}
