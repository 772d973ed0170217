// Package graph resolves a follower count through the official Graph API. The
// lookup is a chain of three requests: the page access token, the business
// account linked to the page, and finally the account's followers. Each step
// can fail independently, and the failure is reported with its step number.
package graph

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simplixity/smiirl-feed/internal/cache"
	"github.com/simplixity/smiirl-feed/internal/envelope"
	"github.com/simplixity/smiirl-feed/internal/settings"
)

// PageToken is the credential of the first page linked to the system user.
type PageToken struct {
	PageID      string    `json:"page_id"`
	AccessToken string    `json:"page_access_token"`
	CachedAt    time.Time `json:"cached_at"`
}

// Config holds the settings of a Client.
type Config struct {
	// APIURL is the versioned Graph API base, for example
	// https://graph.facebook.com/v24.0.
	APIURL string

	// SystemToken is the long-lived system user access token.
	SystemToken string

	// CacheKey names the cache slot of the service result. The page token is
	// cached under CacheKey + "-page-token".
	CacheKey string

	Lifetime          time.Duration
	PageTokenLifetime time.Duration
}

// Client resolves follower counts through the Graph API.
type Client struct {
	cfg        Config
	http       *http.Client
	results    *envelope.Cache
	pageTokens cache.Store[PageToken]
	settings   settings.Store
	now        func() time.Time
}

func New(
	cfg Config,
	httpClient *http.Client,
	results *envelope.Cache,
	pageTokens cache.Store[PageToken],
	store settings.Store,
) *Client {
	return &Client{
		cfg:        cfg,
		http:       httpClient,
		results:    results,
		pageTokens: pageTokens,
		settings:   store,
		now:        time.Now,
	}
}

// Followers completes base with the follower count of the business account.
// A valid cached result is returned without any request. Every other outcome,
// success or failure, is cached, except a missing system token which is
// reported immediately.
func (c *Client) Followers(ctx context.Context, base envelope.Result) envelope.Result {
	if c.cfg.SystemToken == "" {
		f := &envelope.Failure{
			Kind:       envelope.ErrConfigurationMissing,
			Message:    "Facebook system user access token missing",
			Suggestion: "configure FACEBOOK_SYSTEM_USER_ACCESS_TOKEN in the .env file",
		}
		return base.WithResponse(f.Response())
	}

	if cached, ok := c.results.Get(ctx, c.cfg.CacheKey, c.cfg.Lifetime); ok {
		return cached
	}

	result, err := c.resolve(ctx, base)
	if err != nil {
		log.Ctx(ctx).Info().Err(err).Str("service", base.Service).Msg("follower count lookup failed")
		result = base.WithResponse(envelope.FromError(err))
	}

	c.results.Set(ctx, c.cfg.CacheKey, result)

	return result
}

func (c *Client) resolve(ctx context.Context, base envelope.Result) (envelope.Result, error) {
	token, err := c.pageToken(ctx)
	if err != nil {
		return envelope.Result{}, err
	}

	businessID, err := c.businessAccountID(ctx, token)
	if err != nil {
		return envelope.Result{}, err
	}

	return c.followerCount(ctx, base, token, businessID)
}

func (c *Client) pageTokenKey() string {
	return c.cfg.CacheKey + "-page-token"
}

func bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
