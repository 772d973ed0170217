// Package instagram reads a follower count from the public web profile
// endpoint. The endpoint is unofficial: it needs browser-like headers and its
// response structure may change without notice.
package instagram

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simplixity/smiirl-feed/internal/envelope"
	"github.com/simplixity/smiirl-feed/internal/upstream"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	appID     = "936619743392459"
)

// Config holds the settings of a Client.
type Config struct {
	// Username is the profile to look up.
	Username string

	// WebProfileURL is the endpoint queried with ?username=.
	WebProfileURL string

	// CacheKey names the cache slot of the result.
	CacheKey string

	Lifetime time.Duration
}

// Client looks up follower counts on the web profile endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	results *envelope.Cache
}

func New(cfg Config, httpClient *http.Client, results *envelope.Cache) *Client {
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		results: results,
	}
}

// Followers completes base with the follower count of the configured profile.
// Both success and failure are cached, so a blocked endpoint is not retried
// until the cache lifetime has passed.
func (c *Client) Followers(ctx context.Context, base envelope.Result) envelope.Result {
	if c.cfg.Username == "" {
		f := &envelope.Failure{
			Kind:       envelope.ErrConfigurationMissing,
			Message:    "Instagram username missing",
			Suggestion: "configure INSTAGRAM_USERNAME in the .env file",
		}
		return base.WithResponse(f.Response())
	}

	if cached, ok := c.results.Get(ctx, c.cfg.CacheKey, c.cfg.Lifetime); ok {
		return cached
	}

	profileURL := c.profileURL()
	result := base.WithURL(profileURL)

	reply := upstream.Get(ctx, c.http, profileURL, browserHeaders())

	count, err := followerCount(reply)
	if err != nil {
		log.Ctx(ctx).Info().Err(err).Str("username", c.cfg.Username).Msg("web profile lookup failed")
		result = result.WithResponse(envelope.FromError(err))
	} else {
		result = result.
			WithNumber(count).
			WithResponse(envelope.Build(reply.Status, "", ""))
	}

	c.results.Set(ctx, c.cfg.CacheKey, result)

	return result
}

func (c *Client) profileURL() string {
	q := url.Values{}
	q.Set("username", c.cfg.Username)
	return c.cfg.WebProfileURL + "?" + q.Encode()
}

func followerCount(reply upstream.Reply) (int64, error) {
	kind := envelope.ErrUpstream

	if reply.OK() {
		var profile struct {
			Data struct {
				User struct {
					EdgeFollowedBy struct {
						Count *int64 `json:"count"`
					} `json:"edge_followed_by"`
				} `json:"user"`
			} `json:"data"`
		}

		if err := reply.Decode(&profile); err == nil && profile.Data.User.EdgeFollowedBy.Count != nil {
			return *profile.Data.User.EdgeFollowedBy.Count, nil
		}
		kind = envelope.ErrShapeMismatch
	}

	return 0, &envelope.Failure{
		Kind:       kind,
		HTTPCode:   reply.Status,
		Message:    "unable to retrieve the follower count: Instagram may have changed its structure",
		Suggestion: "use the official Instagram Graph API with an access token",
	}
}

func browserHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("X-IG-App-ID", appID)
	h.Set("X-Requested-With", "XMLHttpRequest")
	return h
}
