package graph

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/simplixity/smiirl-feed/internal/envelope"
	"github.com/simplixity/smiirl-feed/internal/settings"
	"github.com/simplixity/smiirl-feed/internal/upstream"
)

// pageToken returns the token of the first page available to the system
// user. Only the first page is considered.
func (c *Client) pageToken(ctx context.Context) (PageToken, error) {
	key := c.pageTokenKey()

	entry, found, err := c.pageTokens.Get(ctx, key, c.cfg.PageTokenLifetime)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("page token cache read failed, treating as miss")
	}
	if found {
		return entry.Value, nil
	}

	endpoint, err := url.JoinPath(c.cfg.APIURL, "me", "accounts")
	if err != nil {
		return PageToken{}, fmt.Errorf("step 1 - invalid Graph API URL: %w", err)
	}

	reply := upstream.Get(ctx, c.http, endpoint, bearer(c.cfg.SystemToken))
	if !reply.OK() {
		return PageToken{}, &envelope.Failure{
			Kind:       envelope.ErrUpstream,
			Step:       1,
			HTTPCode:   reply.Status,
			Message:    "unable to retrieve Facebook pages",
			Upstream:   reply.ErrorMessage(),
			Suggestion: "check that the access token has the pages_show_list permission",
			DebugKey:   envelope.DebugResponse,
			Debug:      reply.Debug(),
		}
	}

	var accounts struct {
		Data []struct {
			ID          string `json:"id"`
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	_ = reply.Decode(&accounts) // an undecodable body is reported as no page

	if len(accounts.Data) == 0 || accounts.Data[0].ID == "" || accounts.Data[0].AccessToken == "" {
		return PageToken{}, &envelope.Failure{
			Kind:       envelope.ErrNoLinkedResource,
			Step:       1,
			HTTPCode:   reply.Status,
			Message:    "no Facebook page found",
			Suggestion: "make sure a Facebook page is connected to the account",
			DebugKey:   envelope.DebugAccounts,
			Debug:      reply.Debug(),
		}
	}

	token := PageToken{
		PageID:      accounts.Data[0].ID,
		AccessToken: accounts.Data[0].AccessToken,
		CachedAt:    c.now(),
	}

	if err := c.pageTokens.Set(ctx, key, token); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("page token cache write failed")
	}

	return token, nil
}

// businessAccountID returns the business account linked to the page. A
// previously discovered id is used without any request; a newly discovered id
// is persisted to the settings store.
func (c *Client) businessAccountID(ctx context.Context, token PageToken) (string, error) {
	if id, ok := c.settings.Lookup(settings.BusinessAccountIDKey); ok {
		return id, nil
	}

	endpoint, err := fieldsURL(c.cfg.APIURL, token.PageID, "instagram_business_account")
	if err != nil {
		return "", fmt.Errorf("step 2 - invalid Graph API URL: %w", err)
	}

	reply := upstream.Get(ctx, c.http, endpoint, bearer(token.AccessToken))
	if !reply.OK() {
		return "", &envelope.Failure{
			Kind:       envelope.ErrUpstream,
			Step:       2,
			HTTPCode:   reply.Status,
			Message:    "unable to retrieve the Instagram business account",
			Upstream:   reply.ErrorMessage(),
			Suggestion: "check that the Facebook page is connected to an Instagram Business account and that the page access token is valid",
			DebugKey:   envelope.DebugResponse,
			Debug:      reply.Debug(),
		}
	}

	var page struct {
		BusinessAccount struct {
			ID string `json:"id"`
		} `json:"instagram_business_account"`
	}
	_ = reply.Decode(&page)

	id := page.BusinessAccount.ID
	if id == "" {
		return "", &envelope.Failure{
			Kind:       envelope.ErrNoLinkedResource,
			Step:       2,
			HTTPCode:   reply.Status,
			Message:    "no Instagram business account found",
			Suggestion: "make sure the Facebook page is connected to an Instagram Business or Creator account",
			DebugKey:   envelope.DebugPage,
			Debug:      reply.Debug(),
		}
	}

	if err := c.settings.SetDerived(settings.BusinessAccountIDKey, id); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("could not persist the business account id")
	} else {
		log.Ctx(ctx).Info().Str("business_account_id", id).Msg("business account id discovered")
	}

	return id, nil
}

// followerCount completes base with the followers and username of the
// business account.
func (c *Client) followerCount(ctx context.Context, base envelope.Result, token PageToken, businessID string) (envelope.Result, error) {
	endpoint, err := fieldsURL(c.cfg.APIURL, businessID, "followers_count,username")
	if err != nil {
		return envelope.Result{}, fmt.Errorf("step 3 - invalid Graph API URL: %w", err)
	}

	reply := upstream.Get(ctx, c.http, endpoint, bearer(token.AccessToken))

	var account struct {
		FollowersCount *int64 `json:"followers_count"`
		Username       string `json:"username"`
	}

	kind := envelope.ErrUpstream
	if reply.OK() {
		if err := reply.Decode(&account); err == nil && account.FollowersCount != nil {
			return base.
				WithNumber(*account.FollowersCount).
				WithUsername(account.Username).
				WithResponse(envelope.Build(reply.Status, "", "")), nil
		}
		kind = envelope.ErrShapeMismatch
	}

	return envelope.Result{}, &envelope.Failure{
		Kind:       kind,
		Step:       3,
		HTTPCode:   reply.Status,
		Message:    "unable to retrieve the follower count",
		Upstream:   reply.ErrorMessage(),
		Suggestion: "check that the page access token has the instagram_basic and instagram_manage_insights permissions",
		DebugKey:   envelope.DebugResponse,
		Debug:      reply.Debug(),
	}
}

func fieldsURL(base, id, fields string) (string, error) {
	endpoint, err := url.JoinPath(base, id)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("fields", fields)

	return endpoint + "?" + q.Encode(), nil
}
