// Package upstream performs the outbound GET requests made by the providers.
// Transport failures are not returned as errors: they are folded into a Reply
// with a zero status, so that a timeout is handled exactly like any other
// unsuccessful response.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// maxBodyBytes limits how much of an upstream body is read. Responses are small
// JSON documents.
const maxBodyBytes = 1 << 20 // 1 MB

// DefaultTimeout is applied by NewClient when no timeout is given.
const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client with a bounded timeout. The transport is
// left unset so the (instrumented) default transport is used at request time.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Reply is the outcome of an upstream call. Status is zero when no response
// was received.
type Reply struct {
	Status int
	Body   []byte
}

// Get issues a GET request for url with the given headers.
func Get(ctx context.Context, client *http.Client, url string, header http.Header) Reply {
	logger := log.Ctx(ctx).With().Str("url", url).Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("upstream request could not be created")
		return Reply{}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("upstream request failed")
		return Reply{}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		logger.Warn().Err(err).Int("status", resp.StatusCode).Msg("upstream body could not be read")
		return Reply{Status: resp.StatusCode}
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("upstream request complete")

	return Reply{Status: resp.StatusCode, Body: body}
}

// OK reports whether the upstream answered 200 with a non-empty body.
func (r Reply) OK() bool {
	return r.Status == http.StatusOK && len(bytes.TrimSpace(r.Body)) > 0
}

// Decode unmarshals the body into v.
func (r Reply) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// ErrorMessage extracts the message from a Graph-style error body:
// {"error": {"message": "..."}}. It returns an empty string if the body has
// no such message.
func (r Reply) ErrorMessage() string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return ""
	}
	return body.Error.Message
}

// Debug returns the body for inclusion in an error envelope. Bodies that are
// not valid JSON are replaced with an empty array.
func (r Reply) Debug() json.RawMessage {
	trimmed := bytes.TrimSpace(r.Body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return json.RawMessage("[]")
	}
	return json.RawMessage(trimmed)
}
