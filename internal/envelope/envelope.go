// Package envelope defines the uniform JSON document returned by the feed for
// every outcome, success or failure.
package envelope

import (
	"encoding/json"
)

// Result is the feed envelope. It is a value type: the With methods return a
// modified copy and never change the receiver.
type Result struct {
	Service  string     `json:"service"`
	Number   int64      `json:"number"`
	Username string     `json:"username,omitempty"`
	URL      string     `json:"url,omitempty"`
	Response Response   `json:"response"`
	Cache    *CacheInfo `json:"cache,omitempty"`
}

// Response describes the outcome of the upstream call that produced the
// result.
type Response struct {
	APIHTTPCode   int             `json:"api_http_code"`
	Error         string          `json:"error,omitempty"`
	Suggestion    string          `json:"suggestion,omitempty"`
	DebugResponse json.RawMessage `json:"debug_response,omitempty"`
	DebugAccounts json.RawMessage `json:"debug_accounts,omitempty"`
	DebugPage     json.RawMessage `json:"debug_page,omitempty"`
}

// CacheInfo is attached when a result is served from the cache. It is never
// stored.
type CacheInfo struct {
	Age       string `json:"age"`
	CreatedAt string `json:"created_at"`
	Lifetime  string `json:"lifetime"`
}

// New starts an envelope for the named service with a zero count.
func New(service string) Result {
	return Result{Service: service}
}

// Build creates the response part of an envelope. Empty error and suggestion
// values are omitted from the output.
func Build(httpCode int, err string, suggestion string) Response {
	return Response{
		APIHTTPCode: httpCode,
		Error:       err,
		Suggestion:  suggestion,
	}
}

// Failed reports whether the result describes an error.
func (r Result) Failed() bool {
	return r.Response.Error != ""
}

func (r Result) WithService(service string) Result {
	r.Service = service
	return r
}

func (r Result) WithNumber(n int64) Result {
	r.Number = n
	return r
}

func (r Result) WithUsername(username string) Result {
	r.Username = username
	return r
}

func (r Result) WithURL(url string) Result {
	r.URL = url
	return r
}

func (r Result) WithResponse(resp Response) Result {
	r.Response = resp
	return r
}

func (r Result) WithCache(info *CacheInfo) Result {
	r.Cache = info
	return r
}
