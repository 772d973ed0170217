package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/simplixity/smiirl-feed/internal/audit"
	"github.com/simplixity/smiirl-feed/internal/envelope"
	"github.com/simplixity/smiirl-feed/internal/feed"
)

// FeedSource resolves the envelope of a named service.
type FeedSource interface {
	GetData(ctx context.Context, service string) envelope.Result
}

// handleFeed answers every request with HTTP 200: the outcome of the upstream
// call is carried by the envelope. The service is taken from the "service"
// query parameter, then the configured default, then "instagram".
func handleFeed(source FeedSource, defaultService string) http.Handler {
	if defaultService == "" {
		defaultService = feed.ServiceInstagram
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		service := r.URL.Query().Get("service")
		if service == "" {
			service = defaultService
		}

		ctx := r.Context()
		audit.Log(ctx).Service = service

		result := source.GetData(ctx, service)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "    ")
		if err := enc.Encode(result); err != nil {
			// the status is already written: only log
			log.Info().Err(err).Msg("failed to write response")
		}
	})
}

func handleHealthCheck() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer drainRequestBody(r)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// allowAnyOrigin lets the feed be read from browser dashboards on any origin.
func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func maxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, limit)
	}
}

// drainRequestBody drains the request body by reading and discarding the contents.
// This is useful to ensure the request body is fully consumed, which is important
// for connection reuse in HTTP/1 clients.
func drainRequestBody(r *http.Request) {
	if r.Body != nil {
		// 5kb max: after this we'll assume the client is broken or malicious
		// and close the connection
		io.CopyN(io.Discard, r.Body, 5*1024)
	}
}
