// Package audit writes one structured log entry per feed request. Components
// handling the request add to the entry through Log(ctx); the middleware
// writes it when the request completes, including when the handler panics.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"
)

// Level is the log level of audit entries. It sits above the standard levels
// so that audit entries are written whatever level the logger is set to.
const Level = zerolog.Level(20)

const levelName = "audit"

func init() {
	standard := zerolog.LevelFieldMarshalFunc
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		if l == Level {
			return levelName
		}
		return standard(l)
	}
}

type contextKey struct{}

// Entry is the audit record of a single request.
type Entry struct {
	Method    string
	Path      string
	Status    int
	SourceIP  string
	UserAgent string

	// Service is the service name as requested.
	Service string
	// Provider is the canonical name of the provider that handled the request.
	Provider       string
	Cached         bool
	Number         int64
	UpstreamStatus int

	Error string
}

func (e *Entry) MarshalZerologObject(ev *zerolog.Event) {
	request := zerolog.Dict().
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent)
	ev.Dict("request", request)

	feed := NewOptionalEvent(nil).
		Str("service", e.Service).
		Str("provider", e.Provider).
		Int("upstreamStatus", e.UpstreamStatus)
	if e.Provider != "" {
		feed.Bool("cached", e.Cached)
		feed.Event().Int64("number", e.Number)
	}
	feed.Set(ev, "feed")

	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}

// Begin records the request details.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.UserAgent = r.UserAgent()

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		e.SourceIP = ip
	} else {
		e.SourceIP = r.RemoteAddr
	}
}

// End returns a function that writes the entry. It is intended to be deferred:
// a panic is recorded in the entry and then re-raised.
func (e *Entry) End(ctx context.Context) func() {
	return func() {
		r := recover()
		if r != nil {
			if e.Error != "" {
				e.Error += "; "
			}
			e.Error += fmt.Sprintf("panic: %v", r)
		}

		if e.Status == 0 {
			e.Status = http.StatusOK
		}

		zerolog.Ctx(ctx).WithLevel(Level).EmbedObject(e).Msg("audit_event")

		if r != nil {
			panic(r)
		}
	}
}

// Context returns the audit entry of ctx, creating one if it does not exist.
// The returned context carries the entry.
func Context(ctx context.Context) (context.Context, *Entry) {
	if e, ok := ctx.Value(contextKey{}).(*Entry); ok {
		return ctx, e
	}

	e := &Entry{}
	return context.WithValue(ctx, contextKey{}, e), e
}

// Log returns the audit entry of ctx. Outside an audited request an unattached
// entry is returned, so callers never need to check.
func Log(ctx context.Context) *Entry {
	_, e := Context(ctx)
	return e
}

// Middleware returns a handler middleware that creates the audit entry for
// the request and writes it when the request completes.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())

			entry.Begin(r)
			defer entry.End(ctx)()

			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			entry.Status = recorder.status
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
