package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Failure kinds. A Failure unwraps to exactly one of these.
var (
	// ErrConfigurationMissing: a required credential or username is not
	// configured. No network call is attempted.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrUpstream: the upstream returned a non-200 status, timed out or
	// returned an empty body.
	ErrUpstream = errors.New("upstream unreachable or not OK")

	// ErrShapeMismatch: the upstream answered 200 but the expected field is
	// absent.
	ErrShapeMismatch = errors.New("upstream response shape mismatch")

	// ErrNoLinkedResource: no page, or no business account linked to the page.
	ErrNoLinkedResource = errors.New("no linked resource")
)

// Debug keys used to attach raw upstream bodies to an error response.
const (
	DebugResponse = "debug_response"
	DebugAccounts = "debug_accounts"
	DebugPage     = "debug_page"
)

// Failure is a recoverable provider error. It carries everything needed to
// describe the failure in the envelope.
type Failure struct {
	Kind error
	// Step is the position in a chained lookup, or zero for single calls.
	Step       int
	HTTPCode   int
	Message    string
	Upstream   string
	Suggestion string
	DebugKey   string
	Debug      json.RawMessage
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail())
}

func (f *Failure) Unwrap() error {
	return f.Kind
}

// Detail is the message reported to clients: the step marker, the local
// message and, when present, the message supplied by the upstream.
func (f *Failure) Detail() string {
	msg := f.Message
	if f.Step > 0 {
		msg = fmt.Sprintf("step %d - %s", f.Step, msg)
	}
	if f.Upstream != "" {
		msg += " - " + f.Upstream
	}
	return msg
}

// Response converts the failure to the envelope response.
func (f *Failure) Response() Response {
	resp := Build(f.HTTPCode, f.Detail(), f.Suggestion)

	switch f.DebugKey {
	case DebugResponse:
		resp.DebugResponse = f.Debug
	case DebugAccounts:
		resp.DebugAccounts = f.Debug
	case DebugPage:
		resp.DebugPage = f.Debug
	}

	return resp
}

// FromError converts an error returned by a provider step to a response. A
// Failure is converted as-is; anything else is reported as an upstream error
// with no status.
func FromError(err error) Response {
	var f *Failure
	if errors.As(err, &f) {
		return f.Response()
	}

	return Build(0, err.Error(), "")
}
