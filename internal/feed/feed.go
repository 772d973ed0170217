// Package feed dispatches a requested service name to the provider that
// resolves it.
package feed

import (
	"context"
	"fmt"

	"github.com/simplixity/smiirl-feed/internal/envelope"
	"golang.org/x/text/cases"
)

// Service names.
const (
	ServiceInstagram   = "instagram"
	ServiceInstagramV1 = "instagram-v1"
)

// Provider completes base with the count of a single service. Providers never
// fail: every outcome is described by the returned envelope.
type Provider func(ctx context.Context, base envelope.Result) envelope.Result

// Router resolves service names to providers. Names are matched without
// regard to case.
type Router struct {
	providers map[string]Provider
}

func NewRouter() *Router {
	return &Router{
		providers: map[string]Provider{},
	}
}

// Register adds a provider under name.
func (r *Router) Register(name string, provider Provider) {
	r.providers[key(name)] = provider
}

// Lookup returns the provider registered for name.
func (r *Router) Lookup(name string) (Provider, bool) {
	p, ok := r.providers[key(name)]
	return p, ok
}

// GetData returns the envelope for the named service. The envelope always
// reports the name as requested. An unknown service produces an error
// envelope without any upstream or cache activity.
func (r *Router) GetData(ctx context.Context, name string) envelope.Result {
	base := envelope.New(name)

	provider, ok := r.Lookup(name)
	if !ok {
		return base.WithResponse(envelope.Build(0, fmt.Sprintf("unsupported service: %s", name), ""))
	}

	return provider(ctx, base).WithService(name)
}

// key folds name for matching. A Caser holds state, so one is created per
// call.
func key(name string) string {
	return cases.Fold().String(name)
}
