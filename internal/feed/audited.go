package feed

import (
	"context"

	"github.com/simplixity/smiirl-feed/internal/audit"
	"github.com/simplixity/smiirl-feed/internal/envelope"
)

// Audited wraps a provider and records its outcome in the audit log entry of
// the request.
func Audited(name string, provider Provider) Provider {
	return func(ctx context.Context, base envelope.Result) envelope.Result {
		result := provider(ctx, base)

		entry := audit.Log(ctx)
		entry.Provider = name
		entry.Cached = result.Cache != nil
		entry.Number = result.Number
		entry.UpstreamStatus = result.Response.APIHTTPCode
		if result.Failed() {
			entry.Error = result.Response.Error
		}

		return result
	}
}
