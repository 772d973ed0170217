package observe_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/simplixity/smiirl-feed/internal/config"
	"github.com/simplixity/smiirl-feed/internal/observe"
	"github.com/simplixity/smiirl-feed/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func TestConfigure_Disabled(t *testing.T) {
	testhelpers.SetupLogger(t)

	shutdown, err := observe.Configure(context.Background(), config.ObserveConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
}

func TestConfigure_Stdout(t *testing.T) {
	testhelpers.SetupLogger(t)

	shutdown, err := observe.Configure(context.Background(), config.ObserveConfig{
		Enabled:                   true,
		MetricsEnabled:            true,
		Type:                      "stdout",
		ServiceName:               "smiirl-feed-test",
		SDKLogLevel:               "warn",
		TraceBatchTimeoutSeconds:  1,
		MetricReadIntervalSeconds: 60,
	})
	require.NoError(t, err)

	assert.NoError(t, shutdown(context.Background()))
}

func TestHTTPTransport(t *testing.T) {
	base := http.DefaultTransport

	tests := []struct {
		name         string
		cfg          config.ObserveConfig
		instrumented bool
	}{
		{
			name: "telemetry disabled",
			cfg:  config.ObserveConfig{Enabled: false, HTTPTransportEnabled: true},
		},
		{
			name: "transport disabled",
			cfg:  config.ObserveConfig{Enabled: true, HTTPTransportEnabled: false},
		},
		{
			name:         "enabled",
			cfg:          config.ObserveConfig{Enabled: true, HTTPTransportEnabled: true},
			instrumented: true,
		},
		{
			name:         "enabled with connection trace",
			cfg:          config.ObserveConfig{Enabled: true, HTTPTransportEnabled: true, HTTPConnectionTraceEnabled: true},
			instrumented: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := observe.HTTPTransport(base, tt.cfg)

			if tt.instrumented {
				assert.IsType(t, &otelhttp.Transport{}, transport)
			} else {
				assert.Same(t, base, transport)
			}
		})
	}
}
