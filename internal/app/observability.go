package app

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/causalfractal/contextengine/internal/observe"
)

// initObservability sets up OpenTelemetry metrics and tracing and returns
// the application's Metrics instrument set alongside a shutdown function.
func initObservability(ctx context.Context) (*observe.Metrics, func(context.Context) error, error) {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: serviceName,
	})
	if err != nil {
		return nil, nil, err
	}
	return observe.DefaultMetrics(), shutdown, nil
}

// promMetricsHandler exposes the Prometheus exporter bridge registered by
// observe.InitProvider via the default Prometheus registry.
func promMetricsHandler() http.Handler {
	return promhttp.Handler()
}
