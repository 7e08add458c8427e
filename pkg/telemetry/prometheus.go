// Package telemetry provides the gateway's metrics: an OpenTelemetry meter
// provider backed by a Prometheus exporter, and the HTTP middleware that
// feeds it.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Config contains the metrics settings.
type Config struct {
	// EnableMetricsPath exposes the Prometheus scrape handler.
	EnableMetricsPath bool

	// IncludeRuntimeMetrics adds Go runtime and process collectors to the
	// registry alongside the gateway's own metrics.
	IncludeRuntimeMetrics bool
}

// NewReader creates a Prometheus-backed metric reader and the HTTP handler
// that serves the scrape endpoint.
func NewReader(config Config) (sdkmetric.Reader, http.Handler, error) {
	if !config.EnableMetricsPath {
		return nil, nil, fmt.Errorf("prometheus reader requires EnableMetricsPath")
	}

	registry := prometheus.NewRegistry()

	if config.IncludeRuntimeMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return exporter, handler, nil
}
