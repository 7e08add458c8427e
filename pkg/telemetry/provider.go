package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/scopegate/scopegate/pkg/versions"
)

// Provider bundles the meter provider with its scrape handler.
type Provider struct {
	meterProvider     *sdkmetric.MeterProvider
	prometheusHandler http.Handler
}

// NewProvider creates a meter provider backed by the Prometheus reader and
// registers it as the global OpenTelemetry meter provider.
func NewProvider(config Config) (*Provider, error) {
	reader, handler, err := NewReader(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric reader: %w", err)
	}

	res := resource.NewSchemaless(
		semconv.ServiceName("scopegate"),
		semconv.ServiceVersion(versions.Version),
	)

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(meterProvider)

	return &Provider{
		meterProvider:     meterProvider,
		prometheusHandler: handler,
	}, nil
}

// MeterProvider returns the underlying meter provider.
func (p *Provider) MeterProvider() *sdkmetric.MeterProvider {
	return p.meterProvider
}

// PrometheusHandler returns the scrape handler for the metrics route.
func (p *Provider) PrometheusHandler() http.Handler {
	return p.prometheusHandler
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}
