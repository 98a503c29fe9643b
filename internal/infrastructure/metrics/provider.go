package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Exporter owns the meter provider that feeds a private Prometheus registry.
type Exporter struct {
	registry *prometheus.Registry
	provider *metric.MeterProvider
}

// NewExporter sets up an OTel meter provider whose readings are served by
// Handler in the Prometheus text format.
func NewExporter() (*Exporter, error) {
	registry := prometheus.NewRegistry()

	exp, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}

	return &Exporter{
		registry: registry,
		provider: metric.NewMeterProvider(metric.WithReader(exp)),
	}, nil
}

// Relay creates the relay instruments on the exporter's provider.
func (e *Exporter) Relay() (*Relay, error) {
	return New(e.provider)
}

// Handler serves the collected metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}
