// Package telemetry wires OpenTelemetry metrics to a Prometheus scrape
// endpoint. The daemon exposes metrics over the ops HTTP listener; no
// push exporter is involved.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config controls metrics collection.
type Config struct {
	// Enabled turns the meter provider on. When false, the global meter
	// provider stays a no-op and Handler serves an empty registry.
	Enabled bool `koanf:"enabled"`

	// ServiceName tags all exported metrics. Defaults to boundaryd.
	ServiceName string `koanf:"service_name"`

	// ServiceVersion tags all exported metrics.
	ServiceVersion string `koanf:"service_version"`
}

// Provider owns the meter provider and the Prometheus registry backing
// the scrape endpoint.
type Provider struct {
	meterProvider *metric.MeterProvider
	registry      *prometheus.Registry
}

// Setup builds the meter provider and installs it as the OTel global.
func Setup(cfg Config) (*Provider, error) {
	registry := prometheus.NewRegistry()
	p := &Provider{registry: registry}
	if !cfg.Enabled {
		return p, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "boundaryd"
	}

	// Standalone resource to avoid schema URL conflicts with
	// resource.Default(), which pins a different semconv version.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	p.meterProvider = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(exporter),
	)
	otel.SetMeterProvider(p.meterProvider)
	return p, nil
}

// Handler serves the Prometheus scrape endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
