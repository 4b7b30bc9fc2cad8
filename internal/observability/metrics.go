// Package observability wires the Prometheus registry and exposes it over HTTP.
// Error telemetry lives in the telemetry package.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry       *prometheus.Registry
	Identification *metrics.IdentificationMetrics
	HTTP           *metrics.HTTPMetrics
}

// NewMetrics creates a private registry with the pipeline, API, Go runtime
// and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("failed to register process collector: %w", err)
	}

	identification, err := metrics.NewIdentificationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create identification metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	return &Metrics{
		registry:       registry,
		Identification: identification,
		HTTP:           httpMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promErrorLogger{log: logger.Global().Module("metrics")},
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// promErrorLogger adapts Logger to promhttp.Logger.
type promErrorLogger struct {
	log logger.Logger
}

func (l promErrorLogger) Println(v ...any) {
	l.log.Error("Metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
