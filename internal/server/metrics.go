package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Generations  *prometheus.CounterVec
	Warnings     *prometheus.CounterVec
	OutputBytes  prometheus.Histogram
	Duration     prometheus.Histogram
	Validations  *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edidgen_generations_total",
			Help: "EDID generations by resolved HDMI version",
		}, []string{"hdmi_version"}),
		Warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edidgen_warnings_total",
			Help: "Generation warnings by category",
		}, []string{"category"}),
		OutputBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "edidgen_output_bytes",
			Help:    "Size of generated EDID blobs",
			Buckets: prometheus.LinearBuckets(128, 128, 8),
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "edidgen_generation_seconds",
			Help:    "Time spent generating one EDID",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		Validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edidgen_validations_total",
			Help: "Validation requests by outcome",
		}, []string{"result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edidgen_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WarningCategory buckets a warning string for the warnings counter.
func WarningCategory(w string) string {
	switch {
	case strings.HasPrefix(w, "Duplicate mode"):
		return "duplicate"
	case strings.HasPrefix(w, "VRR"):
		return "vrr"
	case strings.Contains(w, "4:2:0"), strings.Contains(w, "DSC"):
		return "bandwidth"
	case strings.HasPrefix(w, "Default mode"):
		return "fallback"
	case strings.HasPrefix(w, "Display range"):
		return "range"
	case strings.HasPrefix(w, "CTA"), strings.HasPrefix(w, "DisplayID"), strings.HasPrefix(w, "Some modes couldn't"):
		return "capacity"
	}
	return "validation"
}
