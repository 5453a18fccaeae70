// Package metrics exposes console metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/visualmatch/console/internal/domain"
)

// Metrics holds the console's collectors on a private registry
type Metrics struct {
	registry       *prometheus.Registry
	searches       *prometheus.CounterVec
	searchDuration prometheus.Histogram
	toasts         *prometheus.CounterVec
	requests       *prometheus.CounterVec
	theme          *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visualmatch",
			Name:      "searches_total",
			Help:      "Image searches by outcome (ok, empty, error, canceled).",
		}, []string{"outcome"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "visualmatch",
			Name:      "search_duration_seconds",
			Help:      "Latency of image searches against the search API.",
			Buckets:   prometheus.DefBuckets,
		}),
		toasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visualmatch",
			Name:      "toasts_total",
			Help:      "Toasts shown to the user by kind.",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visualmatch",
			Name:      "http_requests_total",
			Help:      "Console HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		theme: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "visualmatch",
			Name:      "theme_applied",
			Help:      "1 for the color scheme currently applied, 0 otherwise.",
		}, []string{"theme"}),
	}

	registry.MustRegister(
		m.searches,
		m.searchDuration,
		m.toasts,
		m.requests,
		m.theme,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveSearch implements domain.SearchRecorder
func (m *Metrics) ObserveSearch(outcome string, duration time.Duration) {
	m.searches.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(duration.Seconds())
}

// ObserveToast implements domain.SearchRecorder
func (m *Metrics) ObserveToast(kind domain.ToastKind) {
	m.toasts.WithLabelValues(string(kind)).Inc()
}

// ObserveRequest counts one console HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// ApplyTheme marks theme as the applied color scheme
func (m *Metrics) ApplyTheme(theme domain.Theme) {
	for _, t := range []domain.Theme{domain.ThemeLight, domain.ThemeDark} {
		value := 0.0
		if t == theme {
			value = 1
		}
		m.theme.WithLabelValues(string(t)).Set(value)
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (for tests and extra collectors)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
