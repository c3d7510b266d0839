package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Create a custom registry
var registry = prometheus.NewRegistry()

// Create a registerer that uses our registry
var registerer = prometheus.WrapRegistererWith(nil, registry)

// Reload results
const (
	ReloadSuccess   = "success"
	ReloadUnchanged = "unchanged"
	ReloadError     = "error"
)

var (
	// Latency buckets in milliseconds
	latencyBuckets = []float64{
		5, 10, 25,
		50, 100, 250,
		500, 1000, 2500,
		5000, 10000, 30000,
	}

	RequestTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "devproxy_requests_total",
			Help: "Total number of requests served by the dev server",
		},
		[]string{"method", "status"},
	)

	RequestLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devproxy_latency_ms",
			Help:    "Request latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"type"}, // "total" or "upstream"
	)

	ProxyRequestTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "devproxy_proxy_requests_total",
			Help: "Requests forwarded by a proxy rule",
		},
		[]string{"context", "method", "status"},
	)

	UpstreamLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devproxy_upstream_latency_ms",
			Help:    "Upstream latency in milliseconds by route context",
			Buckets: latencyBuckets,
		},
		[]string{"context"},
	)

	ReloadTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "devproxy_reloads_total",
			Help: "Proxy config reloads by result",
		},
		[]string{"result"},
	)

	RoutesActive = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "devproxy_routes_active",
			Help: "Number of proxy rules currently installed",
		},
	)

	WatchedFiles = promauto.With(registerer).NewGauge(
		prometheus.GaugeOpts{
			Name: "devproxy_watched_files",
			Help: "Number of config files being watched",
		},
	)
)

// MetricsConfig holds configuration for which metrics to enable
type MetricsConfig struct {
	EnableLatency        bool // Request latency histograms
	EnableDetailedStatus bool // Detailed status codes (vs. status classes)
}

// DefaultMetricsConfig returns default metrics configuration with safe defaults
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		EnableLatency:        true,
		EnableDetailedStatus: false,
	}
}

// Config holds the current metrics configuration
var Config = DefaultMetricsConfig()

// Initialize registers the process collectors
func Initialize(cfg MetricsConfig) {
	Config = cfg
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler serves the metrics registry
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// GetStatusClass returns either the specific status code or its class (e.g., "2xx")
func GetStatusClass(status int) string {
	if !Config.EnableDetailedStatus {
		return fmt.Sprintf("%dxx", status/100)
	}
	return strconv.Itoa(status)
}
