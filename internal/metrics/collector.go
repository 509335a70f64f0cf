// Package metrics exposes Prometheus instrumentation for the proxy.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "nimbridge"

// Request modes used as label values.
const (
	ModeBuffered  = "buffered"
	ModeStreaming = "streaming"
)

// Collector owns the proxy metrics and the registry they are registered in.
// All methods are safe on a nil Collector, which records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	streamFrames     *prometheus.CounterVec
	disconnects      prometheus.Counter
}

// NewCollector creates a collector. If registry is nil a fresh one is used,
// so independent collectors never share state.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Chat completion requests by mode and response status.",
		}, []string{"mode", "status"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Time until the upstream response completed or the stream ended.",
			// LLM latencies range from sub-second to minutes
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"mode"}),
		streamFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stream_frames_total",
			Help:      "Upstream stream frames relayed, by kind.",
		}, []string{"kind"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stream_disconnects_total",
			Help:      "Streams aborted because the client went away.",
		}),
	}

	registry.MustRegister(c.requests, c.upstreamDuration, c.streamFrames, c.disconnects)
	return c
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRequest counts a finished request with the HTTP status sent to the client.
func (c *Collector) RecordRequest(mode string, status int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(mode, strconv.Itoa(status)).Inc()
}

// ObserveUpstream records how long an upstream exchange took.
func (c *Collector) ObserveUpstream(mode string, d time.Duration) {
	if c == nil {
		return
	}
	c.upstreamDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordFrame counts one relayed stream frame of the given kind.
func (c *Collector) RecordFrame(kind string) {
	if c == nil {
		return
	}
	c.streamFrames.WithLabelValues(kind).Inc()
}

// RecordDisconnect counts a stream abandoned by the client.
func (c *Collector) RecordDisconnect() {
	if c == nil {
		return
	}
	c.disconnects.Inc()
}

// Handler returns an HTTP handler serving the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
