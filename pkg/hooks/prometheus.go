package hooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urlsentry/urlsentry/pkg/duration"
)

// Compile-time interface check.
var _ Hook = (*PrometheusHook)(nil)

// PrometheusHook exposes pipeline metrics for Prometheus scraping.
// It starts an HTTP server serving the metrics endpoint and keeps counters
// for scans and ingested verdicts, gauges for the feed and stats totals,
// and a histogram for classification latency.
type PrometheusHook struct {
	server   *http.Server
	registry *prometheus.Registry

	scansTotal    *prometheus.CounterVec
	verdictsTotal *prometheus.CounterVec
	policyTotal   *prometheus.CounterVec

	feedSize    prometheus.Gauge
	statsTotals *prometheus.GaugeVec

	scanLatency prometheus.Histogram
}

// PrometheusOptions configures the metrics endpoint.
type PrometheusOptions struct {
	// Addr is the listen address (default ":9090").
	Addr string

	// Path is the metrics endpoint path (default "/metrics").
	Path string
}

// NewPrometheusHook creates the hook and starts its metrics server.
// The server runs until Close is called.
func NewPrometheusHook(opts PrometheusOptions) (*PrometheusHook, error) {
	if opts.Addr == "" {
		opts.Addr = ":9090"
	}
	if opts.Path == "" {
		opts.Path = "/metrics"
	}

	registry := prometheus.NewRegistry()

	h := &PrometheusHook{
		registry: registry,
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urlsentry_scans_total",
			Help: "Scan attempts by outcome.",
		}, []string{"outcome"}),
		verdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urlsentry_verdicts_total",
			Help: "Ingested verdicts by classification and source channel.",
		}, []string{"classification", "channel"}),
		policyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urlsentry_policy_actions_total",
			Help: "Policy side effects by action.",
		}, []string{"action"}),
		feedSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "urlsentry_feed_size",
			Help: "Current number of feed entries.",
		}),
		statsTotals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "urlsentry_stats_count",
			Help: "Aggregate verdict counts by classification.",
		}, []string{"classification"}),
		scanLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "urlsentry_scan_latency_seconds",
			Help:    "Classification call latency distribution.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		h.scansTotal, h.verdictsTotal, h.policyTotal,
		h.feedSize, h.statsTotals, h.scanLatency,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("prometheus hook: registering collector: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle(opts.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	h.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      mux,
		ReadTimeout:  duration.HookShutdown,
		WriteTimeout: duration.HookTimeout,
	}

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Server failure only disables scraping; the pipeline keeps running.
			_ = err
		}
	}()

	return h, nil
}

// EventTypes returns the event types this hook records.
func (h *PrometheusHook) EventTypes() []EventType {
	return []EventType{EventTypeScan, EventTypeVerdict, EventTypePolicy, EventTypeFeed, EventTypeBaseline}
}

// OnEvent updates the metrics for one event.
func (h *PrometheusHook) OnEvent(_ context.Context, event Event) error {
	switch e := event.(type) {
	case ScanEvent:
		h.scansTotal.WithLabelValues(string(e.Outcome)).Inc()
		if e.Outcome == OutcomeCompleted {
			h.scanLatency.Observe(e.Latency.Seconds())
		}
	case VerdictEvent:
		h.verdictsTotal.WithLabelValues(string(e.Verdict.Classification), e.Verdict.Channel).Inc()
	case PolicyEvent:
		h.policyTotal.WithLabelValues(string(e.Action)).Inc()
	case FeedEvent:
		h.feedSize.Set(float64(e.Size))
		h.setStats(e.Stats.Safe, e.Stats.Suspicious, e.Stats.Malicious)
	case BaselineEvent:
		h.setStats(e.Stats.Safe, e.Stats.Suspicious, e.Stats.Malicious)
	}
	return nil
}

func (h *PrometheusHook) setStats(safe, suspicious, malicious int) {
	h.statsTotals.WithLabelValues("safe").Set(float64(safe))
	h.statsTotals.WithLabelValues("suspicious").Set(float64(suspicious))
	h.statsTotals.WithLabelValues("malicious").Set(float64(malicious))
}

// Registry exposes the hook's registry, mainly for tests.
func (h *PrometheusHook) Registry() *prometheus.Registry {
	return h.registry
}

// Close shuts the metrics server down gracefully.
func (h *PrometheusHook) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), duration.HookShutdown)
	defer cancel()
	return h.server.Shutdown(ctx)
}
