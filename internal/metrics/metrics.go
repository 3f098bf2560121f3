// Package metrics exposes Prometheus collectors for a sync run and pushes
// them to a Pushgateway when one is configured.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	registry *prometheus.Registry

	sourceRecordsTotal     *prometheus.CounterVec
	sourceFailuresTotal    *prometheus.CounterVec
	syncBatchesTotal       *prometheus.CounterVec
	syncRecordsTotal       *prometheus.CounterVec
	storeRequestsTotal     *prometheus.CounterVec
	storeRequestDuration   *prometheus.HistogramVec
	rateLimitDelaysSeconds *prometheus.HistogramVec
	runDurationSeconds     prometheus.Gauge
	runRecords             prometheus.Gauge
	runLastSuccess         prometheus.Gauge
	runsTotal              *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors on the package registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()
		factory := promauto.With(registry)

		sourceRecordsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursesync_source_records_total",
				Help: "Raw records extracted, labeled by source and site.",
			},
			[]string{"source", "site"},
		)

		sourceFailuresTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursesync_source_failures_total",
				Help: "Sources that escaped their extractor boundary, labeled by source and site.",
			},
			[]string{"source", "site"},
		)

		syncBatchesTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursesync_sync_batches_total",
				Help: "Store batches dispatched, labeled by phase and result.",
			},
			[]string{"phase", "result"},
		)

		syncRecordsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursesync_sync_records_total",
				Help: "Records acknowledged by the store, labeled by phase.",
			},
			[]string{"phase"},
		)

		storeRequestsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursesync_store_requests_total",
				Help: "HTTP requests sent to the store, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		storeRequestDuration = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursesync_store_request_duration_seconds",
				Help:    "Histogram of store request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		)

		rateLimitDelaysSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coursesync_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"host"},
		)

		runDurationSeconds = factory.NewGauge(prometheus.GaugeOpts{
			Name: "coursesync_run_duration_seconds",
			Help: "Wall time of the last run.",
		})

		runRecords = factory.NewGauge(prometheus.GaugeOpts{
			Name: "coursesync_run_records",
			Help: "Canonical records produced by the last run.",
		})

		runLastSuccess = factory.NewGauge(prometheus.GaugeOpts{
			Name: "coursesync_run_last_success_timestamp_seconds",
			Help: "Unix time the last run completed.",
		})

		runsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursesync_runs_total",
				Help: "Completed runs, labeled by sync mode.",
			},
			[]string{"mode"},
		)
	})
}

// Registry returns the package registry, initializing it if needed.
func Registry() *prometheus.Registry {
	Init()
	return registry
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveSource records one source's contribution. sourceURL is reduced to
// its hostname for the site label.
func ObserveSource(source, sourceURL string, records int, failed bool) {
	Init()
	site := SanitizeSite(sourceURL)
	sourceRecordsTotal.WithLabelValues(source, site).Add(float64(records))
	if failed {
		sourceFailuresTotal.WithLabelValues(source, site).Inc()
	}
}

// ObserveBatch records one store batch. phase is "delete" or "insert".
func ObserveBatch(phase string, records int, err error) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	syncBatchesTotal.WithLabelValues(phase, result).Inc()
	if err == nil {
		syncRecordsTotal.WithLabelValues(phase).Add(float64(records))
	}
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}

// ObserveRun records the end of a run.
func ObserveRun(mode string, records int, duration time.Duration, finished time.Time) {
	Init()
	runsTotal.WithLabelValues(mode).Inc()
	runRecords.Set(float64(records))
	runDurationSeconds.Set(duration.Seconds())
	runLastSuccess.Set(float64(finished.Unix()))
}

// InstrumentRoundTripper counts and times every request sent through next.
func InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	Init()
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(storeRequestsTotal,
		promhttp.InstrumentRoundTripperDuration(storeRequestDuration, next),
	)
}

// Push sends the registry to a Pushgateway under job.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if job == "" {
		job = "coursesync"
	}
	if err := push.New(gatewayURL, job).Gatherer(Registry()).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
