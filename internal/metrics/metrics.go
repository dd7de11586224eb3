// Package metrics provides Prometheus metrics collection for the ledger services.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "custody_ledger"

var (
	// Global metrics, stored in atomics so record functions are no-ops before Init
	ledgerOperationsTotal   atomic.Pointer[prometheus.CounterVec]
	ledgerOperationDuration atomic.Pointer[prometheus.HistogramVec]
	ledgerQueueDepth        atomic.Pointer[prometheus.Gauge]
	requestsTotal           atomic.Pointer[prometheus.CounterVec]
	requestDuration         atomic.Pointer[prometheus.HistogramVec]
	authFailuresTotal       atomic.Pointer[prometheus.CounterVec]
	relayPublishedTotal     atomic.Pointer[prometheus.CounterVec]
	relayCursor             atomic.Pointer[prometheus.GaugeVec]
)

// Init initializes all Prometheus metrics and registers them with the provided registry.
// This should be called once at application startup.
func Init(reg prometheus.Registerer, version string) error {
	ledgerOperationsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by operation and result",
		},
		[]string{"operation", "result"},
	)
	if err := reg.Register(ledgerOperationsVec); err != nil {
		return fmt.Errorf("failed to register ledgerOperationsTotal: %w", err)
	}

	ledgerDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger write latency in seconds, including queueing",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	if err := reg.Register(ledgerDurationVec); err != nil {
		return fmt.Errorf("failed to register ledgerOperationDuration: %w", err)
	}

	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "queue_depth",
			Help:      "Number of write operations waiting for the writer",
		},
	)
	if err := reg.Register(queueDepth); err != nil {
		return fmt.Errorf("failed to register ledgerQueueDepth: %w", err)
	}

	requestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestsTotalVec); err != nil {
		return fmt.Errorf("failed to register requestsTotal: %w", err)
	}

	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestDurationVec); err != nil {
		return fmt.Errorf("failed to register requestDuration: %w", err)
	}

	authFailuresVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "auth_failures_total",
			Help:      "Total number of authentication failures",
		},
		[]string{"reason"},
	)
	if err := reg.Register(authFailuresVec); err != nil {
		return fmt.Errorf("failed to register authFailuresTotal: %w", err)
	}

	relayPublishedVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Total number of notifications handed to a publisher by result",
		},
		[]string{"publisher", "result"},
	)
	if err := reg.Register(relayPublishedVec); err != nil {
		return fmt.Errorf("failed to register relayPublishedTotal: %w", err)
	}

	relayCursorVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "cursor",
			Help:      "Last notification cursor delivered by a relay",
		},
		[]string{"relay"},
	)
	if err := reg.Register(relayCursorVec); err != nil {
		return fmt.Errorf("failed to register relayCursor: %w", err)
	}

	infoGaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Build information",
		},
		[]string{"version"},
	)
	if err := reg.Register(infoGaugeVec); err != nil {
		return fmt.Errorf("failed to register infoGauge: %w", err)
	}
	infoGaugeVec.WithLabelValues(version).Set(1)

	ledgerOperationsTotal.Store(ledgerOperationsVec)
	ledgerOperationDuration.Store(ledgerDurationVec)
	ledgerQueueDepth.Store(&queueDepth)
	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	authFailuresTotal.Store(authFailuresVec)
	relayPublishedTotal.Store(relayPublishedVec)
	relayCursor.Store(relayCursorVec)

	return nil
}

// RecordLedgerOperation counts a ledger operation outcome and its latency
func RecordLedgerOperation(operation, result string, durationSeconds float64) {
	if counter := ledgerOperationsTotal.Load(); counter != nil {
		counter.WithLabelValues(operation, result).Inc()
	}
	if histogram := ledgerOperationDuration.Load(); histogram != nil {
		histogram.WithLabelValues(operation).Observe(durationSeconds)
	}
}

// AddLedgerQueueDepth adjusts the writer queue gauge by delta
func AddLedgerQueueDepth(delta float64) {
	if gauge := ledgerQueueDepth.Load(); gauge != nil {
		(*gauge).Add(delta)
	}
}

// RecordRequest increments the requests counter and observes the latency of a request.
// The path should be the route template (e.g., "/api/v1/tokens/:id").
func RecordRequest(method, path, statusCode string, durationSeconds float64) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordAuthFailure increments the auth failures counter for the given reason
func RecordAuthFailure(reason string) {
	if counter := authFailuresTotal.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// RecordRelayPublish counts a notification handed to a publisher
func RecordRelayPublish(publisher, result string) {
	if counter := relayPublishedTotal.Load(); counter != nil {
		counter.WithLabelValues(publisher, result).Inc()
	}
}

// SetRelayCursor records the last delivered cursor of a relay
func SetRelayCursor(relay string, cursor uint64) {
	if gauge := relayCursor.Load(); gauge != nil {
		gauge.WithLabelValues(relay).Set(float64(cursor))
	}
}

// Handler returns an HTTP handler serving the gatherer's metrics in text format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// GetMetricsText returns the Prometheus text-format output from a registry.
// This is useful for testing and debugging.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler(reg).ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}

	return string(body), nil
}
