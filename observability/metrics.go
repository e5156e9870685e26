package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	chainMetricsOnce sync.Once
	chainRegistry    *ChainMetrics

	loanMetricsOnce sync.Once
	loanRegistry    *LoanMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// JSON-RPC method activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanchain",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanchain",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "loanchain",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanchain",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a JSON-RPC call. code is zero on success.
func (m *moduleMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards remain consistent.
func (m *moduleMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// ChainMetrics tracks transaction execution in the chain runtime.
type ChainMetrics struct {
	txs     *prometheus.CounterVec
	reverts *prometheus.CounterVec
	latency prometheus.Histogram
	height  prometheus.Gauge
	events  *prometheus.CounterVec
}

// Chain returns the singleton chain metrics registry.
func Chain() *ChainMetrics {
	chainMetricsOnce.Do(func() {
		chainRegistry = &ChainMetrics{
			txs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanchain",
				Subsystem: "chain",
				Name:      "transactions_total",
				Help:      "Count of executed transactions segmented by status.",
			}, []string{"status"}),
			reverts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanchain",
				Subsystem: "chain",
				Name:      "reverts_total",
				Help:      "Count of reverted transactions segmented by revert reason.",
			}, []string{"reason"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "loanchain",
				Subsystem: "chain",
				Name:      "transaction_duration_seconds",
				Help:      "Latency distribution for transaction execution and commit.",
				Buckets:   prometheus.DefBuckets,
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "loanchain",
				Subsystem: "chain",
				Name:      "height",
				Help:      "Number of the latest mined block.",
			}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanchain",
				Subsystem: "chain",
				Name:      "events_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			chainRegistry.txs,
			chainRegistry.reverts,
			chainRegistry.latency,
			chainRegistry.height,
			chainRegistry.events,
		)
	})
	return chainRegistry
}

// ObserveTransaction records a mined transaction. reason is ignored for
// successful transactions.
func (m *ChainMetrics) ObserveTransaction(success bool, reason string, height uint64, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "reverted"
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "unknown"
		}
		m.reverts.WithLabelValues(reason).Inc()
	}
	m.txs.WithLabelValues(status).Inc()
	m.latency.Observe(duration.Seconds())
	m.height.Set(float64(height))
}

// RecordEvent increments the committed event counter.
func (m *ChainMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

// LoanMetrics tracks the loan book as seen by the indexer.
type LoanMetrics struct {
	opened  prometheus.Counter
	closed  prometheus.Counter
	open    prometheus.Gauge
	indexed *prometheus.CounterVec
	lag     prometheus.Gauge
}

// Loans returns the singleton loan metrics registry.
func Loans() *LoanMetrics {
	loanMetricsOnce.Do(func() {
		loanRegistry = &LoanMetrics{
			opened: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "loanchain",
				Subsystem: "loan",
				Name:      "opened_total",
				Help:      "Count of loans opened.",
			}),
			closed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "loanchain",
				Subsystem: "loan",
				Name:      "closed_total",
				Help:      "Count of loans fully repaid.",
			}),
			open: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "loanchain",
				Subsystem: "loan",
				Name:      "open",
				Help:      "Number of loans currently outstanding.",
			}),
			indexed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "loanchain",
				Subsystem: "indexer",
				Name:      "rows_total",
				Help:      "Count of event rows written by the indexer segmented by outcome.",
			}, []string{"outcome"}),
			lag: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "loanchain",
				Subsystem: "indexer",
				Name:      "last_block",
				Help:      "Block number of the most recently indexed event.",
			}),
		}
		prometheus.MustRegister(
			loanRegistry.opened,
			loanRegistry.closed,
			loanRegistry.open,
			loanRegistry.indexed,
			loanRegistry.lag,
		)
	})
	return loanRegistry
}

// RecordOpened counts a newly opened loan.
func (m *LoanMetrics) RecordOpened() {
	if m == nil {
		return
	}
	m.opened.Inc()
	m.open.Inc()
}

// RecordClosed counts a fully repaid loan.
func (m *LoanMetrics) RecordClosed() {
	if m == nil {
		return
	}
	m.closed.Inc()
	m.open.Dec()
}

// SetOpen overwrites the open loan gauge, e.g. after rebuilding from storage.
func (m *LoanMetrics) SetOpen(count int) {
	if m == nil {
		return
	}
	m.open.Set(float64(count))
}

// RecordIndexed records the outcome of persisting an event row.
func (m *LoanMetrics) RecordIndexed(block uint64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.indexed.WithLabelValues("error").Inc()
		return
	}
	m.indexed.WithLabelValues("success").Inc()
	m.lag.Set(float64(block))
}
