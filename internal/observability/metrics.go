package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and settlement worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	ordersSettledTotal       *prometheus.CounterVec
	settlementFailedTotal    *prometheus.CounterVec
	settlementCallDuration   *prometheus.HistogramVec
	settlementRetryTotal     *prometheus.CounterVec
	workerInflight           *prometheus.GaugeVec
	batchTransitionsTotal    *prometheus.CounterVec
	creditsIssuedTotal       *prometheus.CounterVec
	creditsConsumedTotal     prometheus.Counter
	errandsCompletedTotal    prometheus.Counter
	withdrawalRequestedTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "settlement_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ordersSettledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement_engine",
				Name:      "orders_settled_total",
				Help:      "Total number of orders settled, grouped by action (capture, refund).",
			},
			[]string{"action"},
		),
		settlementFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement_engine",
				Name:      "settlement_failed_total",
				Help:      "Total number of settlement tasks that ended in failed state.",
			},
			[]string{"action", "reason"},
		),
		settlementCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "settlement_engine",
				Name:      "settlement_call_duration_seconds",
				Help:      "Payment processor call duration in seconds grouped by action.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"action"},
		),
		settlementRetryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement_engine",
				Name:      "settlement_retry_scheduled_total",
				Help:      "Total number of settlement tasks scheduled for retry.",
			},
			[]string{"action"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "settlement_engine",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight settlement operations grouped by action.",
			},
			[]string{"action"},
		),
		batchTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement_engine",
				Name:      "batch_transitions_total",
				Help:      "Total number of batch status transitions by target status.",
			},
			[]string{"status"},
		),
		creditsIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "settlement_engine",
				Name:      "credits_issued_total",
				Help:      "Total number of credit entries issued by source.",
			},
			[]string{"source"},
		),
		creditsConsumedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "settlement_engine",
				Name:      "credits_consumed_total",
				Help:      "Total number of credit entries consumed against orders.",
			},
		),
		errandsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "settlement_engine",
				Name:      "errands_completed_total",
				Help:      "Total number of errands that reached completed state.",
			},
		),
		withdrawalRequestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "settlement_engine",
				Name:      "withdrawals_requested_total",
				Help:      "Total number of withdrawal requests recorded.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.ordersSettledTotal,
		m.settlementFailedTotal,
		m.settlementCallDuration,
		m.settlementRetryTotal,
		m.workerInflight,
		m.batchTransitionsTotal,
		m.creditsIssuedTotal,
		m.creditsConsumedTotal,
		m.errandsCompletedTotal,
		m.withdrawalRequestedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncOrderSettled(action string) {
	if m == nil {
		return
	}
	m.ordersSettledTotal.WithLabelValues(normalizeLabel(action)).Inc()
}

func (m *Metrics) IncSettlementFailed(action string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.settlementFailedTotal.WithLabelValues(normalizeLabel(action), reasonLabel).Inc()
}

func (m *Metrics) ObserveSettlementCallDuration(action string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.settlementCallDuration.WithLabelValues(normalizeLabel(action)).Observe(seconds)
}

func (m *Metrics) IncSettlementRetryScheduled(action string) {
	if m == nil {
		return
	}
	m.settlementRetryTotal.WithLabelValues(normalizeLabel(action)).Inc()
}

func (m *Metrics) IncWorkerInFlight(action string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(action)).Inc()
}

func (m *Metrics) DecWorkerInFlight(action string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(action)).Dec()
}

func (m *Metrics) IncBatchTransition(status string) {
	if m == nil {
		return
	}
	m.batchTransitionsTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) IncCreditsIssued(source string) {
	if m == nil {
		return
	}
	m.creditsIssuedTotal.WithLabelValues(normalizeLabel(source)).Inc()
}

func (m *Metrics) IncCreditsConsumed() {
	if m == nil {
		return
	}
	m.creditsConsumedTotal.Inc()
}

func (m *Metrics) IncErrandCompleted() {
	if m == nil {
		return
	}
	m.errandsCompletedTotal.Inc()
}

func (m *Metrics) IncWithdrawalRequested() {
	if m == nil {
		return
	}
	m.withdrawalRequestedTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
