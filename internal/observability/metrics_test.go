package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsSettlementCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncOrderSettled("CAPTURE")
	metrics.IncSettlementFailed("capture", "retry_exhausted")
	metrics.ObserveSettlementCallDuration("capture", 120*time.Millisecond)
	metrics.IncWorkerInFlight("capture")
	metrics.DecWorkerInFlight("capture")
	metrics.IncSettlementRetryScheduled("capture")
	metrics.IncBatchTransition("SUCCESSFUL")
	metrics.IncCreditsIssued("errand_completion")
	metrics.IncCreditsConsumed()

	if got := testutil.ToFloat64(metrics.ordersSettledTotal.WithLabelValues("capture")); got != 1 {
		t.Fatalf("orders_settled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.settlementFailedTotal.WithLabelValues("capture", "retry_exhausted")); got != 1 {
		t.Fatalf("settlement_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.settlementRetryTotal.WithLabelValues("capture")); got != 1 {
		t.Fatalf("settlement_retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight.WithLabelValues("capture")); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.batchTransitionsTotal.WithLabelValues("successful")); got != 1 {
		t.Fatalf("batch_transitions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.creditsIssuedTotal.WithLabelValues("errand_completion")); got != 1 {
		t.Fatalf("credits_issued_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.creditsConsumedTotal); got != 1 {
		t.Fatalf("credits_consumed_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
