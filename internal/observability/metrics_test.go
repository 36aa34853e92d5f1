package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-console/internal/listsync"
)

var _ listsync.Observer = (*Metrics)(nil)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.LoadingGauge().Set(2)

	body := scrape(t, metrics)
	if !strings.Contains(body, "odyssey_console_loading_active 2") {
		t.Fatalf("expected body to contain loading gauge, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestMetricsObserveListFetches(t *testing.T) {
	metrics := NewMetrics()

	metrics.FetchIssued("/admin/orders")
	metrics.FetchIssued("/admin/orders")
	metrics.FetchSettled("/admin/orders", listsync.OutcomeApplied, 120*time.Millisecond)

	body := scrape(t, metrics)
	if !strings.Contains(body, `odyssey_console_list_fetch_total{outcome="applied",resource="/admin/orders"} 1`) {
		t.Fatalf("expected applied fetch counter, got: %s", body)
	}
	if !strings.Contains(body, `odyssey_console_list_fetch_in_flight{resource="/admin/orders"} 1`) {
		t.Fatalf("expected one fetch in flight, got: %s", body)
	}
	if !strings.Contains(body, `odyssey_console_list_fetch_duration_seconds_count{resource="/admin/orders"} 1`) {
		t.Fatalf("expected fetch duration sample, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.FetchIssued("x")
	metrics.FetchSettled("x", listsync.OutcomeFailed, time.Second)
	if metrics.LoadingGauge() != nil {
		t.Fatal("expected nil gauge")
	}

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
