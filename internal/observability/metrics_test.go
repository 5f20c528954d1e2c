package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	m := NewMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rec.Code)
	}

	body := scrape(t, m)
	if !strings.Contains(body, `meridian_http_requests_total{code="418",route="/users"} 1`) {
		t.Fatalf("request counter missing from exposition:\n%s", body)
	}
	if !strings.Contains(body, "meridian_http_request_duration_seconds") {
		t.Fatal("duration histogram missing from exposition")
	}
}

func TestAuthzAndIsolationCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveAuthzDecision(true)
	m.ObserveAuthzDecision(false)
	m.ObserveAuthzDecision(false)
	m.ObserveIsolationRejection("cross_tenant")

	body := scrape(t, m)
	if !strings.Contains(body, `meridian_authz_decisions_total{outcome="allow"} 1`) {
		t.Fatalf("allow counter missing:\n%s", body)
	}
	if !strings.Contains(body, `meridian_authz_decisions_total{outcome="deny"} 2`) {
		t.Fatalf("deny counter missing:\n%s", body)
	}
	if !strings.Contains(body, `meridian_tenant_isolation_rejections_total{reason="cross_tenant"} 1`) {
		t.Fatalf("isolation counter missing:\n%s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAuthzDecision(true)
	m.ObserveIsolationRejection("forbidden")

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil handler status = %d, want 503", rec.Code)
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}
