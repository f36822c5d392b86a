package observability

import (
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	// None of these may panic on a nil receiver
	m.RecordAuditWrite("create", "notes.Note")
	m.RecordAuditWriteFailure("notes.Note")
	m.RecordCleanup("execute", 10, nil)
	m.RecordArchived(3)
	m.RecordCacheLookup("stats", true)
	m.UpdateDBStats(sql.DBStats{})

	handler := HTTPMetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusTeapot {
		t.Errorf("Expected status %d, got %d", http.StatusTeapot, rr.Code)
	}
}

func TestMetrics_Audit(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordAuditWrite("create", "notes.Note")
	m.RecordAuditWrite("create", "notes.Note")
	m.RecordAuditWrite("update", "notes.Note")
	m.RecordAuditWriteFailure("users.CustomUser")

	if got := testutil.ToFloat64(m.AuditRecordsTotal.WithLabelValues("create", "notes.Note")); got != 2 {
		t.Errorf("create records = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AuditWriteFailuresTotal.WithLabelValues("users.CustomUser")); got != 1 {
		t.Errorf("write failures = %v, want 1", got)
	}

	m.RecordCleanup("execute", 5, nil)
	m.RecordCleanup("execute", 0, errors.New("boom"))
	m.RecordCleanup("preview", 0, nil)
	m.RecordArchived(5)

	if got := testutil.ToFloat64(m.AuditCleanupDeletedTotal); got != 5 {
		t.Errorf("cleanup deleted = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.AuditCleanupRunsTotal.WithLabelValues("execute", "error")); got != 1 {
		t.Errorf("failed cleanup runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AuditArchivedTotal); got != 5 {
		t.Errorf("archived = %v, want 5", got)
	}

	m.RecordCacheLookup("stats", true)
	m.RecordCacheLookup("stats", false)
	m.RecordCacheLookup("stats", false)
	if got := testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("stats")); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}

	m.UpdateDBStats(sql.DBStats{InUse: 3, Idle: 2})
	if got := testutil.ToFloat64(m.DBConnectionsActive); got != 3 {
		t.Errorf("active connections = %v, want 3", got)
	}
}

func TestHTTPMetricsMiddleware_RouteTemplate(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/api/notes/{id}/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)
	RegisterMetricsEndpoint(router, registry)

	for _, id := range []string{"1", "2"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest("DELETE", "/api/notes/"+id+"/", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("Expected status %d, got %d", http.StatusNoContent, rr.Code)
		}
	}

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("DELETE", "/api/notes/{id}/", "204")); got != 2 {
		t.Errorf("requests for route template = %v, want 2", got)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "myinner_http_requests_total") {
		t.Error("metrics endpoint should expose myinner_http_requests_total")
	}
}
