package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookflow/config"
	"bookflow/internal/metrics"
	"bookflow/live"
	"bookflow/logger"
)

func TestMetricsEndpointEmitsStoredMetrics(t *testing.T) {
	log := logger.GetLogger()
	srv, err := NewServer(config.DashboardConfig{Enabled: true, RefreshInterval: time.Second, MetricsHistory: 10, LogHistory: 10}, log)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	if srv == nil {
		t.Fatal("expected non-nil server")
	}
	t.Cleanup(srv.cleanup)

	metrics.EmitMetric(log, "component", "raw_buffer_length", 5, "gauge", logger.Fields{"capacity": 10})

	router, err := srv.buildRouter("app")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}
	if len(srv.metricStore.snapshot()) == 0 {
		t.Fatalf("metrics store empty")
	}
}

func TestBooksEndpointReportsStatuses(t *testing.T) {
	log := logger.GetLogger()
	srv, err := NewServer(config.DashboardConfig{Enabled: true, RefreshInterval: time.Second}, log)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	t.Cleanup(srv.cleanup)

	srv.SetBooks(func() []live.BookStatus {
		return []live.BookStatus{{ProductID: "BTC-USD", State: "synced", Sequence: 42}}
	})

	router, err := srv.buildRouter("app")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}

	var body struct {
		Books []live.BookStatus `json:"books"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Books) != 1 || body.Books[0].ProductID != "BTC-USD" || body.Books[0].Sequence != 42 {
		t.Fatalf("unexpected books payload: %+v", body.Books)
	}
}
