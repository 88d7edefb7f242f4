package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dingbot/internal/pkg/metrics"
)

func TestMetricsServer(t *testing.T) {
	m := metrics.New()
	m.ObserveNotification("ops", "text", "ok", 20*time.Millisecond)

	srv := newMetricsServer(":0", m)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`dingbot_notifications_total{msgtype="text",outcome="ok",robot="ops"} 1`,
		`dingbot_notification_duration_seconds_count{robot="ops"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unexpected route served: %v", rr.Code)
	}
}
