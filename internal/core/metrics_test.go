package core

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"simplenotes/internal/types"
)

func TestMetrics_RecordReconcile(t *testing.T) {
	m := NewMetrics()
	m.RecordReconcile(types.TriggerWebhook, "success")
	m.RecordReconcile(types.TriggerWebhook, "success")
	m.RecordReconcile(types.TriggerSweep, "failure")

	if got := testutil.ToFloat64(m.reconciles.WithLabelValues("webhook", "success")); got != 2 {
		t.Errorf("webhook/success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.reconciles.WithLabelValues("sweep", "failure")); got != 1 {
		t.Errorf("sweep/failure = %v, want 1", got)
	}
}

func TestMetrics_RecordQuotaDenial(t *testing.T) {
	m := NewMetrics()
	m.RecordQuotaDenial("free")

	if got := testutil.ToFloat64(m.quotaDenials.WithLabelValues("free")); got != 1 {
		t.Errorf("free denials = %v, want 1", got)
	}
}

func TestMetrics_HandlerExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest(http.MethodGet, "/v1/notes", "200", 15*time.Millisecond)
	m.RecordQuotaDenial("free")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`http_requests_total{method="GET",route="/v1/notes",status="200"} 1`,
		`quota_denials_total{plan="free"} 1`,
		"http_request_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
