package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.IncRunCompleted("done")
	m.IncRunCompleted("done")
	m.IncRunCompleted("failed")
	m.IncStageFailure("uploading")
	m.IncLowConfidence("token")

	if got := testutil.ToFloat64(m.RunsCompleted.WithLabelValues("done")); got != 2 {
		t.Errorf("done runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("uploading")); got != 1 {
		t.Errorf("upload failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.LowConfidenceIDs.WithLabelValues("token")); got != 1 {
		t.Errorf("low confidence = %v, want 1", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}
