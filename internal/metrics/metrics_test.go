package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveAPIResponse(200)
	m.ObserveAPIResponse(200)
	m.ObserveAPIResponse(429)
	m.IncAPIRetry("rate_limited")
	m.IncMatch(OutcomeInserted)
	m.IncMatch(OutcomeSkipped)
	m.IncMatch(OutcomeSkipped)
	m.AddParticipants(10)
	m.IncPlayerError()

	if got := testutil.ToFloat64(m.apiRequests.WithLabelValues("200")); got != 2 {
		t.Errorf("200 responses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.apiRetries.WithLabelValues("rate_limited")); got != 1 {
		t.Errorf("rate limited retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.matches.WithLabelValues(OutcomeSkipped)); got != 2 {
		t.Errorf("skipped matches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.participantsInserted); got != 10 {
		t.Errorf("participants = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.playerErrors); got != 1 {
		t.Errorf("player errors = %v, want 1", got)
	}
}

func TestObserveRun(t *testing.T) {
	m := New()
	finished := time.Unix(1700000000, 0)
	m.ObserveRun("completed", 42*time.Second, finished)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.lastRunTimestamp); got != 1700000000 {
		t.Errorf("last run timestamp = %v", got)
	}
	if n := testutil.CollectAndCount(m.runDuration); n != 1 {
		t.Errorf("run duration series = %d, want 1", n)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveAPIResponse(500)
	m.IncAPIRetry("status")
	m.IncMatch(OutcomeFailed)
	m.AddParticipants(3)
	m.IncPlayerError()
	m.ObserveRun("interrupted", time.Second, time.Now())
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.IncMatch(OutcomeInserted)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `ingestor_matches_total{outcome="inserted"} 1`) {
		t.Errorf("metrics output missing match counter:\n%s", rec.Body.String())
	}
}
