package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Match outcomes
const (
	OutcomeInserted = "inserted"
	OutcomeSkipped  = "skipped"
	OutcomeMissing  = "missing"
	OutcomeFailed   = "failed"
)

// Metrics bundles Prometheus collectors for the ingestor.
type Metrics struct {
	registry             *prometheus.Registry
	apiRequests          *prometheus.CounterVec
	apiRetries           *prometheus.CounterVec
	matches              *prometheus.CounterVec
	participantsInserted prometheus.Counter
	playerErrors         prometheus.Counter
	runs                 *prometheus.CounterVec
	runDuration          prometheus.Histogram
	lastRunTimestamp     prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "riot_requests_total",
			Help:      "Riot API responses by HTTP status (0 for transport errors)",
		}, []string{"status"}),
		apiRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "riot_retries_total",
			Help:      "Riot API retries by reason",
		}, []string{"reason"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "matches_total",
			Help:      "Discovered matches by outcome",
		}, []string{"outcome"}),
		participantsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "participants_inserted_total",
			Help:      "Participant rows committed",
		}),
		playerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "player_errors_total",
			Help:      "Tracked players that could not be resolved or listed",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "runs_total",
			Help:      "Ingestion runs by result",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ingestor",
			Name:      "run_duration_seconds",
			Help:      "Wall time of ingestion runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ingestor",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}

	registry.MustRegister(
		m.apiRequests,
		m.apiRetries,
		m.matches,
		m.participantsInserted,
		m.playerErrors,
		m.runs,
		m.runDuration,
		m.lastRunTimestamp,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAPIResponse counts a Riot API response by status.
func (m *Metrics) ObserveAPIResponse(status int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// IncAPIRetry counts a retry scheduled for reason.
func (m *Metrics) IncAPIRetry(reason string) {
	if m == nil {
		return
	}
	m.apiRetries.WithLabelValues(reason).Inc()
}

// IncMatch counts a discovered match by outcome.
func (m *Metrics) IncMatch(outcome string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(outcome).Inc()
}

// AddParticipants counts committed participant rows.
func (m *Metrics) AddParticipants(n int) {
	if m == nil {
		return
	}
	m.participantsInserted.Add(float64(n))
}

// IncPlayerError counts a player-level failure.
func (m *Metrics) IncPlayerError() {
	if m == nil {
		return
	}
	m.playerErrors.Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(result string, dur time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(dur.Seconds())
	m.lastRunTimestamp.Set(float64(finished.Unix()))
}
