package domain

import "time"

// RunStatistics aggregates the counters of one ingestion run
type RunStatistics struct {
	RunID                string    `json:"run_id"`
	StartedAt            time.Time `json:"started_at"`
	FinishedAt           time.Time `json:"finished_at"`
	PlayersProcessed     int       `json:"players_processed"`
	MatchesFound         int       `json:"matches_found"`
	MatchesInserted      int       `json:"matches_inserted"`
	MatchesSkipped       int       `json:"matches_skipped"`
	ParticipantsInserted int       `json:"participants_inserted"`
	Errors               int       `json:"errors"`
}

// Duration returns the wall time of the run
func (s RunStatistics) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// EventType names a run progress event
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventMatchIngested EventType = "match_ingested"
	EventRunCompleted  EventType = "run_completed"
)

// RunEvent is published to Kafka and websocket subscribers while a run
// progresses. Match is set for match_ingested, Stats for run_completed.
type RunEvent struct {
	Type      EventType      `json:"type"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	Match     *MatchIngested `json:"match,omitempty"`
	Stats     *RunStatistics `json:"stats,omitempty"`
}
