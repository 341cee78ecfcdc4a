package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/ingest"
	"github.com/riot-match-ingestor/internal/metrics"
)

// Run results recorded in metrics
const (
	resultCompleted   = "completed"
	resultWithErrors  = "completed_with_errors"
	resultInterrupted = "interrupted"
)

// RunLock serializes runs across processes
type RunLock interface {
	Acquire(ctx context.Context) (string, error)
	Release(ctx context.Context, token string) error
}

// RunHistory persists the statistics of the last run
type RunHistory interface {
	SaveLastRun(ctx context.Context, stats domain.RunStatistics) error
	LastRun(ctx context.Context) (domain.RunStatistics, error)
}

// EventPublisher receives run progress events
type EventPublisher interface {
	Publish(ctx context.Context, event domain.RunEvent) error
}

// Runner executes one ingestion run
type Runner interface {
	RunWithID(ctx context.Context, runID string) domain.RunStatistics
}

// Ingestion is the single entry point for triggering runs. At most one run is
// active per process, and per cluster when a RunLock is configured.
type Ingestion struct {
	runner     Runner
	lock       RunLock
	history    RunHistory
	publishers []EventPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	current string
	last    *domain.RunStatistics

	// background runs started by Trigger
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewIngestion creates a new ingestion service. lock and history may be nil.
func NewIngestion(runner Runner, lock RunLock, history RunHistory, m *metrics.Metrics, logger *slog.Logger) *Ingestion {
	ctx, cancel := context.WithCancel(context.Background())
	return &Ingestion{
		runner:  runner,
		lock:    lock,
		history: history,
		metrics: m,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// AddPublisher registers a publisher for run events
func (s *Ingestion) AddPublisher(p EventPublisher) {
	s.publishers = append(s.publishers, p)
}

// MatchIngested forwards committed matches to the publishers
func (s *Ingestion) MatchIngested(ctx context.Context, event domain.MatchIngested) {
	s.publish(ctx, domain.RunEvent{
		Type:      domain.EventMatchIngested,
		RunID:     event.RunID,
		Timestamp: time.Now().UTC(),
		Match:     &event,
	})
}

// Run executes a run synchronously and returns its statistics
func (s *Ingestion) Run(ctx context.Context) (domain.RunStatistics, error) {
	runID, release, err := s.begin(ctx)
	if err != nil {
		return domain.RunStatistics{}, err
	}
	defer release()
	return s.execute(ctx, runID), nil
}

// Trigger starts a run in the background and returns its run ID
func (s *Ingestion) Trigger(ctx context.Context) (string, error) {
	runID, release, err := s.begin(ctx)
	if err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		s.execute(s.baseCtx, runID)
	}()
	return runID, nil
}

// CurrentRun returns the ID of the active run, if any
func (s *Ingestion) CurrentRun() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != ""
}

// LastRun returns the statistics of the last finished run
func (s *Ingestion) LastRun(ctx context.Context) (domain.RunStatistics, error) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last != nil {
		return *last, nil
	}
	if s.history == nil {
		return domain.RunStatistics{}, domain.ErrNoRunRecorded
	}
	return s.history.LastRun(ctx)
}

// Shutdown cancels background runs and waits for them to return
func (s *Ingestion) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// begin claims the run slot. The returned release func frees it.
func (s *Ingestion) begin(ctx context.Context) (string, func(), error) {
	s.mu.Lock()
	if s.current != "" {
		s.mu.Unlock()
		return "", nil, domain.ErrRunInProgress
	}
	runID := uuid.NewString()
	s.current = runID
	s.mu.Unlock()

	free := func() {
		s.mu.Lock()
		s.current = ""
		s.mu.Unlock()
	}

	if s.lock == nil {
		return runID, free, nil
	}

	token, err := s.lock.Acquire(ctx)
	if err != nil {
		free()
		if errors.Is(err, domain.ErrRunInProgress) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("acquiring run lock: %w", err)
	}

	release := func() {
		// the run's own ctx may be gone by now
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(ctx, token); err != nil {
			s.logger.Error("failed to release run lock", "run_id", runID, "error", err)
		}
		free()
	}
	return runID, release, nil
}

func (s *Ingestion) execute(ctx context.Context, runID string) domain.RunStatistics {
	s.publish(ctx, domain.RunEvent{
		Type:      domain.EventRunStarted,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
	})

	stats := s.runner.RunWithID(ctx, runID)

	result := resultCompleted
	switch {
	case ctx.Err() != nil:
		result = resultInterrupted
	case stats.Errors > 0:
		result = resultWithErrors
	}
	s.metrics.ObserveRun(result, stats.Duration(), stats.FinishedAt)

	s.mu.Lock()
	s.last = &stats
	s.mu.Unlock()

	// persisted even when ctx was cancelled
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if s.history != nil {
		if err := s.history.SaveLastRun(saveCtx, stats); err != nil {
			s.logger.Error("failed to save run statistics", "run_id", runID, "error", err)
		}
	}

	s.publish(saveCtx, domain.RunEvent{
		Type:      domain.EventRunCompleted,
		RunID:     runID,
		Timestamp: stats.FinishedAt,
		Stats:     &stats,
	})
	return stats
}

// publish delivers an event to every publisher. Publish failures are logged
// and never affect the run.
func (s *Ingestion) publish(ctx context.Context, event domain.RunEvent) {
	for _, p := range s.publishers {
		if err := p.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish run event",
				"type", event.Type,
				"run_id", event.RunID,
				"error", err,
			)
		}
	}
}

var _ ingest.Observer = (*Ingestion)(nil)
