package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingRunner returns fixed stats, optionally waiting on release first
type blockingRunner struct {
	started chan string
	release chan struct{}
	stats   domain.RunStatistics
}

func (r *blockingRunner) RunWithID(ctx context.Context, runID string) domain.RunStatistics {
	if r.started != nil {
		r.started <- runID
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
		}
	}
	stats := r.stats
	stats.RunID = runID
	stats.StartedAt = time.Now().UTC()
	stats.FinishedAt = stats.StartedAt
	return stats
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RunEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e domain.RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeLock struct {
	held     bool
	err      error
	released int
}

func (l *fakeLock) Acquire(ctx context.Context) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	if l.held {
		return "", domain.ErrRunInProgress
	}
	l.held = true
	return "token", nil
}

func (l *fakeLock) Release(ctx context.Context, token string) error {
	l.held = false
	l.released++
	return nil
}

type memHistory struct {
	last *domain.RunStatistics
}

func (h *memHistory) SaveLastRun(ctx context.Context, s domain.RunStatistics) error {
	h.last = &s
	return nil
}

func (h *memHistory) LastRun(ctx context.Context) (domain.RunStatistics, error) {
	if h.last == nil {
		return domain.RunStatistics{}, domain.ErrNoRunRecorded
	}
	return *h.last, nil
}

func TestRunPublishesLifecycle(t *testing.T) {
	runner := &blockingRunner{stats: domain.RunStatistics{MatchesInserted: 1, ParticipantsInserted: 10}}
	lock := &fakeLock{}
	history := &memHistory{}
	pub := &recordingPublisher{err: errors.New("broker down")}

	s := NewIngestion(runner, lock, history, metrics.New(), discardLogger())
	s.AddPublisher(pub)

	stats, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.RunID == "" || stats.ParticipantsInserted != 10 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	types := pub.types()
	if len(types) != 2 || types[0] != domain.EventRunStarted || types[1] != domain.EventRunCompleted {
		t.Fatalf("events = %v", types)
	}
	if lock.held || lock.released != 1 {
		t.Fatalf("lock not released: %+v", lock)
	}
	if history.last == nil || history.last.RunID != stats.RunID {
		t.Fatalf("run not saved to history")
	}

	last, err := s.LastRun(context.Background())
	if err != nil || last.RunID != stats.RunID {
		t.Fatalf("LastRun = %+v, %v", last, err)
	}
	if _, running := s.CurrentRun(); running {
		t.Fatalf("no run should be active")
	}
}

func TestTriggerRejectsConcurrentRun(t *testing.T) {
	runner := &blockingRunner{started: make(chan string, 1), release: make(chan struct{})}
	s := NewIngestion(runner, nil, nil, nil, discardLogger())
	defer s.Shutdown()

	runID, err := s.Trigger(context.Background())
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if got := <-runner.started; got != runID {
		t.Fatalf("runner got run %q; want %q", got, runID)
	}
	if current, ok := s.CurrentRun(); !ok || current != runID {
		t.Fatalf("CurrentRun = %q, %v", current, ok)
	}

	if _, err := s.Trigger(context.Background()); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if _, err := s.Run(context.Background()); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(runner.release)
	s.wg.Wait()

	last, err := s.LastRun(context.Background())
	if err != nil || last.RunID != runID {
		t.Fatalf("LastRun = %+v, %v", last, err)
	}
}

func TestRunLockHeldElsewhere(t *testing.T) {
	s := NewIngestion(&blockingRunner{}, &fakeLock{held: true}, nil, nil, discardLogger())
	if _, err := s.Run(context.Background()); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if _, running := s.CurrentRun(); running {
		t.Fatalf("failed acquire must free the local slot")
	}

	s = NewIngestion(&blockingRunner{}, &fakeLock{err: errors.New("redis down")}, nil, nil, discardLogger())
	if _, err := s.Run(context.Background()); err == nil || errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected lock error, got %v", err)
	}
}

func TestLastRunWithoutHistory(t *testing.T) {
	s := NewIngestion(&blockingRunner{}, nil, nil, nil, discardLogger())
	if _, err := s.LastRun(context.Background()); !errors.Is(err, domain.ErrNoRunRecorded) {
		t.Fatalf("expected ErrNoRunRecorded, got %v", err)
	}
}

func TestMatchIngestedIsPublished(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewIngestion(&blockingRunner{}, nil, nil, nil, discardLogger())
	s.AddPublisher(pub)

	s.MatchIngested(context.Background(), domain.MatchIngested{RunID: "run-1", MatchID: "M2"})
	if len(pub.events) != 1 || pub.events[0].Match == nil || pub.events[0].Match.MatchID != "M2" {
		t.Fatalf("unexpected events %+v", pub.events)
	}
}
