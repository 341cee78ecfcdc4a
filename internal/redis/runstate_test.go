package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/riot-match-ingestor/internal/config"
	"github.com/riot-match-ingestor/internal/domain"
)

func setupRunState(t *testing.T) *RunState {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis test")
	}

	defaults, err := config.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg := defaults.Redis
	cfg.Addr = addr
	cfg.KeyPrefix = "ingestor-test-" + uuid.NewString()
	cfg.LockTTL = time.Minute

	ctx := context.Background()
	s, err := NewRunState(ctx, &cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		s.client.Del(ctx, s.lockKey(), s.lastRunKey())
		s.Close()
	})
	return s
}

func TestRunLock(t *testing.T) {
	s := setupRunState(t)
	ctx := context.Background()

	token, err := s.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := s.Acquire(ctx); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	// a stale token must not release someone else's lock
	if err := s.Release(ctx, "not-the-owner"); err != nil {
		t.Fatalf("release with stale token: %v", err)
	}
	if _, err := s.Acquire(ctx); !errors.Is(err, domain.ErrRunInProgress) {
		t.Fatalf("lock should still be held, got %v", err)
	}

	if err := s.Release(ctx, token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := s.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestLastRun(t *testing.T) {
	s := setupRunState(t)
	ctx := context.Background()

	if _, err := s.LastRun(ctx); !errors.Is(err, domain.ErrNoRunRecorded) {
		t.Fatalf("expected ErrNoRunRecorded, got %v", err)
	}

	want := domain.RunStatistics{RunID: "run-1", MatchesFound: 2, MatchesInserted: 1, MatchesSkipped: 1, ParticipantsInserted: 10}
	if err := s.SaveLastRun(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LastRun(ctx)
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if got.RunID != want.RunID || got.ParticipantsInserted != 10 || got.MatchesSkipped != 1 {
		t.Fatalf("last run = %+v; want %+v", got, want)
	}
}
