package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/riot-match-ingestor/internal/config"
	"github.com/riot-match-ingestor/internal/domain"
)

// RunTrigger starts an ingestion run
type RunTrigger interface {
	Run(ctx context.Context) (domain.RunStatistics, error)
}

// Scheduler triggers ingestion runs on a cron schedule
type Scheduler struct {
	trigger RunTrigger
	config  *config.ScheduleConfig
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a new scheduler. It fails on an invalid cron
// expression or timezone.
func NewScheduler(trigger RunTrigger, cfg *config.ScheduleConfig, logger *slog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		trigger: trigger,
		config:  cfg,
		cron:    cron.New(cron.WithLocation(loc)),
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(cfg.Cron, s.tick); err != nil {
		return nil, fmt.Errorf("parsing cron expression %q: %w", cfg.Cron, err)
	}
	return s, nil
}

// Start begins triggering runs. Runs are cancelled when ctx is done or the
// scheduler is stopped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()

	s.logger.Info("scheduler started",
		"cron", s.config.Cron,
		"timezone", s.config.Timezone,
		"next_run", s.Next(),
	)
	return nil
}

// Stop stops the scheduler and waits for an in-flight run to return
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is started
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Next returns the time of the next scheduled run
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce triggers a single run (useful for manual triggers)
func (s *Scheduler) RunOnce(ctx context.Context) {
	stats, err := s.trigger.Run(ctx)
	if errors.Is(err, domain.ErrRunInProgress) {
		s.logger.Info("skipping scheduled run, another run is in progress")
		return
	}
	if err != nil {
		s.logger.Error("scheduled run failed", "error", err)
		return
	}
	s.logger.Info("scheduled run finished",
		"run_id", stats.RunID,
		"matches_inserted", stats.MatchesInserted,
		"errors", stats.Errors,
		"duration", stats.Duration(),
	)
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.RunOnce(ctx)
}
