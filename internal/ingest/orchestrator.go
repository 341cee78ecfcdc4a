package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/metrics"
	"github.com/riot-match-ingestor/internal/riot"
)

// Resolver maps a Riot ID to a PUUID
type Resolver interface {
	Resolve(ctx context.Context, player domain.TrackedPlayer, routing string) (string, error)
}

// Discoverer lists the most recent match IDs of a player
type Discoverer interface {
	ListMatches(ctx context.Context, puuid, routing string, limit, queue int) ([]string, error)
}

// Fetcher fetches a match payload
type Fetcher interface {
	FetchDetail(ctx context.Context, matchID, routing string) (domain.Lookup[*riot.MatchPayload], error)
}

// Observer is notified of every committed match
type Observer interface {
	MatchIngested(ctx context.Context, event domain.MatchIngested)
}

// Options is the static run configuration
type Options struct {
	Players       []domain.TrackedPlayer
	Routing       string
	MatchesPerRun int
	QueueID       int
}

// Orchestrator walks the roster player by player and match by match. It is
// single threaded; failures are counted at the player or match they happen
// in and never stop the run.
type Orchestrator struct {
	resolver   Resolver
	discoverer Discoverer
	fetcher    Fetcher
	dedup      *Dedup
	writer     *Writer
	opts       Options
	observers  []Observer
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewOrchestrator creates a new ingestion orchestrator
func NewOrchestrator(
	resolver Resolver,
	discoverer Discoverer,
	fetcher Fetcher,
	store Store,
	opts Options,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		resolver:   resolver,
		discoverer: discoverer,
		fetcher:    fetcher,
		dedup:      NewDedup(store),
		writer:     NewWriter(store, logger),
		opts:       opts,
		metrics:    m,
		logger:     logger,
	}
}

// AddObserver registers an observer for committed matches
func (o *Orchestrator) AddObserver(obs Observer) {
	o.observers = append(o.observers, obs)
}

// Run executes one ingestion run under a fresh run ID
func (o *Orchestrator) Run(ctx context.Context) domain.RunStatistics {
	return o.RunWithID(ctx, uuid.NewString())
}

// RunWithID executes one ingestion run. It always returns statistics; when
// ctx is cancelled the players and matches not yet reached are left out.
func (o *Orchestrator) RunWithID(ctx context.Context, runID string) domain.RunStatistics {
	stats := domain.RunStatistics{RunID: runID, StartedAt: time.Now().UTC()}
	logger := o.logger.With("run_id", runID)

	logger.Info("starting ingestion run",
		"players", len(o.opts.Players),
		"matches_per_run", o.opts.MatchesPerRun,
		"queue", riot.QueueName(o.opts.QueueID),
	)

	for _, player := range o.opts.Players {
		if ctx.Err() != nil {
			logger.Warn("ingestion run interrupted", "error", ctx.Err())
			break
		}
		o.processPlayer(ctx, logger, runID, player, &stats)
	}

	stats.FinishedAt = time.Now().UTC()
	logger.Info("ingestion run completed",
		"players_processed", stats.PlayersProcessed,
		"matches_found", stats.MatchesFound,
		"matches_inserted", stats.MatchesInserted,
		"matches_skipped", stats.MatchesSkipped,
		"participants_inserted", stats.ParticipantsInserted,
		"errors", stats.Errors,
		"duration", stats.Duration(),
	)
	return stats
}

func (o *Orchestrator) processPlayer(ctx context.Context, logger *slog.Logger, runID string, player domain.TrackedPlayer, stats *domain.RunStatistics) {
	logger = logger.With("player", player.String())
	logger.Info("processing player")

	puuid, err := o.resolver.Resolve(ctx, player, o.opts.Routing)
	if err != nil {
		stats.Errors++
		o.metrics.IncPlayerError()
		logger.Error("failed to resolve player", "error", err)
		return
	}

	matchIDs, err := o.discoverer.ListMatches(ctx, puuid, o.opts.Routing, o.opts.MatchesPerRun, o.opts.QueueID)
	if err != nil {
		stats.Errors++
		o.metrics.IncPlayerError()
		logger.Error("failed to list matches", "puuid", puuid, "error", err)
		return
	}
	stats.MatchesFound += len(matchIDs)

	for i, matchID := range matchIDs {
		if ctx.Err() != nil {
			return
		}
		logger.Debug("processing match", "match_id", matchID, "position", i+1, "of", len(matchIDs))

		res, err := o.processMatch(ctx, matchID)
		o.metrics.IncMatch(res.outcome)
		switch res.outcome {
		case metrics.OutcomeSkipped:
			stats.MatchesSkipped++
			logger.Info("match already stored", "match_id", matchID)
		case metrics.OutcomeMissing:
			logger.Warn("match not found upstream", "match_id", matchID)
		case metrics.OutcomeInserted:
			stats.MatchesInserted++
			stats.ParticipantsInserted += res.participants
			o.metrics.AddParticipants(res.participants)
			logger.Info("match inserted", "match_id", matchID, "participants", res.participants)
			o.notify(ctx, domain.MatchIngested{
				RunID:        runID,
				MatchID:      matchID,
				Player:       player.String(),
				QueueID:      res.match.QueueID,
				GameVersion:  res.match.GameVersion,
				GameCreation: res.match.GameCreation,
				Participants: res.participants,
			})
		default:
			stats.Errors++
			logger.Error("failed to ingest match", "match_id", matchID, "error", err)
		}
	}

	stats.PlayersProcessed++
}

type matchResult struct {
	outcome      string
	participants int
	match        domain.MatchRecord
}

func (o *Orchestrator) processMatch(ctx context.Context, matchID string) (matchResult, error) {
	failed := matchResult{outcome: metrics.OutcomeFailed}

	exists, err := o.dedup.Exists(ctx, matchID)
	if err != nil {
		return failed, err
	}
	if exists {
		return matchResult{outcome: metrics.OutcomeSkipped}, nil
	}

	lookup, err := o.fetcher.FetchDetail(ctx, matchID, o.opts.Routing)
	if err != nil {
		return failed, err
	}
	payload, ok := lookup.Get()
	if !ok {
		return matchResult{outcome: metrics.OutcomeMissing}, nil
	}

	match, n, err := o.writer.Write(ctx, matchID, payload)
	if errors.Is(err, domain.ErrMatchStored) {
		// another writer committed it between the check and the insert
		return matchResult{outcome: metrics.OutcomeSkipped}, nil
	}
	if err != nil {
		return failed, err
	}
	return matchResult{outcome: metrics.OutcomeInserted, participants: n, match: match}, nil
}

func (o *Orchestrator) notify(ctx context.Context, event domain.MatchIngested) {
	for _, obs := range o.observers {
		obs.MatchIngested(ctx, event)
	}
}
