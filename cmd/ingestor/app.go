package main

import (
	"context"
	"log/slog"

	"github.com/riot-match-ingestor/internal/config"
	"github.com/riot-match-ingestor/internal/ingest"
	"github.com/riot-match-ingestor/internal/kafka"
	"github.com/riot-match-ingestor/internal/metrics"
	"github.com/riot-match-ingestor/internal/redis"
	"github.com/riot-match-ingestor/internal/riot"
	"github.com/riot-match-ingestor/internal/service"
)

// app holds the wired components shared by run and serve
type app struct {
	store     store
	metrics   *metrics.Metrics
	ingestion *service.Ingestion
	closers   []func()
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	// Initialize the store
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	// Initialize the Riot client
	opts := cfg.Riot.ClientOptions()
	opts.Metrics = a.metrics
	client, err := riot.NewClient(opts, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	orchestrator := ingest.NewOrchestrator(client, client, client, st, ingest.Options{
		Players:       cfg.Ingest.Players,
		Routing:       cfg.Riot.Routing,
		MatchesPerRun: cfg.Ingest.MatchesPerRun,
		QueueID:       cfg.Ingest.QueueID,
	}, a.metrics, logger)

	// Redis run lock and history are optional
	var (
		lock    service.RunLock
		history service.RunHistory
	)
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		runState, err := redis.NewRunState(ctx, &cfg.Redis, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := runState.Close(); err != nil {
				logger.Error("failed to close Redis", "error", err)
			}
		})
		lock, history = runState, runState
		logger.Info("connected to Redis")
	}

	a.ingestion = service.NewIngestion(orchestrator, lock, history, a.metrics, logger)
	orchestrator.AddObserver(a.ingestion)

	// Kafka publisher for run events
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka publisher",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		publisher, err := kafka.NewPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka publisher, continuing without Kafka", "error", err)
		} else {
			a.ingestion.AddPublisher(publisher)
			a.closers = append(a.closers, func() {
				if err := publisher.Close(); err != nil {
					logger.Error("failed to close Kafka publisher", "error", err)
				}
			})
		}
	}

	return a, nil
}
