package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/riot-match-ingestor/internal/config"
	"github.com/riot-match-ingestor/internal/domain"
)

// releaseScript deletes the lock only if it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunState keeps the cluster-wide run lock and the last run's statistics
type RunState struct {
	client  *redis.Client
	prefix  string
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewRunState creates a new Redis-backed run state
func NewRunState(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*RunState, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RunState{
		client:  client,
		prefix:  cfg.KeyPrefix,
		lockTTL: cfg.LockTTL,
		logger:  logger,
	}, nil
}

// Close closes the Redis connection
func (s *RunState) Close() error {
	return s.client.Close()
}

// lockKey returns the Redis key of the run lock
func (s *RunState) lockKey() string {
	return fmt.Sprintf("%s:run:lock", s.prefix)
}

// lastRunKey returns the Redis key of the last run's statistics
func (s *RunState) lastRunKey() string {
	return fmt.Sprintf("%s:run:last", s.prefix)
}

// Acquire takes the run lock. It returns the token needed to release it, or
// domain.ErrRunInProgress if another process holds the lock.
func (s *RunState) Acquire(ctx context.Context) (string, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, s.lockKey(), token, s.lockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return "", domain.ErrRunInProgress
	}
	s.logger.Debug("run lock acquired", "ttl", s.lockTTL)
	return token, nil
}

// Release drops the run lock if token still owns it
func (s *RunState) Release(ctx context.Context, token string) error {
	n, err := releaseScript.Run(ctx, s.client, []string{s.lockKey()}, token).Int()
	if err != nil {
		return fmt.Errorf("releasing run lock: %w", err)
	}
	if n == 0 {
		s.logger.Warn("run lock expired before release")
	}
	return nil
}

// SaveLastRun stores the statistics of a finished run
func (s *RunState) SaveLastRun(ctx context.Context, stats domain.RunStatistics) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling run statistics: %w", err)
	}
	if err := s.client.Set(ctx, s.lastRunKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("saving last run: %w", err)
	}
	return nil
}

// LastRun returns the statistics of the last finished run
func (s *RunState) LastRun(ctx context.Context) (domain.RunStatistics, error) {
	data, err := s.client.Get(ctx, s.lastRunKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RunStatistics{}, domain.ErrNoRunRecorded
	}
	if err != nil {
		return domain.RunStatistics{}, fmt.Errorf("getting last run: %w", err)
	}

	var stats domain.RunStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		return domain.RunStatistics{}, fmt.Errorf("unmarshaling last run: %w", err)
	}
	return stats, nil
}
