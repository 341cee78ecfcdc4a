package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riot-match-ingestor/internal/config"
	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/ingest"
)

// Repository provides PostgreSQL-based match storage in the raw schema
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: connecting to database: %v", domain.ErrStoreUnavailable, err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE SCHEMA IF NOT EXISTS raw`,
		`CREATE TABLE IF NOT EXISTS raw.matches (
			match_id VARCHAR(64) PRIMARY KEY,
			game_creation BIGINT NOT NULL,
			game_duration BIGINT NOT NULL,
			game_mode TEXT NOT NULL,
			game_type TEXT NOT NULL,
			game_version TEXT NOT NULL,
			platform_id TEXT NOT NULL,
			queue_id INT NOT NULL,
			raw_data JSONB NOT NULL,
			ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS raw.participants (
			id BIGSERIAL PRIMARY KEY,
			match_id VARCHAR(64) NOT NULL REFERENCES raw.matches(match_id) ON DELETE CASCADE,
			puuid VARCHAR(128) NOT NULL,
			summoner_name TEXT NOT NULL,
			champion_id INT NOT NULL,
			champion_name TEXT NOT NULL,
			team_id INT NOT NULL,
			role TEXT NOT NULL DEFAULT '',
			lane TEXT NOT NULL DEFAULT '',
			kills INT NOT NULL,
			deaths INT NOT NULL,
			assists INT NOT NULL,
			gold_earned INT NOT NULL,
			total_damage_dealt INT NOT NULL,
			total_damage_taken INT NOT NULL,
			vision_score INT NOT NULL,
			cs INT NOT NULL,
			win BOOLEAN NOT NULL,
			raw_data JSONB NOT NULL
		)`,
		// Widen columns created with length caps by earlier schema versions
		`ALTER TABLE raw.matches
			ALTER COLUMN game_mode TYPE TEXT,
			ALTER COLUMN game_type TYPE TEXT,
			ALTER COLUMN game_version TYPE TEXT,
			ALTER COLUMN platform_id TYPE TEXT`,
		`ALTER TABLE raw.participants
			ALTER COLUMN summoner_name TYPE TEXT,
			ALTER COLUMN champion_name TYPE TEXT,
			ALTER COLUMN role TYPE TEXT,
			ALTER COLUMN lane TYPE TEXT`,
		`CREATE INDEX IF NOT EXISTS idx_participants_match ON raw.participants(match_id)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_puuid ON raw.participants(puuid)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_creation ON raw.matches(game_creation DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// MatchExists checks if a match is already stored
func (r *Repository) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM raw.matches WHERE match_id = $1)`, matchID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking match existence: %w", err)
	}
	return exists, nil
}

// WithinTx runs fn in a transaction that commits only if fn succeeds
func (r *Repository) WithinTx(ctx context.Context, fn func(tx ingest.Tx) error) error {
	pgTx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		// no-op once committed
		if err := pgTx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.logger.Error("rolling back transaction", "error", err)
		}
	}()

	if err := fn(&tx{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Counts returns the row counts of the match tables
func (r *Repository) Counts(ctx context.Context) (domain.StoreCounts, error) {
	var c domain.StoreCounts
	err := r.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM raw.matches), (SELECT COUNT(*) FROM raw.participants)`,
	).Scan(&c.Matches, &c.Participants)
	if err != nil {
		return domain.StoreCounts{}, fmt.Errorf("counting rows: %w", err)
	}
	return c, nil
}

// Tables reports which of the expected tables exist in the raw schema
func (r *Repository) Tables(ctx context.Context) (map[string]bool, error) {
	tables := map[string]bool{"matches": false, "participants": false}

	rows, err := r.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'raw'`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		if _, ok := tables[name]; ok {
			tables[name] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tables: %w", err)
	}
	return tables, nil
}

type tx struct {
	tx pgx.Tx
}

// InsertMatchIfAbsent inserts a match row, leaving an existing row untouched
func (t *tx) InsertMatchIfAbsent(ctx context.Context, m domain.MatchRecord) (bool, error) {
	query := `
		INSERT INTO raw.matches (
			match_id, game_creation, game_duration, game_mode,
			game_type, game_version, platform_id, queue_id, raw_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (match_id) DO NOTHING
	`
	tag, err := t.tx.Exec(ctx, query,
		m.MatchID,
		m.GameCreation,
		m.GameDuration,
		m.GameMode,
		m.GameType,
		m.GameVersion,
		m.PlatformID,
		m.QueueID,
		rawJSON(m.RawData),
	)
	if err != nil {
		return false, fmt.Errorf("inserting match: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertParticipants inserts all participants of a match in one batch
func (t *tx) InsertParticipants(ctx context.Context, participants []domain.ParticipantRecord) (int, error) {
	if len(participants) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO raw.participants (
			match_id, puuid, summoner_name, champion_id, champion_name,
			team_id, role, lane, kills, deaths, assists, gold_earned,
			total_damage_dealt, total_damage_taken, vision_score, cs, win, raw_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	for _, p := range participants {
		batch.Queue(query,
			p.MatchID, p.PUUID, p.SummonerName, p.ChampionID, p.ChampionName,
			p.TeamID, p.Role, p.Lane, p.Kills, p.Deaths, p.Assists, p.GoldEarned,
			p.TotalDamageDealt, p.TotalDamageTaken, p.VisionScore, p.CS, p.Win, rawJSON(p.RawData),
		)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for i := range participants {
		if _, err := br.Exec(); err != nil {
			return i, fmt.Errorf("batch inserting participants: %w", err)
		}
	}
	return len(participants), nil
}

func rawJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
