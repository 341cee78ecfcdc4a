// Package sqlite stores matches in a local SQLite file. It is used for
// single-host runs and shares the ingest.Store contract with postgres.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/ingest"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS matches (
		match_id      TEXT PRIMARY KEY,
		game_creation INTEGER NOT NULL,
		game_duration INTEGER NOT NULL,
		game_mode     TEXT NOT NULL,
		game_type     TEXT NOT NULL,
		game_version  TEXT NOT NULL,
		platform_id   TEXT NOT NULL,
		queue_id      INTEGER NOT NULL,
		raw_data      TEXT NOT NULL DEFAULT '{}',
		ingested_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id           TEXT NOT NULL REFERENCES matches(match_id) ON DELETE CASCADE,
		puuid              TEXT NOT NULL,
		summoner_name      TEXT NOT NULL,
		champion_id        INTEGER NOT NULL,
		champion_name      TEXT NOT NULL,
		team_id            INTEGER NOT NULL,
		role               TEXT NOT NULL DEFAULT '',
		lane               TEXT NOT NULL DEFAULT '',
		kills              INTEGER NOT NULL,
		deaths             INTEGER NOT NULL,
		assists            INTEGER NOT NULL,
		gold_earned        INTEGER NOT NULL,
		total_damage_dealt INTEGER NOT NULL,
		total_damage_taken INTEGER NOT NULL,
		vision_score       INTEGER NOT NULL,
		cs                 INTEGER NOT NULL,
		win                INTEGER NOT NULL,
		raw_data           TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_match ON participants(match_id)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_puuid ON participants(puuid)`,
}

// Store is a SQLite-backed ingest.Store
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the schema
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// one writer; keeps per-connection pragmas stable
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(domain.ErrStoreUnavailable, "ping sqlite: %v", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "apply migration %d", i+1)
		}
	}

	logger.Info("sqlite store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "ping sqlite")
}

// MatchExists reports whether a match is stored
func (s *Store) MatchExists(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM matches WHERE match_id = ?)`, matchID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "match exists")
	}
	return exists, nil
}

// WithinTx runs fn in a transaction, committing only if fn succeeds
func (s *Store) WithinTx(ctx context.Context, fn func(tx ingest.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(&tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Error("sqlite rollback failed", "error", rbErr)
		}
		return err
	}
	return errors.Wrap(sqlTx.Commit(), "commit tx")
}

// Counts returns the row counts of the match tables
func (s *Store) Counts(ctx context.Context) (domain.StoreCounts, error) {
	var c domain.StoreCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM matches), (SELECT COUNT(*) FROM participants)`,
	).Scan(&c.Matches, &c.Participants)
	if err != nil {
		return domain.StoreCounts{}, errors.Wrap(err, "count rows")
	}
	return c, nil
}

// Participants returns the stored participants of a match in insert order
func (s *Store) Participants(ctx context.Context, matchID string) ([]domain.ParticipantRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, puuid, summoner_name, champion_id, champion_name, team_id, role, lane,
			kills, deaths, assists, gold_earned, total_damage_dealt, total_damage_taken,
			vision_score, cs, win, raw_data
		FROM participants WHERE match_id = ? ORDER BY id`, matchID)
	if err != nil {
		return nil, errors.Wrap(err, "list participants")
	}
	defer rows.Close()

	var out []domain.ParticipantRecord
	for rows.Next() {
		var (
			p   domain.ParticipantRecord
			raw string
		)
		if err := rows.Scan(&p.MatchID, &p.PUUID, &p.SummonerName, &p.ChampionID, &p.ChampionName,
			&p.TeamID, &p.Role, &p.Lane, &p.Kills, &p.Deaths, &p.Assists, &p.GoldEarned,
			&p.TotalDamageDealt, &p.TotalDamageTaken, &p.VisionScore, &p.CS, &p.Win, &raw); err != nil {
			return nil, errors.Wrap(err, "scan participant")
		}
		p.RawData = []byte(raw)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate participants")
	}
	return out, nil
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) InsertMatchIfAbsent(ctx context.Context, m domain.MatchRecord) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO matches (match_id, game_creation, game_duration, game_mode, game_type,
			game_version, platform_id, queue_id, raw_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id) DO NOTHING`,
		m.MatchID, m.GameCreation, m.GameDuration, m.GameMode, m.GameType,
		m.GameVersion, m.PlatformID, m.QueueID, rawText(m.RawData),
	)
	if err != nil {
		return false, errors.Wrap(err, "insert match")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "insert match rows affected")
	}
	return n == 1, nil
}

func (t *tx) InsertParticipants(ctx context.Context, participants []domain.ParticipantRecord) (int, error) {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO participants (match_id, puuid, summoner_name, champion_id, champion_name,
			team_id, role, lane, kills, deaths, assists, gold_earned, total_damage_dealt,
			total_damage_taken, vision_score, cs, win, raw_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, errors.Wrap(err, "prepare participant insert")
	}
	defer stmt.Close()

	for i, p := range participants {
		if _, err := stmt.ExecContext(ctx,
			p.MatchID, p.PUUID, p.SummonerName, p.ChampionID, p.ChampionName,
			p.TeamID, p.Role, p.Lane, p.Kills, p.Deaths, p.Assists, p.GoldEarned,
			p.TotalDamageDealt, p.TotalDamageTaken, p.VisionScore, p.CS, p.Win, rawText(p.RawData),
		); err != nil {
			return i, errors.Wrapf(err, "insert participant %s", p.PUUID)
		}
	}
	return len(participants), nil
}

func rawText(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
