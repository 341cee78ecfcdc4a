package ingest

import (
	"context"

	"github.com/riot-match-ingestor/internal/domain"
)

// Store is the relational store the pipeline loads into. Implementations:
// postgres.Repository, sqlite.Store and memstore.Store.
type Store interface {
	// MatchExists is a primary-key point lookup on the match table
	MatchExists(ctx context.Context, matchID string) (bool, error)
	// WithinTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the write side of a single match transaction
type Tx interface {
	// InsertMatchIfAbsent inserts m unless its match ID is already stored.
	// It reports whether a row was written.
	InsertMatchIfAbsent(ctx context.Context, m domain.MatchRecord) (bool, error)
	InsertParticipants(ctx context.Context, participants []domain.ParticipantRecord) (int, error)
}

// Counter is implemented by stores that can report row counts
type Counter interface {
	Counts(ctx context.Context) (domain.StoreCounts, error)
}
