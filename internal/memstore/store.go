// Package memstore is an in-process implementation of ingest.Store. Writes
// made inside a transaction stay private to it until commit.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/ingest"
)

// Store keeps matches and participants in memory
type Store struct {
	mu           sync.Mutex
	matches      map[string]domain.MatchRecord
	participants []domain.ParticipantRecord
}

// New creates an empty store
func New() *Store {
	return &Store{matches: make(map[string]domain.MatchRecord)}
}

// Seed stores a match without participants
func (s *Store) Seed(matchIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range matchIDs {
		s.matches[id] = domain.MatchRecord{MatchID: id}
	}
}

// MatchExists reports whether a match is stored
func (s *Store) MatchExists(ctx context.Context, matchID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.matches[matchID]
	return ok, nil
}

// WithinTx runs fn against a staging area that is applied only if fn
// succeeds. Transactions are serialized.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ingest.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &tx{store: s, matches: make(map[string]domain.MatchRecord)}
	if err := fn(tx); err != nil {
		return err
	}

	for id, m := range tx.matches {
		s.matches[id] = m
	}
	s.participants = append(s.participants, tx.participants...)
	return nil
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Counts returns the number of stored matches and participants
func (s *Store) Counts(ctx context.Context) (domain.StoreCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.StoreCounts{
		Matches:      int64(len(s.matches)),
		Participants: int64(len(s.participants)),
	}, nil
}

// Match returns a stored match
func (s *Store) Match(matchID string) (domain.MatchRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	return m, ok
}

// MatchIDs returns the stored match IDs in sorted order
func (s *Store) MatchIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.matches))
	for id := range s.matches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Participants returns the stored participants of a match
func (s *Store) Participants(matchID string) []domain.ParticipantRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ParticipantRecord
	for _, p := range s.participants {
		if p.MatchID == matchID {
			out = append(out, p)
		}
	}
	return out
}

// tx is only used while Store.mu is held
type tx struct {
	store        *Store
	matches      map[string]domain.MatchRecord
	participants []domain.ParticipantRecord
}

func (t *tx) InsertMatchIfAbsent(ctx context.Context, m domain.MatchRecord) (bool, error) {
	if _, ok := t.store.matches[m.MatchID]; ok {
		return false, nil
	}
	if _, ok := t.matches[m.MatchID]; ok {
		return false, nil
	}
	t.matches[m.MatchID] = m
	return true, nil
}

func (t *tx) InsertParticipants(ctx context.Context, participants []domain.ParticipantRecord) (int, error) {
	for _, p := range participants {
		_, committed := t.store.matches[p.MatchID]
		_, staged := t.matches[p.MatchID]
		if !committed && !staged {
			return 0, domain.ErrMatchNotFound
		}
	}
	t.participants = append(t.participants, participants...)
	return len(participants), nil
}
