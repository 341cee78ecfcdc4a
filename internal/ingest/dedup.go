package ingest

import (
	"context"
	"fmt"
)

// Dedup answers whether a match is already persisted. It is consulted
// before any detail fetch so stored matches never cost an API call.
type Dedup struct {
	store Store
}

// NewDedup creates a dedup check over store
func NewDedup(store Store) *Dedup {
	return &Dedup{store: store}
}

// Exists reports whether matchID is stored
func (d *Dedup) Exists(ctx context.Context, matchID string) (bool, error) {
	exists, err := d.store.MatchExists(ctx, matchID)
	if err != nil {
		return false, fmt.Errorf("checking match %s: %w", matchID, err)
	}
	return exists, nil
}
