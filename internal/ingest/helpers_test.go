package ingest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/riot"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

// participantJSON renders a complete participant object, applying overrides.
// A nil override value removes the key.
func participantJSON(i int, overrides map[string]any) json.RawMessage {
	p := map[string]any{
		"puuid":                       fmt.Sprintf("PUUID-%d", i),
		"riotIdGameName":              fmt.Sprintf("Player%d", i),
		"summonerName":                fmt.Sprintf("Legacy%d", i),
		"championId":                  100 + i,
		"championName":                "Ahri",
		"teamId":                      100 + 100*(i/5),
		"teamPosition":                "MIDDLE",
		"lane":                        "MIDDLE",
		"kills":                       5,
		"deaths":                      2,
		"assists":                     7,
		"goldEarned":                  11000,
		"totalDamageDealtToChampions": 20000,
		"totalDamageTaken":            15000,
		"visionScore":                 25,
		"totalMinionsKilled":          120,
		"neutralMinionsKilled":        15,
		"win":                         i < 5,
	}
	for k, v := range overrides {
		if v == nil {
			delete(p, k)
			continue
		}
		p[k] = v
	}
	raw, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	return raw
}

func matchPayload(matchID string, participants ...json.RawMessage) *riot.MatchPayload {
	if participants == nil {
		for i := 0; i < 10; i++ {
			participants = append(participants, participantJSON(i, nil))
		}
	}
	return &riot.MatchPayload{
		Metadata: riot.MatchMetadata{MatchID: matchID},
		Info: &riot.MatchInfo{
			GameCreation: ptr(int64(1700000000000)),
			GameDuration: ptr(int64(1800)),
			GameMode:     ptr("CLASSIC"),
			GameType:     ptr("MATCHED_GAME"),
			GameVersion:  ptr("14.20.1"),
			PlatformID:   ptr("NA1"),
			QueueID:      ptr(420),
			Participants: participants,
		},
		Raw: []byte(`{"metadata":{"matchId":"` + matchID + `"}}`),
	}
}

// fakeAPI serves a fixed roster, match lists and payloads, and records calls
type fakeAPI struct {
	mu         sync.Mutex
	puuids     map[string]string             // Name#Tag -> puuid
	matchLists map[string][]string           // puuid -> match IDs
	payloads   map[string]*riot.MatchPayload // match ID -> payload
	listErr    map[string]error
	fetchErr   map[string]error
	fetched    []string
	lastQueue  int
	lastLimit  int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		puuids:     make(map[string]string),
		matchLists: make(map[string][]string),
		payloads:   make(map[string]*riot.MatchPayload),
		listErr:    make(map[string]error),
		fetchErr:   make(map[string]error),
	}
}

func (f *fakeAPI) Resolve(ctx context.Context, player domain.TrackedPlayer, routing string) (string, error) {
	puuid, ok := f.puuids[player.String()]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, player)
	}
	return puuid, nil
}

func (f *fakeAPI) ListMatches(ctx context.Context, puuid, routing string, limit, queue int) ([]string, error) {
	f.mu.Lock()
	f.lastQueue, f.lastLimit = queue, limit
	f.mu.Unlock()
	if err := f.listErr[puuid]; err != nil {
		return nil, err
	}
	ids := f.matchLists[puuid]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeAPI) FetchDetail(ctx context.Context, matchID, routing string) (domain.Lookup[*riot.MatchPayload], error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, matchID)
	f.mu.Unlock()
	if err := f.fetchErr[matchID]; err != nil {
		return domain.NotFound[*riot.MatchPayload](), err
	}
	p, ok := f.payloads[matchID]
	if !ok {
		return domain.NotFound[*riot.MatchPayload](), nil
	}
	return domain.Found(p), nil
}

func (f *fakeAPI) fetchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type recordingObserver struct {
	events []domain.MatchIngested
}

func (r *recordingObserver) MatchIngested(ctx context.Context, e domain.MatchIngested) {
	r.events = append(r.events, e)
}
