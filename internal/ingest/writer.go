package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/riot"
)

const unknownSummoner = "Unknown"

// Writer normalizes match payloads and loads them one transaction per match
type Writer struct {
	store  Store
	logger *slog.Logger
}

// NewWriter creates a new load writer
func NewWriter(store Store, logger *slog.Logger) *Writer {
	return &Writer{store: store, logger: logger}
}

// Write stores the match and all of its participants atomically and returns
// the inserted match row and the number of participants written. If the match is already stored nothing
// is written and the error wraps domain.ErrMatchStored. Any other failure
// rolls the whole match back.
func (w *Writer) Write(ctx context.Context, matchID string, payload *riot.MatchPayload) (domain.MatchRecord, int, error) {
	var (
		match   domain.MatchRecord
		written int
	)
	err := w.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		match, err = NormalizeMatch(matchID, payload)
		if err != nil {
			return err
		}

		inserted, err := tx.InsertMatchIfAbsent(ctx, match)
		if err != nil {
			return fmt.Errorf("inserting match: %w", err)
		}
		if !inserted {
			return domain.ErrMatchStored
		}

		participants := make([]domain.ParticipantRecord, 0, len(payload.Info.Participants))
		for i, raw := range payload.Info.Participants {
			p, err := NormalizeParticipant(matchID, raw)
			if err != nil {
				return fmt.Errorf("participant %d: %w", i, err)
			}
			participants = append(participants, p)
		}

		written, err = tx.InsertParticipants(ctx, participants)
		if err != nil {
			return fmt.Errorf("inserting participants: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.MatchRecord{}, 0, fmt.Errorf("writing match %s: %w", matchID, err)
	}

	w.logger.Debug("match written", "match_id", matchID, "participants", written)
	return match, written, nil
}

// NormalizeMatch derives the match row from a payload
func NormalizeMatch(matchID string, payload *riot.MatchPayload) (domain.MatchRecord, error) {
	if payload == nil || payload.Info == nil {
		return domain.MatchRecord{}, fmt.Errorf("%w: missing info section", domain.ErrInvalidPayload)
	}
	info := payload.Info

	var missing []string
	check := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}
	check("gameCreation", info.GameCreation != nil)
	check("gameDuration", info.GameDuration != nil)
	check("gameMode", info.GameMode != nil)
	check("gameType", info.GameType != nil)
	check("gameVersion", info.GameVersion != nil)
	check("platformId", info.PlatformID != nil)
	check("queueId", info.QueueID != nil)
	if len(missing) > 0 {
		return domain.MatchRecord{}, fmt.Errorf("%w: info missing %v", domain.ErrInvalidPayload, missing)
	}

	return domain.MatchRecord{
		MatchID:      matchID,
		GameCreation: *info.GameCreation,
		GameDuration: *info.GameDuration,
		GameMode:     *info.GameMode,
		GameType:     *info.GameType,
		GameVersion:  *info.GameVersion,
		PlatformID:   *info.PlatformID,
		QueueID:      *info.QueueID,
		RawData:      payload.Raw,
	}, nil
}

// NormalizeParticipant derives a participant row from one raw participant
// object. Role and lane default to empty, the display name falls back from
// riotIdGameName to summonerName to "Unknown".
func NormalizeParticipant(matchID string, raw []byte) (domain.ParticipantRecord, error) {
	p, err := riot.DecodeParticipant(raw)
	if err != nil {
		return domain.ParticipantRecord{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	var missing []string
	str := func(name string, v *string) string {
		if v == nil {
			missing = append(missing, name)
			return ""
		}
		return *v
	}
	num := func(name string, v *int) int {
		if v == nil {
			missing = append(missing, name)
			return 0
		}
		return *v
	}

	rec := domain.ParticipantRecord{
		MatchID:          matchID,
		PUUID:            str("puuid", p.PUUID),
		SummonerName:     displayName(p),
		ChampionID:       num("championId", p.ChampionID),
		ChampionName:     str("championName", p.ChampionName),
		TeamID:           num("teamId", p.TeamID),
		Role:             optional(p.TeamPosition),
		Lane:             optional(p.Lane),
		Kills:            num("kills", p.Kills),
		Deaths:           num("deaths", p.Deaths),
		Assists:          num("assists", p.Assists),
		GoldEarned:       num("goldEarned", p.GoldEarned),
		TotalDamageDealt: num("totalDamageDealtToChampions", p.TotalDamageDealtToChampions),
		TotalDamageTaken: num("totalDamageTaken", p.TotalDamageTaken),
		VisionScore:      num("visionScore", p.VisionScore),
		CS:               num("totalMinionsKilled", p.TotalMinionsKilled) + num("neutralMinionsKilled", p.NeutralMinionsKilled),
		RawData:          raw,
	}
	if p.Win == nil {
		missing = append(missing, "win")
	} else {
		rec.Win = *p.Win
	}

	if len(missing) > 0 {
		return domain.ParticipantRecord{}, fmt.Errorf("%w: participant missing %v", domain.ErrInvalidPayload, missing)
	}
	return rec, nil
}

func displayName(p riot.Participant) string {
	if p.RiotIDGameName != nil {
		return *p.RiotIDGameName
	}
	if p.SummonerName != nil {
		return *p.SummonerName
	}
	return unknownSummoner
}

func optional(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
