package domain

// MatchRecord is the normalized match row. It is written once per match ID
// and never updated.
type MatchRecord struct {
	MatchID      string `json:"match_id"`
	GameCreation int64  `json:"game_creation"`
	GameDuration int64  `json:"game_duration"`
	GameMode     string `json:"game_mode"`
	GameType     string `json:"game_type"`
	GameVersion  string `json:"game_version"`
	PlatformID   string `json:"platform_id"`
	QueueID      int    `json:"queue_id"`
	RawData      []byte `json:"-"`
}

// ParticipantRecord is one player's line in a match. It only exists alongside
// its owning MatchRecord.
type ParticipantRecord struct {
	MatchID          string `json:"match_id"`
	PUUID            string `json:"puuid"`
	SummonerName     string `json:"summoner_name"`
	ChampionID       int    `json:"champion_id"`
	ChampionName     string `json:"champion_name"`
	TeamID           int    `json:"team_id"`
	Role             string `json:"role"`
	Lane             string `json:"lane"`
	Kills            int    `json:"kills"`
	Deaths           int    `json:"deaths"`
	Assists          int    `json:"assists"`
	GoldEarned       int    `json:"gold_earned"`
	TotalDamageDealt int    `json:"total_damage_dealt"`
	TotalDamageTaken int    `json:"total_damage_taken"`
	VisionScore      int    `json:"vision_score"`
	CS               int    `json:"cs"`
	Win              bool   `json:"win"`
	RawData          []byte `json:"-"`
}

// MatchIngested is emitted after a match and its participants are committed
type MatchIngested struct {
	RunID        string `json:"run_id"`
	MatchID      string `json:"match_id"`
	Player       string `json:"player"`
	QueueID      int    `json:"queue_id"`
	GameVersion  string `json:"game_version"`
	GameCreation int64  `json:"game_creation"`
	Participants int    `json:"participants"`
}

// StoreCounts reports the row counts of the match tables
type StoreCounts struct {
	Matches      int64 `json:"matches"`
	Participants int64 `json:"participants"`
}
