package riot

import "encoding/json"

// AccountResponse represents the response from /riot/account/v1/accounts/by-riot-id
type AccountResponse struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// MatchPayload represents the response from /lol/match/v5/matches/{matchId}.
// Raw holds the body exactly as received.
type MatchPayload struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     *MatchInfo    `json:"info"`
	Raw      []byte        `json:"-"`
}

type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"` // PUUIDs
}

// MatchInfo keeps optional fields as pointers so a missing key can be told
// apart from a zero value.
type MatchInfo struct {
	GameCreation *int64            `json:"gameCreation"`
	GameDuration *int64            `json:"gameDuration"`
	GameMode     *string           `json:"gameMode"`
	GameType     *string           `json:"gameType"`
	GameVersion  *string           `json:"gameVersion"`
	PlatformID   *string           `json:"platformId"`
	QueueID      *int              `json:"queueId"`
	Participants []json.RawMessage `json:"participants"`
}

// Participant is one entry of info.participants
type Participant struct {
	PUUID                       *string `json:"puuid"`
	RiotIDGameName              *string `json:"riotIdGameName"`
	SummonerName                *string `json:"summonerName"`
	ChampionID                  *int    `json:"championId"`
	ChampionName                *string `json:"championName"`
	TeamID                      *int    `json:"teamId"`
	TeamPosition                *string `json:"teamPosition"` // TOP, JUNGLE, MIDDLE, BOTTOM, UTILITY
	Lane                        *string `json:"lane"`
	Kills                       *int    `json:"kills"`
	Deaths                      *int    `json:"deaths"`
	Assists                     *int    `json:"assists"`
	GoldEarned                  *int    `json:"goldEarned"`
	TotalDamageDealtToChampions *int    `json:"totalDamageDealtToChampions"`
	TotalDamageTaken            *int    `json:"totalDamageTaken"`
	VisionScore                 *int    `json:"visionScore"`
	TotalMinionsKilled          *int    `json:"totalMinionsKilled"`
	NeutralMinionsKilled        *int    `json:"neutralMinionsKilled"`
	Win                         *bool   `json:"win"`
}

// DecodeParticipant decodes one raw participant object
func DecodeParticipant(raw []byte) (Participant, error) {
	var p Participant
	if err := jsonAPI.Unmarshal(raw, &p); err != nil {
		return Participant{}, err
	}
	return p, nil
}
