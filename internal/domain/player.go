package domain

import (
	"fmt"
	"strings"
)

// TrackedPlayer is a player from the static roster, identified by Riot ID
type TrackedPlayer struct {
	Name string `yaml:"name" json:"name"`
	Tag  string `yaml:"tag" json:"tag"`
}

// String renders the Riot ID as Name#Tag
func (p TrackedPlayer) String() string {
	return p.Name + "#" + p.Tag
}

// ParseTrackedPlayer parses a "Name#Tag" Riot ID
func ParseTrackedPlayer(s string) (TrackedPlayer, error) {
	name, tag, ok := strings.Cut(strings.TrimSpace(s), "#")
	name = strings.TrimSpace(name)
	tag = strings.TrimSpace(tag)
	if !ok || name == "" || tag == "" {
		return TrackedPlayer{}, fmt.Errorf("invalid riot id %q, expected Name#Tag", s)
	}
	return TrackedPlayer{Name: name, Tag: tag}, nil
}

// ParseTrackedPlayers parses a comma-separated list of Riot IDs
func ParseTrackedPlayers(s string) ([]TrackedPlayer, error) {
	var players []TrackedPlayer
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		p, err := ParseTrackedPlayer(part)
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, nil
}
