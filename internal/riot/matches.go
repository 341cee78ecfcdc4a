package riot

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/riot-match-ingestor/internal/domain"
)

// ListMatches returns up to limit match IDs for a player, most recent first.
// A queue of 0 or less disables the queue filter. An unknown player yields no matches.
func (c *Client) ListMatches(ctx context.Context, puuid, routing string, limit, queue int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > MaxMatchCount {
		limit = MaxMatchCount
	}

	endpoint := c.Endpoint(routing, fmt.Sprintf("/lol/match/v5/matches/by-puuid/%s/ids", url.PathEscape(puuid)))
	query := url.Values{}
	query.Set("start", "0")
	query.Set("count", strconv.Itoa(limit))
	if queue > 0 {
		query.Set("queue", strconv.Itoa(queue))
	}

	res, err := c.Request(ctx, endpoint, query)
	if err != nil {
		return nil, fmt.Errorf("listing matches for %s: %w", puuid, err)
	}
	body, ok := res.Get()
	if !ok {
		return []string{}, nil
	}

	var matchIDs []string
	if err := c.decode(body, &matchIDs); err != nil {
		return nil, fmt.Errorf("listing matches for %s: %w", puuid, err)
	}
	if len(matchIDs) > limit {
		matchIDs = matchIDs[:limit]
	}

	c.logger.Info("found matches", "puuid", puuid, "count", len(matchIDs), "queue", QueueName(queue))
	return matchIDs, nil
}

// FetchDetail fetches the full payload of a match. A match the API no longer
// has is returned as NotFound.
func (c *Client) FetchDetail(ctx context.Context, matchID, routing string) (domain.Lookup[*MatchPayload], error) {
	endpoint := c.Endpoint(routing, "/lol/match/v5/matches/"+url.PathEscape(matchID))

	res, err := c.Request(ctx, endpoint, nil)
	if err != nil {
		return domain.NotFound[*MatchPayload](), fmt.Errorf("fetching match %s: %w", matchID, err)
	}
	body, ok := res.Get()
	if !ok {
		return domain.NotFound[*MatchPayload](), nil
	}

	var payload MatchPayload
	if err := c.decode(body, &payload); err != nil {
		return domain.NotFound[*MatchPayload](), fmt.Errorf("fetching match %s: %w", matchID, err)
	}
	payload.Raw = body
	return domain.Found(&payload), nil
}
