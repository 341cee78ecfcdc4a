package riot

import (
	"context"
	"fmt"
	"net/url"

	"github.com/riot-match-ingestor/internal/domain"
)

// Resolve maps a Riot ID to the player's PUUID with one account lookup.
// A player the API does not know yields an error wrapping
// domain.ErrPlayerNotFound.
func (c *Client) Resolve(ctx context.Context, player domain.TrackedPlayer, routing string) (string, error) {
	endpoint := c.Endpoint(routing, fmt.Sprintf("/riot/account/v1/accounts/by-riot-id/%s/%s",
		url.PathEscape(player.Name), url.PathEscape(player.Tag)))

	res, err := c.Request(ctx, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", player, err)
	}
	body, ok := res.Get()
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrPlayerNotFound, player)
	}

	var account AccountResponse
	if err := c.decode(body, &account); err != nil {
		return "", fmt.Errorf("resolving %s: %w", player, err)
	}
	if account.PUUID == "" {
		return "", fmt.Errorf("resolving %s: account response has no puuid", player)
	}

	c.logger.Info("resolved player", "player", player.String(), "puuid", account.PUUID)
	return account.PUUID, nil
}
