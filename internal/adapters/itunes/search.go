package itunes

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 200
)

// Search runs an iTunes Search API query and returns the playable results.
func (c *Client) Search(ctx context.Context, params domain.SearchParams, limit int) ([]domain.Track, error) {
	if params.Term == "" {
		return nil, fmt.Errorf("itunes adapter: search term is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	searchURL, err := url.Parse(c.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("itunes adapter: invalid search url: %w", err)
	}

	entity := params.Entity
	if entity == "" {
		entity = domain.EntitySong
	}

	query := searchURL.Query()
	query.Set("term", params.Term)
	query.Set("entity", entity)
	query.Set("media", "music")
	query.Set("country", c.country)
	query.Set("limit", strconv.Itoa(limit))
	if params.Attribute != "" {
		query.Set("attribute", params.Attribute)
	}
	searchURL.RawQuery = query.Encode()

	c.logger.Debug().Str("url", searchURL.String()).Msg("search request")

	body, err := c.fetch(ctx, "search", searchURL.String())
	if err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("itunes adapter: decode search response: %w", err)
	}

	tracks := make([]domain.Track, 0, len(sr.Results))
	seen := make(map[string]struct{}, len(sr.Results))
	for _, r := range sr.Results {
		t, ok := mapResultToDomain(r)
		if !ok {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		tracks = append(tracks, t)
	}

	c.logger.Debug().
		Str("term", params.Term).
		Str("attribute", params.Attribute).
		Int("results", sr.ResultCount).
		Int("playable", len(tracks)).
		Msg("search finished")

	return tracks, nil
}
