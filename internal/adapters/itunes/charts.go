package itunes

import (
	"context"
	"fmt"
	"slices"

	"github.com/goccy/go-json"
)

// chartFeedSize is the number of entries requested from the chart feed.
const chartFeedSize = 100

// TopChartArtists returns up to limit distinct artists from the most-played
// songs chart for the configured country. Results are cached for the chart TTL;
// a stale cache is served when a refresh fails.
func (c *Client) TopChartArtists(ctx context.Context, limit int) ([]string, error) {
	c.chartMu.Lock()
	defer c.chartMu.Unlock()

	if c.chartArtists != nil && c.now().Sub(c.chartFetched) < c.chartTTL {
		return headOf(c.chartArtists, limit), nil
	}

	artists, err := c.fetchChartArtists(ctx)
	if err != nil {
		if c.chartArtists != nil {
			c.logger.Warn().Err(err).Msg("chart refresh failed, serving cached artists")
			return headOf(c.chartArtists, limit), nil
		}
		return nil, err
	}

	c.chartArtists = artists
	c.chartFetched = c.now()
	return headOf(artists, limit), nil
}

func (c *Client) fetchChartArtists(ctx context.Context) ([]string, error) {
	feedURL := fmt.Sprintf("%s/%s/music/most-played/%d/songs.json", c.chartsURL, c.country, chartFeedSize)

	body, err := c.fetch(ctx, "charts", feedURL)
	if err != nil {
		return nil, err
	}

	var feed chartFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("itunes adapter: decode chart feed: %w", err)
	}

	artists := make([]string, 0, len(feed.Feed.Results))
	for _, entry := range feed.Feed.Results {
		name := primaryArtist(entry.ArtistName)
		if name == "" || slices.Contains(artists, name) {
			continue
		}
		artists = append(artists, name)
	}

	c.logger.Debug().Int("entries", len(feed.Feed.Results)).Int("artists", len(artists)).Msg("chart feed refreshed")
	return artists, nil
}

func headOf(values []string, limit int) []string {
	if limit <= 0 || limit > len(values) {
		limit = len(values)
	}
	return slices.Clone(values[:limit])
}
