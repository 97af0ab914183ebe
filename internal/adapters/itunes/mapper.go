package itunes

import (
	"strconv"
	"strings"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

// artworkSize is the edge length requested in place of the 100px artwork.
const artworkSize = "600x600"

// mapResultToDomain converts a search result to a domain.Track. It reports
// false for results that cannot be played (no ID or preview).
func mapResultToDomain(r searchResult) (domain.Track, bool) {
	if r.TrackID == 0 || r.PreviewURL == "" {
		return domain.Track{}, false
	}
	if r.Kind != "" && r.Kind != "song" {
		return domain.Track{}, false
	}

	return domain.Track{
		ID:         strconv.FormatInt(r.TrackID, 10),
		Title:      r.TrackName,
		Artist:     r.ArtistName,
		Genre:      r.PrimaryGenreName,
		Album:      r.CollectionName,
		ArtworkURL: upscaleArtwork(r.ArtworkURL100),
		PreviewURL: r.PreviewURL,
		DurationMs: r.TrackTimeMillis,
	}, true
}

// upscaleArtwork rewrites the 100x100 artwork URL to a larger rendition.
func upscaleArtwork(u string) string {
	return strings.Replace(u, "100x100", artworkSize, 1)
}
