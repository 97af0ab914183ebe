package domain

import "strings"

// Track is the request-time representation of a catalog entry, as delivered to
// clients and as held in the candidate queue.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Genre      string `json:"genre,omitempty"`
	Album      string `json:"album,omitempty"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
	DurationMs int    `json:"duration_ms,omitempty"`
}

// TrackCache is the persisted form of a track that a user has evaluated.
type TrackCache struct {
	ID           int64
	ExternalID   string
	Source       string
	Title        string
	Artist       string
	Album        string
	PrimaryGenre string
	DurationMs   int
	ArtworkURL   string
	PreviewURL   string
}

// NewTrackCache builds the persisted form of a request-time track.
func NewTrackCache(t Track, source string) (TrackCache, error) {
	if strings.TrimSpace(t.ID) == "" {
		return TrackCache{}, ErrInvalidTrack
	}
	if source == "" {
		source = SourceITunes
	}
	return TrackCache{
		ExternalID:   t.ID,
		Source:       source,
		Title:        t.Title,
		Artist:       t.Artist,
		Album:        t.Album,
		PrimaryGenre: t.Genre,
		DurationMs:   t.DurationMs,
		ArtworkURL:   t.ArtworkURL,
		PreviewURL:   t.PreviewURL,
	}, nil
}

// ToTrack converts a cache record back into the request-time form.
func (c TrackCache) ToTrack() Track {
	return Track{
		ID:         c.ExternalID,
		Title:      c.Title,
		Artist:     c.Artist,
		Genre:      c.PrimaryGenre,
		Album:      c.Album,
		ArtworkURL: c.ArtworkURL,
		PreviewURL: c.PreviewURL,
		DurationMs: c.DurationMs,
	}
}

// SourceITunes identifies tracks fetched from the iTunes Search API.
const SourceITunes = "itunes"
