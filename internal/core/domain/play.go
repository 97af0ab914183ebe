package domain

import "time"

// Play is one listen of a track's preview by a user.
type Play struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	TrackID         int64     `json:"-"`
	ExternalTrackID string    `json:"external_track_id"`
	PlayedMs        int       `json:"played_ms"`
	Completed       bool      `json:"completed"`
	Source          string    `json:"source"`
	PlayedAt        time.Time `json:"played_at"`
}

// PlayedTrack is a play joined with its cached track.
type PlayedTrack struct {
	Play  Play  `json:"play"`
	Track Track `json:"track"`
}
