package domain

import (
	"strings"
	"time"
)

// EvaluationStatus is the verdict a user gave a track.
type EvaluationStatus string

const (
	StatusLike    EvaluationStatus = "LIKE"
	StatusDislike EvaluationStatus = "DISLIKE"
)

// ParseEvaluationStatus accepts "like"/"dislike" in any case.
func ParseEvaluationStatus(raw string) (EvaluationStatus, error) {
	switch EvaluationStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusLike:
		return StatusLike, nil
	case StatusDislike:
		return StatusDislike, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Evaluation links a user to a track they liked or disliked.
type Evaluation struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	TrackID         int64            `json:"-"`
	ExternalTrackID string           `json:"external_track_id"`
	Status          EvaluationStatus `json:"status"`
	Source          string           `json:"source"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// EvaluatedTrack is an evaluation joined with its cached track.
type EvaluatedTrack struct {
	Evaluation Evaluation `json:"evaluation"`
	Track      Track      `json:"track"`
}
