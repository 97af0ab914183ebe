package ports

import (
	"context"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

// EvaluationReader is the read side of the evaluation store that preference
// analysis depends on.
type EvaluationReader interface {
	// TracksByStatus returns the cached tracks the user evaluated with status.
	// No ordering is guaranteed.
	TracksByStatus(ctx context.Context, userID string, status domain.EvaluationStatus) ([]domain.TrackCache, error)
}

// EvaluationRepository persists evaluations and the tracks they refer to.
type EvaluationRepository interface {
	EvaluationReader
	SaveEvaluation(ctx context.Context, track domain.TrackCache, eval domain.Evaluation) (domain.Evaluation, error)
	ListEvaluations(ctx context.Context, userID string, status domain.EvaluationStatus, limit int) ([]domain.EvaluatedTrack, error)
	DeleteEvaluation(ctx context.Context, userID string, externalTrackID string) error
}

// PlayHistoryRepository records which tracks a user listened to.
type PlayHistoryRepository interface {
	RecordPlay(ctx context.Context, track domain.TrackCache, play domain.Play) (domain.Play, error)
	// ListPlays returns the user's plays, most recent first. A non-positive
	// limit lists all.
	ListPlays(ctx context.Context, userID string, limit int) ([]domain.PlayedTrack, error)
}
