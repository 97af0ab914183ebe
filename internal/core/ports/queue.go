package ports

import (
	"context"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

// QueueStats is a snapshot of the candidate queue.
type QueueStats struct {
	CurrentSize int     `json:"current_size"`
	MaxCapacity int     `json:"max_capacity"`
	Utilization float64 `json:"utilization"`
	IsLow       bool    `json:"is_low"`
}

// CandidateQueue is the warm pool of fetched tracks that suggestions are served from.
type CandidateQueue interface {
	Enqueue(ctx context.Context, tracks []domain.Track) (int, error)
	Dequeue(ctx context.Context, n int, exclude map[string]struct{}) ([]domain.Track, error)
	Stats(ctx context.Context) (QueueStats, error)
}

// RefillRequester asks the background worker to top up the queue, optionally
// biased toward one user's preferences.
type RefillRequester interface {
	RequestRefill(userID string) bool
}
