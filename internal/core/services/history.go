package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
)

// DefaultPlaySource is recorded when a client does not name where a play started.
const DefaultPlaySource = "preview"

// PlayHistoryService records preview playback and lists a user's listening history.
type PlayHistoryService struct {
	repo   ports.PlayHistoryRepository
	logger zerolog.Logger
}

// NewPlayHistoryService constructs a PlayHistoryService.
func NewPlayHistoryService(repo ports.PlayHistoryRepository, logger zerolog.Logger) *PlayHistoryService {
	return &PlayHistoryService{
		repo:   repo,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Record appends a play of track to the user's history. A play that reaches
// the track's duration counts as completed.
func (s *PlayHistoryService) Record(ctx context.Context, userID string, track domain.Track, playedMs int, completed bool, source string) (domain.Play, error) {
	if userID == "" {
		return domain.Play{}, domain.ErrUnauthorized
	}
	if playedMs < 0 {
		return domain.Play{}, domain.ErrInvalidPlay
	}
	cache, err := domain.NewTrackCache(track, domain.SourceITunes)
	if err != nil {
		return domain.Play{}, err
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = DefaultPlaySource
	}
	if track.DurationMs > 0 && playedMs >= track.DurationMs {
		completed = true
	}

	play, err := s.repo.RecordPlay(ctx, cache, domain.Play{
		UserID:    userID,
		PlayedMs:  playedMs,
		Completed: completed,
		Source:    source,
	})
	if err != nil {
		return domain.Play{}, fmt.Errorf("service: record play: %w", err)
	}

	s.logger.Debug().
		Str("user_id", userID).
		Str("track_id", track.ID).
		Int("played_ms", playedMs).
		Bool("completed", completed).
		Msg("recorded play")
	return play, nil
}

// List returns the user's plays, most recent first. A non-positive limit lists all.
func (s *PlayHistoryService) List(ctx context.Context, userID string, limit int) ([]domain.PlayedTrack, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	items, err := s.repo.ListPlays(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("service: list plays: %w", err)
	}
	return items, nil
}
