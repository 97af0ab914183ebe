package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
)

// DefaultEvaluationSource is recorded when a client does not name a source.
const DefaultEvaluationSource = "swipe"

// EvaluationService records likes and dislikes and exposes the derived profile.
type EvaluationService struct {
	repo     ports.EvaluationRepository
	analyzer PreferenceSource
	logger   zerolog.Logger
}

// NewEvaluationService constructs an EvaluationService.
func NewEvaluationService(repo ports.EvaluationRepository, analyzer PreferenceSource, logger zerolog.Logger) *EvaluationService {
	return &EvaluationService{
		repo:     repo,
		analyzer: analyzer,
		logger:   logger.With().Str("component", "evaluations").Logger(),
	}
}

// Record stores the user's verdict on track. status is "like" or "dislike"
// in any case.
func (s *EvaluationService) Record(ctx context.Context, userID string, track domain.Track, status, source string) (domain.Evaluation, error) {
	if userID == "" {
		return domain.Evaluation{}, domain.ErrUnauthorized
	}
	st, err := domain.ParseEvaluationStatus(status)
	if err != nil {
		return domain.Evaluation{}, err
	}
	cache, err := domain.NewTrackCache(track, domain.SourceITunes)
	if err != nil {
		return domain.Evaluation{}, err
	}
	source = strings.TrimSpace(source)
	if source == "" {
		source = DefaultEvaluationSource
	}

	ev, err := s.repo.SaveEvaluation(ctx, cache, domain.Evaluation{
		UserID: userID,
		Status: st,
		Source: source,
	})
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("service: record evaluation: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("track_id", track.ID).
		Str("status", string(st)).
		Msg("recorded evaluation")
	return ev, nil
}

// List returns the user's evaluations. An empty status lists both verdicts.
func (s *EvaluationService) List(ctx context.Context, userID, status string, limit int) ([]domain.EvaluatedTrack, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	var st domain.EvaluationStatus
	if strings.TrimSpace(status) != "" {
		parsed, err := domain.ParseEvaluationStatus(status)
		if err != nil {
			return nil, err
		}
		st = parsed
	}

	items, err := s.repo.ListEvaluations(ctx, userID, st, limit)
	if err != nil {
		return nil, fmt.Errorf("service: list evaluations: %w", err)
	}
	return items, nil
}

// Delete removes the user's verdict on the track with externalID.
func (s *EvaluationService) Delete(ctx context.Context, userID, externalID string) error {
	if userID == "" {
		return domain.ErrUnauthorized
	}
	if err := s.repo.DeleteEvaluation(ctx, userID, externalID); err != nil {
		return fmt.Errorf("service: delete evaluation: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("track_id", externalID).Msg("deleted evaluation")
	return nil
}

// Preferences computes the user's current profile.
func (s *EvaluationService) Preferences(ctx context.Context, userID string, minLikes int) Analysis {
	return s.analyzer.Analyze(ctx, userID, minLikes)
}
