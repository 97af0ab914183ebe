package strategy

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
	"github.com/ewilliams-labs/otodoki/internal/core/services"
)

const (
	// genreBias is the probability of searching by a liked genre rather than a liked artist.
	genreBias = 0.7
	// topN bounds how many of the most-liked genres or artists are sampled from.
	topN = 3
	// preferenceMinLikes is the like threshold used when loading the profile.
	preferenceMinLikes = 3
)

type loadState int

const (
	notLoaded loadState = iota
	loadedAbsent
	loadedPresent
)

// UserPreferenceStrategy biases searches toward the genres and artists a user
// has liked. Without a store or a user ID it behaves like a fallback keyword
// search, so it is safe to use for anonymous flows.
//
// The profile is loaded once on first use and kept for the life of the strategy.
type UserPreferenceStrategy struct {
	analyzer services.PreferenceSource
	userID   string
	rng      Rand
	logger   zerolog.Logger

	mu    sync.Mutex
	state loadState
	prefs *domain.UserPreferences
}

var _ Strategy = (*UserPreferenceStrategy)(nil)

// NewUserPreferenceStrategy builds a strategy for userID backed by store.
// Either may be empty. A nil rng uses DefaultRand.
func NewUserPreferenceStrategy(store ports.EvaluationReader, userID string, rng Rand, logger zerolog.Logger) *UserPreferenceStrategy {
	var analyzer services.PreferenceSource
	if store != nil {
		analyzer = services.NewPreferenceAnalyzer(store, logger)
	}
	return newUserPreferenceStrategy(analyzer, userID, rng, logger)
}

func newUserPreferenceStrategy(analyzer services.PreferenceSource, userID string, rng Rand, logger zerolog.Logger) *UserPreferenceStrategy {
	if rng == nil {
		rng = DefaultRand()
	}
	return &UserPreferenceStrategy{
		analyzer: analyzer,
		userID:   userID,
		rng:      rng,
		logger:   logger.With().Str("strategy", NameUserPreference).Logger(),
	}
}

func (s *UserPreferenceStrategy) Name() string { return NameUserPreference }

// GenerateParams never fails; every degraded path returns fallback params.
func (s *UserPreferenceStrategy) GenerateParams(ctx context.Context) (domain.SearchParams, error) {
	if s.analyzer == nil || s.userID == "" {
		s.logger.Warn().Msg("no store or user id, using fallback params")
		return FallbackParams(s.rng), nil
	}

	prefs := s.preferences(ctx)
	if prefs == nil {
		s.logger.Info().Str("user_id", s.userID).Msg("insufficient preference data, using fallback params")
		return FallbackParams(s.rng), nil
	}

	if s.rng.Float64() < genreBias {
		if genres := prefs.TopGenres(topN); len(genres) > 0 {
			genre := pick(s.rng, genres)
			s.logger.Info().Str("user_id", s.userID).Str("genre", genre).Msg("searching by preferred genre")
			return domain.SearchParams{Term: genre, Entity: domain.EntitySong, Attribute: domain.AttributeGenreIndex}, nil
		}
	}

	if artists := prefs.TopArtists(topN); len(artists) > 0 {
		artist := pick(s.rng, artists)
		s.logger.Info().Str("user_id", s.userID).Str("artist", artist).Msg("searching by preferred artist")
		return domain.SearchParams{Term: artist, Entity: domain.EntitySong, Attribute: domain.AttributeArtistTerm}, nil
	}

	return FallbackParams(s.rng), nil
}

// preferences loads the profile on first call and returns the cached result after.
func (s *UserPreferenceStrategy) preferences(ctx context.Context) *domain.UserPreferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != notLoaded {
		return s.prefs
	}

	analysis := s.analyzer.Analyze(ctx, s.userID, preferenceMinLikes)
	if analysis.Present() {
		s.state = loadedPresent
		s.prefs = analysis.Preferences
	} else {
		if analysis.Err != nil {
			s.logger.Error().Str("user_id", s.userID).Err(analysis.Err).Msg("failed to load preferences")
		}
		s.state = loadedAbsent
	}
	return s.prefs
}
