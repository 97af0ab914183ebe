package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/metrics"
)

// Score weights. Liked matches scale with how often the value was liked;
// disliked matches are a flat penalty.
const (
	likedGenreBase        = 10.0
	dislikedGenrePenalty  = 5.0
	likedArtistBase       = 15.0
	likedArtistPerCount   = 2.0
	dislikedArtistPenalty = 10.0
)

// PersonalizeOutcome describes what Personalize did with a batch.
type PersonalizeOutcome int

const (
	PersonalizeApplied PersonalizeOutcome = iota + 1
	PersonalizeSkippedEmpty
	PersonalizeSkippedNoSignal
	PersonalizeFailed
)

func (o PersonalizeOutcome) String() string {
	switch o {
	case PersonalizeApplied:
		return "applied"
	case PersonalizeSkippedEmpty:
		return "skipped_empty"
	case PersonalizeSkippedNoSignal:
		return "skipped_no_signal"
	case PersonalizeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PersonalizeResult holds the batch to deliver. Unless Outcome is
// PersonalizeApplied, Tracks is the caller's slice, untouched.
type PersonalizeResult struct {
	Tracks  []domain.Track
	Outcome PersonalizeOutcome
	Err     error
}

// Applied reports whether the batch was reordered by preference.
func (r PersonalizeResult) Applied() bool {
	return r.Outcome == PersonalizeApplied
}

// PersonalizationService reorders candidate batches by a user's preferences.
type PersonalizationService struct {
	analyzer PreferenceSource
	logger   zerolog.Logger

	// rank is swappable so tests can exercise the failure path.
	rank func([]domain.Track, *domain.UserPreferences) []domain.Track
}

// NewPersonalizationService constructs a PersonalizationService.
func NewPersonalizationService(analyzer PreferenceSource, logger zerolog.Logger) *PersonalizationService {
	return &PersonalizationService{
		analyzer: analyzer,
		logger:   logger.With().Str("component", "personalization").Logger(),
		rank:     RankTracks,
	}
}

// Personalize returns tracks reordered for user. The result is a permutation
// of tracks; on every degraded path the original slice is returned as is.
func (s *PersonalizationService) Personalize(ctx context.Context, tracks []domain.Track, user domain.User, minLikes int) (result PersonalizeResult) {
	defer func() {
		metrics.PersonalizationOutcomes.WithLabelValues(result.Outcome.String()).Inc()
	}()

	if len(tracks) == 0 {
		return PersonalizeResult{Tracks: tracks, Outcome: PersonalizeSkippedEmpty}
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("service: personalization panicked: %v", r)
			s.logger.Error().Str("user_id", user.ID).Err(err).Msg("failed to personalize tracks")
			result = PersonalizeResult{Tracks: tracks, Outcome: PersonalizeFailed, Err: err}
		}
	}()

	analysis := s.analyzer.Analyze(ctx, user.ID, minLikes)
	if !analysis.Present() {
		s.logger.Info().
			Str("user_id", user.ID).
			Stringer("reason", analysis.Outcome).
			Msg("insufficient preference data, skipping personalization")
		return PersonalizeResult{Tracks: tracks, Outcome: PersonalizeSkippedNoSignal, Err: analysis.Err}
	}

	ranked := s.rank(tracks, analysis.Preferences)
	s.logger.Info().
		Str("user_id", user.ID).
		Int("tracks", len(ranked)).
		Int("likes", analysis.Preferences.TotalLikes).
		Msg("personalized tracks")

	return PersonalizeResult{Tracks: ranked, Outcome: PersonalizeApplied}
}

// RankTracks returns a new slice ordered by descending score. Tracks with
// equal scores keep their relative input order.
func RankTracks(tracks []domain.Track, prefs *domain.UserPreferences) []domain.Track {
	ix := newPreferenceIndex(prefs)

	type scoredTrack struct {
		track domain.Track
		score float64
	}
	scored := make([]scoredTrack, len(tracks))
	for i, t := range tracks {
		scored[i] = scoredTrack{track: t, score: ix.score(t)}
	}
	slices.SortStableFunc(scored, func(a, b scoredTrack) int {
		return cmp.Compare(b.score, a.score)
	})

	out := make([]domain.Track, len(scored))
	for i, st := range scored {
		out[i] = st.track
	}
	return out
}

// ScoreTrack scores a single track against a profile.
func ScoreTrack(t domain.Track, prefs *domain.UserPreferences) float64 {
	return newPreferenceIndex(prefs).score(t)
}

type preferenceIndex struct {
	likedGenres     map[string]int
	dislikedGenres  map[string]int
	likedArtists    map[string]int
	dislikedArtists map[string]int
}

func newPreferenceIndex(p *domain.UserPreferences) preferenceIndex {
	return preferenceIndex{
		likedGenres:     countMap(p.LikedGenres),
		dislikedGenres:  countMap(p.DislikedGenres),
		likedArtists:    countMap(p.LikedArtists),
		dislikedArtists: countMap(p.DislikedArtists),
	}
}

func countMap(counts []domain.FeatureCount) map[string]int {
	m := make(map[string]int, len(counts))
	for _, fc := range counts {
		m[fc.Value] = fc.Count
	}
	return m
}

func (ix preferenceIndex) score(t domain.Track) float64 {
	score := 0.0

	if t.Genre != "" {
		if n, ok := ix.likedGenres[t.Genre]; ok {
			score += likedGenreBase + float64(n)
		}
		if _, ok := ix.dislikedGenres[t.Genre]; ok {
			score -= dislikedGenrePenalty
		}
	}

	if t.Artist != "" {
		if n, ok := ix.likedArtists[t.Artist]; ok {
			score += likedArtistBase + likedArtistPerCount*float64(n)
		}
		if _, ok := ix.dislikedArtists[t.Artist]; ok {
			score -= dislikedArtistPenalty
		}
	}

	return score
}
