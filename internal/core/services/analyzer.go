package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
	"github.com/ewilliams-labs/otodoki/internal/metrics"
)

// DefaultMinLikes is the number of liked tracks required before a profile is built.
const DefaultMinLikes = 3

// AnalysisOutcome says whether a preference profile could be built.
type AnalysisOutcome int

const (
	// AnalysisPresent means a profile was built.
	AnalysisPresent AnalysisOutcome = iota + 1
	// AnalysisInsufficient means the user has fewer likes than required.
	AnalysisInsufficient
	// AnalysisFailed means the store could not be read.
	AnalysisFailed
)

func (o AnalysisOutcome) String() string {
	switch o {
	case AnalysisPresent:
		return "present"
	case AnalysisInsufficient:
		return "insufficient"
	case AnalysisFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Analysis is the result of a preference analysis. Preferences is only set
// when Outcome is AnalysisPresent; Err carries the swallowed cause of a failure.
type Analysis struct {
	Outcome     AnalysisOutcome
	Preferences *domain.UserPreferences
	LikedCount  int
	Err         error
}

// Present reports whether a usable profile was produced.
func (a Analysis) Present() bool {
	return a.Outcome == AnalysisPresent && a.Preferences != nil
}

// PreferenceSource produces a preference profile for a user.
type PreferenceSource interface {
	Analyze(ctx context.Context, userID string, minLikes int) Analysis
}

// PreferenceAnalyzer aggregates a user's evaluation history into a profile.
// It holds no state between calls.
type PreferenceAnalyzer struct {
	store  ports.EvaluationReader
	logger zerolog.Logger
}

var _ PreferenceSource = (*PreferenceAnalyzer)(nil)

// NewPreferenceAnalyzer constructs a PreferenceAnalyzer.
func NewPreferenceAnalyzer(store ports.EvaluationReader, logger zerolog.Logger) *PreferenceAnalyzer {
	return &PreferenceAnalyzer{
		store:  store,
		logger: logger.With().Str("component", "preference_analyzer").Logger(),
	}
}

// Analyze reads the user's liked and disliked tracks and builds a profile.
// It never returns an error: store failures are logged and reported as
// AnalysisFailed, and fewer than minLikes liked tracks yields AnalysisInsufficient.
func (a *PreferenceAnalyzer) Analyze(ctx context.Context, userID string, minLikes int) (result Analysis) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = Analysis{Outcome: AnalysisFailed, Err: fmt.Errorf("service: preference analysis panicked: %v", r)}
			a.logger.Error().Str("user_id", userID).Err(result.Err).Msg("failed to analyze preferences")
		}
		metrics.PreferenceAnalyses.WithLabelValues(result.Outcome.String()).Inc()
		metrics.PreferenceAnalysisDuration.Observe(time.Since(start).Seconds())
	}()

	if a.store == nil {
		return Analysis{Outcome: AnalysisFailed, Err: fmt.Errorf("service: no evaluation store configured")}
	}

	var liked, disliked []domain.TrackCache
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tracks, err := a.store.TracksByStatus(gctx, userID, domain.StatusLike)
		if err != nil {
			return fmt.Errorf("service: load liked tracks: %w", err)
		}
		liked = tracks
		return nil
	})
	g.Go(func() error {
		tracks, err := a.store.TracksByStatus(gctx, userID, domain.StatusDislike)
		if err != nil {
			return fmt.Errorf("service: load disliked tracks: %w", err)
		}
		disliked = tracks
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger.Error().Str("user_id", userID).Err(err).Msg("failed to analyze preferences")
		return Analysis{Outcome: AnalysisFailed, Err: err}
	}

	if len(liked) < minLikes {
		a.logger.Info().
			Str("user_id", userID).
			Int("likes", len(liked)).
			Int("min_likes", minLikes).
			Msg("insufficient likes for preference analysis")
		return Analysis{Outcome: AnalysisInsufficient, LikedCount: len(liked)}
	}

	prefs := &domain.UserPreferences{
		LikedGenres:     domain.RankByFrequency(genresOf(liked)),
		LikedArtists:    domain.RankByFrequency(artistsOf(liked)),
		DislikedGenres:  domain.RankByFrequency(genresOf(disliked)),
		DislikedArtists: domain.RankByFrequency(artistsOf(disliked)),
		TotalLikes:      len(liked),
		TotalDislikes:   len(disliked),
	}

	a.logger.Info().
		Str("user_id", userID).
		Int("genres", len(prefs.LikedGenres)).
		Int("artists", len(prefs.LikedArtists)).
		Int("likes", prefs.TotalLikes).
		Msg("analyzed preferences")

	return Analysis{Outcome: AnalysisPresent, Preferences: prefs, LikedCount: len(liked)}
}

func genresOf(tracks []domain.TrackCache) []string {
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.PrimaryGenre)
	}
	return out
}

func artistsOf(tracks []domain.TrackCache) []string {
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.Artist)
	}
	return out
}
