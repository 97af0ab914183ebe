package strategy

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
)

// chartArtistLimit is how many chart entries the chart strategy samples from.
const chartArtistLimit = 50

// DefaultKeywords is the vocabulary for the random keyword strategy.
var DefaultKeywords = []string{
	"love", "night", "summer", "dance", "dream", "heart", "city", "fire",
	"rain", "sky", "road", "light", "blue", "gold", "home", "wild",
}

// DefaultGenres is the vocabulary for the genre search strategy.
var DefaultGenres = []string{
	"Pop", "Rock", "Alternative", "Hip-Hop/Rap", "R&B/Soul", "Electronic",
	"Dance", "Jazz", "Country", "Singer/Songwriter", "J-Pop", "Indie Pop",
}

// ChartKeywordStrategy searches for an artist currently on the charts. When
// the chart feed is unavailable it falls back to a random keyword.
type ChartKeywordStrategy struct {
	charts   ports.ChartSource
	keywords []string
	rng      Rand
	logger   zerolog.Logger
}

var _ Strategy = (*ChartKeywordStrategy)(nil)

// NewChartKeywordStrategy constructs a ChartKeywordStrategy. charts may be nil.
func NewChartKeywordStrategy(charts ports.ChartSource, keywords []string, rng Rand, logger zerolog.Logger) *ChartKeywordStrategy {
	if rng == nil {
		rng = DefaultRand()
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return &ChartKeywordStrategy{
		charts:   charts,
		keywords: keywords,
		rng:      rng,
		logger:   logger.With().Str("strategy", NameChartKeyword).Logger(),
	}
}

func (s *ChartKeywordStrategy) Name() string { return NameChartKeyword }

func (s *ChartKeywordStrategy) GenerateParams(ctx context.Context) (domain.SearchParams, error) {
	if s.charts != nil {
		artists, err := s.charts.TopChartArtists(ctx, chartArtistLimit)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("chart feed unavailable, using keyword")
		case len(artists) == 0:
			s.logger.Warn().Msg("chart feed empty, using keyword")
		default:
			return domain.SearchParams{
				Term:      pick(s.rng, artists),
				Entity:    domain.EntitySong,
				Attribute: domain.AttributeArtistTerm,
			}, nil
		}
	}
	return domain.SearchParams{Term: pick(s.rng, s.keywords), Entity: domain.EntitySong}, nil
}

// RandomKeywordStrategy searches for a random word from its vocabulary.
type RandomKeywordStrategy struct {
	keywords []string
	rng      Rand
}

var _ Strategy = (*RandomKeywordStrategy)(nil)

// NewRandomKeywordStrategy picks from keywords, or DefaultKeywords when empty.
func NewRandomKeywordStrategy(keywords []string, rng Rand) *RandomKeywordStrategy {
	if rng == nil {
		rng = DefaultRand()
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return &RandomKeywordStrategy{keywords: keywords, rng: rng}
}

func (s *RandomKeywordStrategy) Name() string { return NameRandomKeyword }

func (s *RandomKeywordStrategy) GenerateParams(ctx context.Context) (domain.SearchParams, error) {
	return domain.SearchParams{Term: pick(s.rng, s.keywords), Entity: domain.EntitySong}, nil
}

// GenreSearchStrategy searches a random genre by the catalog's genre index.
type GenreSearchStrategy struct {
	genres []string
	rng    Rand
}

var _ Strategy = (*GenreSearchStrategy)(nil)

// NewGenreSearchStrategy picks from genres, or DefaultGenres when empty.
func NewGenreSearchStrategy(genres []string, rng Rand) *GenreSearchStrategy {
	if rng == nil {
		rng = DefaultRand()
	}
	if len(genres) == 0 {
		genres = DefaultGenres
	}
	return &GenreSearchStrategy{genres: genres, rng: rng}
}

func (s *GenreSearchStrategy) Name() string { return NameGenreSearch }

func (s *GenreSearchStrategy) GenerateParams(ctx context.Context) (domain.SearchParams, error) {
	return domain.SearchParams{
		Term:      pick(s.rng, s.genres),
		Entity:    domain.EntitySong,
		Attribute: domain.AttributeGenreIndex,
	}, nil
}
