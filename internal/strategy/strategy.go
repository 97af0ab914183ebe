// Package strategy generates upstream catalog search parameters. Strategies
// are resolved by name from a Registry.
package strategy

import (
	"context"
	"math/rand/v2"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

// Built-in strategy names.
const (
	NameChartKeyword   = "chart_keyword"
	NameRandomKeyword  = "random_keyword"
	NameGenreSearch    = "genre_search"
	NameUserPreference = "user_preference_search"
)

// Strategy produces the parameters for the next catalog search.
type Strategy interface {
	Name() string
	GenerateParams(ctx context.Context) (domain.SearchParams, error)
}

// Rand is the random source strategies draw from. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

// DefaultRand draws from the math/rand/v2 global source.
func DefaultRand() Rand { return globalRand{} }

// FallbackTerms is the vocabulary used when no better signal is available.
var FallbackTerms = []string{"pop", "rock", "jazz", "electronic", "indie"}

// FallbackParams returns a plain keyword search for a random fallback term.
func FallbackParams(rng Rand) domain.SearchParams {
	return domain.SearchParams{
		Term:   pick(rng, FallbackTerms),
		Entity: domain.EntitySong,
	}
}

// pick returns a uniformly random element of values, or "" if it is empty.
func pick(rng Rand, values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[rng.IntN(len(values))]
}
