package strategy

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/core/ports"
)

// ErrStrategyNotFound indicates no strategy could be built for a name.
var ErrStrategyNotFound = errors.New("strategy not found")

// NotFoundError names the strategy that could not be resolved.
type NotFoundError struct {
	Name string
	Err  error
}

func (e NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not load search strategy %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("search strategy %q not found", e.Name)
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrStrategyNotFound
}

func (e NotFoundError) Unwrap() error { return e.Err }

// Options carries the construction arguments a strategy may need. Every
// field is optional.
type Options struct {
	UserID   string
	Store    ports.EvaluationReader
	Charts   ports.ChartSource
	Keywords []string
	Genres   []string
	Rand     Rand
}

// Factory builds a strategy from Options.
type Factory func(opts Options) (Strategy, error)

// Registry maps strategy names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    zerolog.Logger
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry(logger zerolog.Logger) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		logger:    logger.With().Str("component", "strategy_registry").Logger(),
	}
	r.factories[NameChartKeyword] = func(o Options) (Strategy, error) {
		return NewChartKeywordStrategy(o.Charts, o.Keywords, o.Rand, r.logger), nil
	}
	r.factories[NameRandomKeyword] = func(o Options) (Strategy, error) {
		return NewRandomKeywordStrategy(o.Keywords, o.Rand), nil
	}
	r.factories[NameGenreSearch] = func(o Options) (Strategy, error) {
		return NewGenreSearchStrategy(o.Genres, o.Rand), nil
	}
	r.factories[NameUserPreference] = func(o Options) (Strategy, error) {
		return NewUserPreferenceStrategy(o.Store, o.UserID, o.Rand, r.logger), nil
	}
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("strategy: register %q: name and factory are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	return nil
}

// Resolve builds the strategy registered under name. It returns a
// NotFoundError when name is unknown or its factory fails.
func (r *Registry) Resolve(name string, opts Options) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Name: name}
	}

	s, err := f(opts)
	if err != nil {
		return nil, &NotFoundError{Name: name, Err: err}
	}
	if s == nil {
		return nil, &NotFoundError{Name: name, Err: errors.New("factory returned no strategy")}
	}
	return s, nil
}

// Names lists the registered strategy names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}
