package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ewilliams-labs/otodoki/internal/auth"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
	"github.com/ewilliams-labs/otodoki/internal/core/services"
	"github.com/ewilliams-labs/otodoki/internal/worker"
)

// RefillController is the part of the worker pool exposed over HTTP.
type RefillController interface {
	Stats() worker.Stats
	TriggerRefill(ctx context.Context) bool
}

// StrategyLister lists the registered strategy names.
type StrategyLister interface {
	Names() []string
}

// Config tunes the HTTP surface.
type Config struct {
	ServiceName string
	Version     string

	CORSOrigins []string

	// RateLimitRequests per RateLimitWindow per client IP on /api; zero disables it.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// SuggestionsRate and SuggestionsBurst size the global token bucket for
	// suggestions; a zero rate disables it.
	SuggestionsRate  float64
	SuggestionsBurst int

	MinLikes int
}

// Deps are the collaborators the handler routes to. Worker may be nil when
// the background refill is disabled.
type Deps struct {
	Suggestions *services.SuggestionsService
	Evaluations *services.EvaluationService
	History     *services.PlayHistoryService
	Queue       ports.CandidateQueue
	Worker      RefillController
	Strategies  StrategyLister
	Auth        *auth.Validator
}

// Handler manages the HTTP interface for our application.
type Handler struct {
	deps    Deps
	cfg     Config
	limiter *rate.Limiter
	logger  zerolog.Logger

	startedAt time.Time
	now       func() time.Time

	router chi.Router
}

// NewHandler initializes the HTTP adapter and sets up routes.
func NewHandler(deps Deps, cfg Config, logger zerolog.Logger) *Handler {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "otodoki"
	}
	if cfg.MinLikes < 1 {
		cfg.MinLikes = services.DefaultMinLikes
	}
	if deps.Auth == nil {
		deps.Auth = auth.NewValidator("")
	}

	h := &Handler{
		deps:      deps,
		cfg:       cfg,
		logger:    logger.With().Str("component", "http").Logger(),
		startedAt: time.Now(),
		now:       time.Now,
		router:    chi.NewRouter(),
	}
	if cfg.SuggestionsRate > 0 {
		burst := max(cfg.SuggestionsBurst, 1)
		h.limiter = rate.NewLimiter(rate.Limit(cfg.SuggestionsRate), burst)
	}

	h.routes()
	return h
}

// ServeHTTP satisfies the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	r := h.router

	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(h.accessLog)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Retry-After", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/", h.Root)
	r.Get("/health", h.HealthCheck)
	r.Get("/queue/stats", h.QueueStats)
	r.Get("/queue/health", h.QueueHealth)
	r.Get("/worker/stats", h.WorkerStats)
	r.Post("/worker/trigger-refill", h.TriggerRefill)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if h.cfg.RateLimitRequests > 0 && h.cfg.RateLimitWindow > 0 {
			r.Use(httprate.LimitByIP(h.cfg.RateLimitRequests, h.cfg.RateLimitWindow))
		}

		r.With(h.deps.Auth.Optional).Get("/tracks/suggestions", h.GetSuggestions)
		r.Get("/tracks/suggestions/stats", h.SuggestionsLimiterStats)
		r.Get("/strategies", h.ListStrategies)

		r.Group(func(r chi.Router) {
			r.Use(h.deps.Auth.Required(h.unauthorized))
			r.Post("/evaluations", h.CreateEvaluation)
			r.Get("/evaluations", h.ListEvaluations)
			r.Delete("/evaluations/{externalId}", h.DeleteEvaluation)
			r.Get("/preferences", h.GetPreferences)
			r.Post("/history", h.RecordPlay)
			r.Get("/history", h.ListHistory)
			r.Get("/export/evaluations", h.ExportEvaluations)
			r.Get("/export/history", h.ExportHistory)
		})
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="otodoki"`)
	writeErrorWithCode(w, http.StatusUnauthorized, "authentication required", errCodeUnauthorized)
}
