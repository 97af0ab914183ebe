package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/adapters/itunes"
	"github.com/ewilliams-labs/otodoki/internal/adapters/postgres"
	"github.com/ewilliams-labs/otodoki/internal/adapters/rest"
	"github.com/ewilliams-labs/otodoki/internal/adapters/sqlite"
	"github.com/ewilliams-labs/otodoki/internal/auth"
	"github.com/ewilliams-labs/otodoki/internal/config"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
	"github.com/ewilliams-labs/otodoki/internal/core/services"
	"github.com/ewilliams-labs/otodoki/internal/logging"
	"github.com/ewilliams-labs/otodoki/internal/queue"
	"github.com/ewilliams-labs/otodoki/internal/strategy"
	"github.com/ewilliams-labs/otodoki/internal/worker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		l := logging.Logger()
		l.Fatal().Err(err).Msg("otodoki exited")
	}
}

func run() error {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Driven adapters
	repo, closeRepo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeRepo()

	store, closeStore, err := openQueueStore(ctx, cfg.Queue)
	if err != nil {
		return err
	}
	defer closeStore()

	candidates, err := queue.NewManager(store, cfg.Queue.Capacity, cfg.Queue.LowWatermark, logger)
	if err != nil {
		return err
	}

	catalog := itunes.NewClient(nil, itunes.Config{
		BaseURL:           cfg.Catalog.BaseURL,
		ChartsURL:         cfg.Catalog.ChartsURL,
		Country:           cfg.Catalog.Country,
		Timeout:           cfg.Catalog.Timeout,
		MaxRetries:        cfg.Catalog.MaxRetries,
		RetryBackoff:      cfg.Catalog.RetryBackoff,
		RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
		Burst:             cfg.Catalog.Burst,
		BreakerFailures:   cfg.Catalog.BreakerFailures,
		BreakerTimeout:    cfg.Catalog.BreakerTimeout,
		ChartTTL:          cfg.Catalog.ChartTTL,
		OAuth: itunes.OAuthConfig{
			TokenURL:     cfg.Catalog.OAuth.TokenURL,
			ClientID:     cfg.Catalog.OAuth.ClientID,
			ClientSecret: cfg.Catalog.OAuth.ClientSecret,
			Scopes:       cfg.Catalog.OAuth.Scopes,
		},
	}, logger)

	// 3. Strategies and the refill worker
	registry := strategy.NewRegistry(logger)
	if !registry.Has(cfg.Worker.Strategy) {
		return fmt.Errorf("worker.strategy %q is not registered (known: %v)", cfg.Worker.Strategy, registry.Names())
	}

	pool := worker.NewPool(candidates, catalog, registry, strategy.Options{
		Store:    repo,
		Charts:   catalog,
		Keywords: cfg.Worker.Keywords,
		Genres:   cfg.Worker.Genres,
	}, worker.Config{
		Strategy:    cfg.Worker.Strategy,
		Interval:    cfg.Worker.Interval,
		BatchSize:   cfg.Worker.BatchSize,
		MaxAttempts: cfg.Worker.MaxAttempts,
		Workers:     cfg.Worker.Workers,
		QueueSize:   cfg.Worker.JobQueueSize,
	}, logger)

	// Left nil when the worker is disabled.
	var (
		refill    ports.RefillRequester
		workerCtl rest.RefillController
	)
	if cfg.Worker.Enabled {
		pool.Start(ctx)
		defer pool.Stop()
		refill = pool
		workerCtl = pool
	}

	// 4. Core services. Each consumer holds its own analyzer.
	suggestions := services.NewSuggestionsService(
		candidates,
		refill,
		services.NewPersonalizationService(services.NewPreferenceAnalyzer(repo, logger), logger),
		services.SuggestionsConfig{
			DefaultLimit: cfg.Suggestions.DefaultLimit,
			MaxLimit:     cfg.Suggestions.MaxLimit,
			MinLikes:     cfg.Personalization.MinLikes,
		},
		logger,
	)
	evaluations := services.NewEvaluationService(repo, services.NewPreferenceAnalyzer(repo, logger), logger)
	history := services.NewPlayHistoryService(repo, logger)

	var authOpts []auth.Option
	if cfg.Security.JWTIssuer != "" {
		authOpts = append(authOpts, auth.WithIssuer(cfg.Security.JWTIssuer))
	}
	if cfg.Security.JWTAudience != "" {
		authOpts = append(authOpts, auth.WithAudience(cfg.Security.JWTAudience))
	}
	validator := auth.NewValidator(cfg.Security.JWTSecret, authOpts...)
	if !validator.Enabled() {
		logger.Warn().Msg("security.jwt_secret is empty; authenticated routes will reject every request")
	}

	// 5. Driving adapter
	handler := rest.NewHandler(rest.Deps{
		Suggestions: suggestions,
		Evaluations: evaluations,
		History:     history,
		Queue:       candidates,
		Worker:      workerCtl,
		Strategies:  registry,
		Auth:        validator,
	}, rest.Config{
		ServiceName:       "otodoki",
		Version:           version,
		CORSOrigins:       cfg.Security.CORSOrigins,
		RateLimitRequests: cfg.Security.RateLimitRequests,
		RateLimitWindow:   cfg.Security.RateLimitWindow,
		SuggestionsRate:   cfg.Suggestions.RatePerSecond,
		SuggestionsBurst:  cfg.Suggestions.Burst,
		MinLikes:          cfg.Personalization.MinLikes,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	return serve(ctx, srv, cfg.Server.ShutdownTimeout, logger)
}

func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) error {
	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("otodoki api listening")
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// repository is what both storage drivers provide.
type repository interface {
	ports.EvaluationRepository
	ports.PlayHistoryRepository
}

func openRepository(ctx context.Context, cfg config.StorageConfig) (repository, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		a, err := sqlite.NewAdapter(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return a, func() { _ = a.Close() }, nil
	case "postgres":
		a, err := postgres.NewAdapter(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return a, func() { _ = a.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

func openQueueStore(ctx context.Context, cfg config.QueueConfig) (queue.Store, func(), error) {
	switch cfg.Backend {
	case "memory":
		return queue.NewMemoryStore(), func() {}, nil
	case "redis":
		s, err := queue.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis queue: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue backend: %s", cfg.Backend)
	}
}
