// Package worker keeps the candidate queue topped up in the background.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
	"github.com/ewilliams-labs/otodoki/internal/metrics"
	"github.com/ewilliams-labs/otodoki/internal/strategy"
)

// ErrRefillInProgress is returned when a refill is requested while another runs.
var ErrRefillInProgress = errors.New("worker: refill already in progress")

// Job asks for a refill. A job with a UserID is biased toward that user's
// preferences; one without uses the configured strategy.
type Job struct {
	UserID string
}

// Config controls refill behaviour.
type Config struct {
	// Strategy is the registry name used for scheduled refills.
	Strategy string
	// Interval between checks of the queue's low watermark.
	Interval time.Duration
	// BatchSize is the catalog search limit per attempt.
	BatchSize int
	// MaxAttempts bounds the searches made by one refill.
	MaxAttempts int
	Workers     int
	QueueSize   int
}

// Stats is a snapshot of refill activity.
type Stats struct {
	Running       bool       `json:"running"`
	Refilling     bool       `json:"refilling"`
	TotalRefills  int        `json:"total_refills"`
	FailedRefills int        `json:"failed_refills"`
	TracksAdded   int        `json:"tracks_added"`
	DroppedJobs   int        `json:"dropped_jobs"`
	LastRefillAt  *time.Time `json:"last_refill_at"`
	LastError     string     `json:"last_error,omitempty"`
	LastStrategy  string     `json:"last_strategy,omitempty"`
}

// Pool runs scheduled refills and per-user refill jobs.
type Pool struct {
	queue    ports.CandidateQueue
	catalog  ports.CatalogSearcher
	registry *strategy.Registry
	base     strategy.Options
	cfg      Config
	logger   zerolog.Logger

	jobs chan Job
	wg   sync.WaitGroup

	// closeMu guards jobs against Submit after Stop.
	closeMu sync.RWMutex
	closed  bool
	cancel  context.CancelFunc

	refilling atomic.Bool

	statsMu sync.Mutex
	stats   Stats
}

var _ ports.RefillRequester = (*Pool)(nil)

// NewPool creates a refill pool. base supplies the strategy construction
// arguments shared by every refill; per-user jobs add the user ID.
func NewPool(queue ports.CandidateQueue, catalog ports.CatalogSearcher, registry *strategy.Registry, base strategy.Options, cfg Config, logger zerolog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Strategy == "" {
		cfg.Strategy = strategy.NameChartKeyword
	}
	return &Pool{
		queue:    queue,
		catalog:  catalog,
		registry: registry,
		base:     base,
		cfg:      cfg,
		logger:   logger.With().Str("component", "refill_worker").Logger(),
		jobs:     make(chan Job, cfg.QueueSize),
	}
}

// Start launches the job workers and the watermark loop. They run until
// Stop is called or ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.closeMu.Lock()
	p.cancel = cancel
	p.closeMu.Unlock()

	p.setRunning(true)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.processJob(ctx, job)
			}
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx)
	}()

	p.logger.Info().
		Int("workers", p.cfg.Workers).
		Str("strategy", p.cfg.Strategy).
		Dur("interval", p.cfg.Interval).
		Msg("refill worker started")
}

// Stop cancels in-flight refills and waits for workers to exit.
func (p *Pool) Stop() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	close(p.jobs)
	p.closeMu.Unlock()

	p.wg.Wait()
	p.setRunning(false)
	p.logger.Info().Msg("refill worker stopped")
}

// Submit queues a job without blocking. It reports false when the job was dropped.
func (p *Pool) Submit(job Job) bool {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- job:
		return true
	default:
		metrics.RefillJobsDropped.Inc()
		p.statsMu.Lock()
		p.stats.DroppedJobs++
		p.statsMu.Unlock()
		p.logger.Warn().Str("user_id", job.UserID).Msg("job queue full, dropping refill job")
		return false
	}
}

// RequestRefill submits a refill job for userID, which may be empty.
func (p *Pool) RequestRefill(userID string) bool {
	return p.Submit(Job{UserID: userID})
}

// TriggerRefill runs one refill with the configured strategy and reports
// whether it completed. It returns false if a refill is already running.
func (p *Pool) TriggerRefill(ctx context.Context) bool {
	_, err := p.refill(ctx, p.cfg.Strategy, "", true)
	return err == nil
}

// Stats returns a snapshot of refill activity.
func (p *Pool) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	s := p.stats
	s.Refilling = p.refilling.Load()
	return s
}

func (p *Pool) loop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.checkAndRefill(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkAndRefill(ctx)
		}
	}
}

func (p *Pool) checkAndRefill(ctx context.Context) {
	st, err := p.queue.Stats(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to read queue stats")
		return
	}
	if !st.IsLow {
		return
	}
	if _, err := p.refill(ctx, p.cfg.Strategy, "", false); err != nil && !errors.Is(err, ErrRefillInProgress) {
		p.logger.Warn().Err(err).Msg("scheduled refill failed")
	}
}

func (p *Pool) processJob(ctx context.Context, job Job) {
	name := strategy.NameUserPreference
	if job.UserID == "" {
		name = p.cfg.Strategy
	}
	added, err := p.refill(ctx, name, job.UserID, true)
	switch {
	case errors.Is(err, ErrRefillInProgress):
		p.logger.Debug().Str("user_id", job.UserID).Msg("refill already running, skipping job")
	case err != nil:
		p.logger.Warn().Str("user_id", job.UserID).Err(err).Msg("requested refill failed")
	default:
		p.logger.Info().Str("user_id", job.UserID).Int("added", added).Msg("requested refill finished")
	}
}

// refill searches the catalog with the named strategy until the queue is
// above its low watermark or MaxAttempts is reached. With force set, at
// least one search is made even if the queue is not low.
func (p *Pool) refill(ctx context.Context, name, userID string, force bool) (int, error) {
	if !p.refilling.CompareAndSwap(false, true) {
		return 0, ErrRefillInProgress
	}
	defer p.refilling.Store(false)

	opts := p.base
	opts.UserID = userID
	strat, err := p.registry.Resolve(name, opts)
	if err != nil {
		p.recordRefill(name, 0, err)
		return 0, err
	}

	total := 0
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 || !force {
			st, err := p.queue.Stats(ctx)
			if err != nil {
				lastErr = err
				break
			}
			if !st.IsLow {
				break
			}
		}

		added, err := p.fetchOnce(ctx, strat)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		total += added
	}

	if total == 0 && lastErr != nil {
		p.recordRefill(name, 0, lastErr)
		return 0, lastErr
	}
	p.recordRefill(name, total, nil)
	return total, nil
}

func (p *Pool) fetchOnce(ctx context.Context, strat strategy.Strategy) (int, error) {
	params, err := strat.GenerateParams(ctx)
	if err != nil {
		return 0, fmt.Errorf("worker: generate params: %w", err)
	}

	tracks, err := p.catalog.Search(ctx, params, p.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("worker: search %q: %w", params.Term, err)
	}

	usable := make([]domain.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" || t.PreviewURL == "" {
			continue
		}
		usable = append(usable, t)
	}

	added, err := p.queue.Enqueue(ctx, usable)
	if err != nil {
		return added, fmt.Errorf("worker: enqueue: %w", err)
	}
	p.logger.Debug().
		Str("strategy", strat.Name()).
		Str("term", params.Term).
		Str("attribute", params.Attribute).
		Int("found", len(tracks)).
		Int("added", added).
		Msg("refill search finished")
	return added, nil
}

func (p *Pool) recordRefill(name string, added int, err error) {
	now := time.Now().UTC()

	p.statsMu.Lock()
	p.stats.TotalRefills++
	p.stats.LastRefillAt = &now
	p.stats.LastStrategy = name
	if err != nil {
		p.stats.FailedRefills++
		p.stats.LastError = err.Error()
	} else {
		p.stats.TracksAdded += added
		p.stats.LastError = ""
	}
	p.statsMu.Unlock()

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.RefillRuns.WithLabelValues(name, result).Inc()
	metrics.RefillTracksAdded.Add(float64(added))
}

func (p *Pool) setRunning(running bool) {
	p.statsMu.Lock()
	p.stats.Running = running
	p.statsMu.Unlock()
}
