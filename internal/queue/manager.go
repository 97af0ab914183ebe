// Package queue holds the warm pool of candidate tracks that suggestions are
// served from.
package queue

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
	"github.com/ewilliams-labs/otodoki/internal/metrics"
)

// Store is a FIFO backend for the Manager. Implementations keep at most one
// entry per track ID.
type Store interface {
	// Len returns the number of queued tracks.
	Len(ctx context.Context) (int, error)
	// Add appends up to max tracks whose IDs are not already queued and
	// returns how many were added.
	Add(ctx context.Context, tracks []domain.Track, max int) (int, error)
	// Take removes tracks from the head until n have been collected or the
	// queue is empty. Tracks whose ID is in exclude are removed but not returned.
	Take(ctx context.Context, n int, exclude map[string]struct{}) ([]domain.Track, error)
}

// Manager is a bounded, de-duplicated FIFO of candidate tracks.
type Manager struct {
	store        Store
	capacity     int
	lowWatermark int
	logger       zerolog.Logger

	mu sync.Mutex
}

var _ ports.CandidateQueue = (*Manager)(nil)

// NewManager returns a Manager over store. lowWatermark must be below capacity.
func NewManager(store Store, capacity, lowWatermark int, logger zerolog.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("queue: store is required")
	}
	if capacity < 1 {
		return nil, fmt.Errorf("queue: capacity must be positive, got %d", capacity)
	}
	if lowWatermark < 0 || lowWatermark >= capacity {
		return nil, fmt.Errorf("queue: low watermark %d must be in [0, %d)", lowWatermark, capacity)
	}
	return &Manager{
		store:        store,
		capacity:     capacity,
		lowWatermark: lowWatermark,
		logger:       logger.With().Str("component", "queue").Logger(),
	}, nil
}

// Enqueue appends tracks until the queue is full. Tracks without an ID or
// already queued are skipped. It returns the number actually added.
func (m *Manager) Enqueue(ctx context.Context, tracks []domain.Track) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size, err := m.store.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue: enqueue: %w", err)
	}
	room := m.capacity - size
	if room <= 0 {
		m.logger.Debug().Int("size", size).Msg("queue full, dropping batch")
		return 0, nil
	}

	batch := make([]domain.Track, 0, len(tracks))
	seen := make(map[string]struct{}, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		batch = append(batch, t)
	}

	added, err := m.store.Add(ctx, batch, room)
	if err != nil {
		return added, fmt.Errorf("queue: enqueue: %w", err)
	}
	metrics.QueueSize.Set(float64(size + added))
	m.logger.Debug().Int("offered", len(tracks)).Int("added", added).Int("size", size+added).Msg("enqueued tracks")
	return added, nil
}

// Dequeue removes and returns up to n tracks from the head of the queue,
// skipping tracks whose ID is in exclude.
func (m *Manager) Dequeue(ctx context.Context, n int, exclude map[string]struct{}) ([]domain.Track, error) {
	if n <= 0 {
		return []domain.Track{}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tracks, err := m.store.Take(ctx, n, exclude)
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	if size, err := m.store.Len(ctx); err == nil {
		metrics.QueueSize.Set(float64(size))
	}
	return tracks, nil
}

// Stats returns a snapshot of the queue. Utilization is a percentage.
func (m *Manager) Stats(ctx context.Context) (ports.QueueStats, error) {
	size, err := m.store.Len(ctx)
	if err != nil {
		return ports.QueueStats{}, fmt.Errorf("queue: stats: %w", err)
	}
	return ports.QueueStats{
		CurrentSize: size,
		MaxCapacity: m.capacity,
		Utilization: math.Round(float64(size)/float64(m.capacity)*10000) / 100,
		IsLow:       size <= m.lowWatermark,
	}, nil
}

// Capacity returns the maximum number of queued tracks.
func (m *Manager) Capacity() int { return m.capacity }
