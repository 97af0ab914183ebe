package queue

import (
	"context"
	"sync"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	tracks []domain.Track
	ids    map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks), nil
}

func (s *MemoryStore) Add(ctx context.Context, tracks []domain.Track, max int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, t := range tracks {
		if added >= max {
			break
		}
		if _, ok := s.ids[t.ID]; ok {
			continue
		}
		s.ids[t.ID] = struct{}{}
		s.tracks = append(s.tracks, t)
		added++
	}
	return added, nil
}

func (s *MemoryStore) Take(ctx context.Context, n int, exclude map[string]struct{}) ([]domain.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Track, 0, n)
	i := 0
	for ; i < len(s.tracks) && len(out) < n; i++ {
		t := s.tracks[i]
		delete(s.ids, t.ID)
		if _, skip := exclude[t.ID]; skip {
			continue
		}
		out = append(out, t)
	}
	s.tracks = append(s.tracks[:0:0], s.tracks[i:]...)
	return out, nil
}
