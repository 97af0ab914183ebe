package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

// TestPreferenceAnalyzer_Analyze verifies profile construction and degrade paths.
func TestPreferenceAnalyzer_Analyze(t *testing.T) {
	liked := []domain.TrackCache{
		{ExternalID: "1", Artist: "Rock Band", PrimaryGenre: "Rock"},
		{ExternalID: "2", Artist: "Pop Star", PrimaryGenre: "Pop"},
		{ExternalID: "3", Artist: "Rock Band", PrimaryGenre: "Rock"},
		{ExternalID: "4", Artist: "", PrimaryGenre: ""},
	}
	disliked := []domain.TrackCache{
		{ExternalID: "5", Artist: "Jazz Artist", PrimaryGenre: "Jazz"},
	}

	tests := []struct {
		name        string
		store       *mockEvaluationReader
		minLikes    int
		wantOutcome AnalysisOutcome
		wantPrefs   *domain.UserPreferences
	}{
		{
			name:        "Enough likes",
			store:       &mockEvaluationReader{liked: liked, disliked: disliked},
			minLikes:    3,
			wantOutcome: AnalysisPresent,
			wantPrefs: &domain.UserPreferences{
				LikedGenres:     []domain.FeatureCount{{Value: "Rock", Count: 2}, {Value: "Pop", Count: 1}},
				LikedArtists:    []domain.FeatureCount{{Value: "Rock Band", Count: 2}, {Value: "Pop Star", Count: 1}},
				DislikedGenres:  []domain.FeatureCount{{Value: "Jazz", Count: 1}},
				DislikedArtists: []domain.FeatureCount{{Value: "Jazz Artist", Count: 1}},
				TotalLikes:      4,
				TotalDislikes:   1,
			},
		},
		{
			name:        "Exactly min likes",
			store:       &mockEvaluationReader{liked: liked[:3]},
			minLikes:    3,
			wantOutcome: AnalysisPresent,
			wantPrefs: &domain.UserPreferences{
				LikedGenres:     []domain.FeatureCount{{Value: "Rock", Count: 2}, {Value: "Pop", Count: 1}},
				LikedArtists:    []domain.FeatureCount{{Value: "Rock Band", Count: 2}, {Value: "Pop Star", Count: 1}},
				DislikedGenres:  []domain.FeatureCount{},
				DislikedArtists: []domain.FeatureCount{},
				TotalLikes:      3,
				TotalDislikes:   0,
			},
		},
		{
			name:        "Too few likes",
			store:       &mockEvaluationReader{liked: liked[:2], disliked: disliked},
			minLikes:    3,
			wantOutcome: AnalysisInsufficient,
		},
		{
			name: "Dislikes do not count toward threshold",
			store: &mockEvaluationReader{
				liked:    liked[:1],
				disliked: append(append([]domain.TrackCache{}, disliked...), disliked...),
			},
			minLikes:    2,
			wantOutcome: AnalysisInsufficient,
		},
		{
			name:        "No evaluations",
			store:       &mockEvaluationReader{},
			minLikes:    DefaultMinLikes,
			wantOutcome: AnalysisInsufficient,
		},
		{
			name:        "Liked read fails",
			store:       &mockEvaluationReader{liked: liked, likedErr: errors.New("db down")},
			minLikes:    3,
			wantOutcome: AnalysisFailed,
		},
		{
			name:        "Disliked read fails",
			store:       &mockEvaluationReader{liked: liked, dislikedErr: errors.New("db down")},
			minLikes:    3,
			wantOutcome: AnalysisFailed,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			a := NewPreferenceAnalyzer(tc.store, zerolog.Nop())
			got := a.Analyze(context.Background(), "user-1", tc.minLikes)

			if got.Outcome != tc.wantOutcome {
				t.Fatalf("outcome: got %v, want %v (err=%v)", got.Outcome, tc.wantOutcome, got.Err)
			}
			if tc.wantOutcome == AnalysisFailed && got.Err == nil {
				t.Fatalf("expected failure cause to be carried")
			}
			if tc.wantPrefs == nil {
				if got.Preferences != nil {
					t.Fatalf("expected no preferences, got %+v", got.Preferences)
				}
				return
			}
			if !reflect.DeepEqual(got.Preferences, tc.wantPrefs) {
				t.Fatalf("preferences: got %+v, want %+v", got.Preferences, tc.wantPrefs)
			}
			if tc.store.calls() != 2 {
				t.Fatalf("store calls: got %d, want 2", tc.store.calls())
			}
		})
	}
}

func TestPreferenceAnalyzer_NilStore(t *testing.T) {
	a := NewPreferenceAnalyzer(nil, zerolog.Nop())
	got := a.Analyze(context.Background(), "user-1", 1)
	if got.Outcome != AnalysisFailed {
		t.Fatalf("outcome: got %v, want %v", got.Outcome, AnalysisFailed)
	}
}

func TestPreferenceAnalyzer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewPreferenceAnalyzer(ctxReader{}, zerolog.Nop())
	got := a.Analyze(ctx, "user-1", 1)
	if got.Outcome != AnalysisFailed {
		t.Fatalf("outcome: got %v, want %v", got.Outcome, AnalysisFailed)
	}
	if !errors.Is(got.Err, context.Canceled) {
		t.Fatalf("err: got %v, want context.Canceled", got.Err)
	}
}

// --- Mocks ---

// mockEvaluationReader returns canned tracks per status.
type mockEvaluationReader struct {
	liked       []domain.TrackCache
	disliked    []domain.TrackCache
	likedErr    error
	dislikedErr error

	mu sync.Mutex
	n  int
}

func (m *mockEvaluationReader) TracksByStatus(ctx context.Context, userID string, status domain.EvaluationStatus) ([]domain.TrackCache, error) {
	m.mu.Lock()
	m.n++
	m.mu.Unlock()

	if status == domain.StatusLike {
		return m.liked, m.likedErr
	}
	return m.disliked, m.dislikedErr
}

func (m *mockEvaluationReader) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

type ctxReader struct{}

func (ctxReader) TracksByStatus(ctx context.Context, userID string, status domain.EvaluationStatus) ([]domain.TrackCache, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stubSource returns a fixed analysis and counts calls.
type stubSource struct {
	analysis Analysis
	called   int
}

func (s *stubSource) Analyze(ctx context.Context, userID string, minLikes int) Analysis {
	s.called++
	return s.analysis
}
