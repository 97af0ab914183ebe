package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	dsn := os.Getenv("OTODOKI_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("OTODOKI_TEST_POSTGRES_DSN not set")
	}
	a, err := NewAdapter(context.Background(), dsn)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAdapter_EvaluationLifecycle(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	// Unique IDs keep runs against a shared database independent.
	user := "test-" + uuid.NewString()
	trackID := "pg-" + uuid.NewString()

	tc, err := domain.NewTrackCache(domain.Track{ID: trackID, Title: "Song", Artist: "Rock Band", Genre: "Rock"}, "")
	if err != nil {
		t.Fatalf("NewTrackCache: %v", err)
	}

	first, err := a.SaveEvaluation(ctx, tc, domain.Evaluation{UserID: user, Status: domain.StatusLike, Source: "swipe"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	liked, err := a.TracksByStatus(ctx, user, domain.StatusLike)
	if err != nil {
		t.Fatalf("TracksByStatus: %v", err)
	}
	if len(liked) != 1 || liked[0].ExternalID != trackID || liked[0].PrimaryGenre != "Rock" {
		t.Fatalf("liked: got %+v", liked)
	}

	second, err := a.SaveEvaluation(ctx, tc, domain.Evaluation{UserID: user, Status: domain.StatusDislike, Source: "swipe"})
	if err != nil {
		t.Fatalf("re-save: %v", err)
	}
	if second.ID != first.ID || second.Status != domain.StatusDislike {
		t.Fatalf("upsert: got %+v, want id %s with DISLIKE", second, first.ID)
	}

	list, err := a.ListEvaluations(ctx, user, domain.StatusDislike, 10)
	if err != nil {
		t.Fatalf("ListEvaluations: %v", err)
	}
	if len(list) != 1 || list[0].Track.ID != trackID {
		t.Fatalf("list: got %+v", list)
	}

	if err := a.DeleteEvaluation(ctx, user, trackID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := a.DeleteEvaluation(ctx, user, trackID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestAdapter_SaveEvaluation_KeepsFirstSeenTrack(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	first := "test-" + uuid.NewString()
	second := "test-" + uuid.NewString()
	trackID := "pg-" + uuid.NewString()

	rock, err := domain.NewTrackCache(domain.Track{ID: trackID, Title: "Song", Artist: "Rock Band", Genre: "Rock"}, "")
	if err != nil {
		t.Fatalf("NewTrackCache: %v", err)
	}
	spam, err := domain.NewTrackCache(domain.Track{ID: trackID, Title: "Spam", Artist: "Spam", Genre: "Spam", Album: "Spam Album"}, "")
	if err != nil {
		t.Fatalf("NewTrackCache: %v", err)
	}

	if _, err := a.SaveEvaluation(ctx, rock, domain.Evaluation{UserID: first, Status: domain.StatusLike, Source: "swipe"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := a.SaveEvaluation(ctx, spam, domain.Evaluation{UserID: second, Status: domain.StatusDislike, Source: "swipe"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	liked, err := a.TracksByStatus(ctx, first, domain.StatusLike)
	if err != nil {
		t.Fatalf("TracksByStatus: %v", err)
	}
	if len(liked) != 1 || liked[0].Artist != "Rock Band" || liked[0].PrimaryGenre != "Rock" {
		t.Fatalf("shared track overwritten: %+v", liked)
	}
	if liked[0].Album != "Spam Album" {
		t.Fatalf("empty album not filled: got %q", liked[0].Album)
	}
}

func TestAdapter_PlayHistory(t *testing.T) {
	a := newTestAdapter(t)
	ctx := context.Background()

	user := "test-" + uuid.NewString()
	trackID := "pg-" + uuid.NewString()
	tc, err := domain.NewTrackCache(domain.Track{ID: trackID, Title: "Song", Artist: "Band", Genre: "Rock"}, "")
	if err != nil {
		t.Fatalf("NewTrackCache: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	if _, err := a.RecordPlay(ctx, tc, domain.Play{UserID: user, PlayedMs: 1000, Source: "preview", PlayedAt: base}); err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}
	latest, err := a.RecordPlay(ctx, tc, domain.Play{UserID: user, PlayedMs: 30000, Completed: true, Source: "preview", PlayedAt: base.Add(time.Second)})
	if err != nil {
		t.Fatalf("RecordPlay: %v", err)
	}

	plays, err := a.ListPlays(ctx, user, 0)
	if err != nil {
		t.Fatalf("ListPlays: %v", err)
	}
	if len(plays) != 2 || plays[0].Play.ID != latest.ID || !plays[0].Play.Completed {
		t.Fatalf("plays: got %+v", plays)
	}
	if plays[0].Track.ID != trackID {
		t.Fatalf("track not joined: %+v", plays[0].Track)
	}

	if _, err := a.RecordPlay(ctx, domain.TrackCache{}, domain.Play{UserID: user}); !errors.Is(err, domain.ErrInvalidTrack) {
		t.Fatalf("expected ErrInvalidTrack, got %v", err)
	}
}
