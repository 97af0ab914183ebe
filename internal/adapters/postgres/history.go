package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
)

var _ ports.PlayHistoryRepository = (*Adapter)(nil)

// RecordPlay caches the track and appends a play to the user's history.
func (a *Adapter) RecordPlay(ctx context.Context, track domain.TrackCache, play domain.Play) (domain.Play, error) {
	if track.ExternalID == "" {
		return domain.Play{}, domain.ErrInvalidTrack
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return domain.Play{}, fmt.Errorf("postgres adapter: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	trackID, err := upsertTrack(ctx, tx, track)
	if err != nil {
		return domain.Play{}, err
	}

	play.ID = uuid.NewString()
	play.TrackID = trackID
	play.ExternalTrackID = track.ExternalID
	if play.PlayedAt.IsZero() {
		play.PlayedAt = time.Now().UTC()
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO play_history (id, user_id, track_id, external_track_id, played_ms, completed, source, played_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, play.ID, play.UserID, trackID, play.ExternalTrackID, play.PlayedMs, play.Completed, play.Source, play.PlayedAt); err != nil {
		return domain.Play{}, fmt.Errorf("postgres adapter: failed to save play: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Play{}, fmt.Errorf("postgres adapter: transaction commit failed: %w", err)
	}
	return play, nil
}

// ListPlays returns the user's plays, most recent first.
func (a *Adapter) ListPlays(ctx context.Context, userID string, limit int) ([]domain.PlayedTrack, error) {
	query := `
		SELECT p.id, p.user_id, p.track_id, p.external_track_id, p.played_ms, p.completed, p.source, p.played_at,
			` + trackColumns + `
		FROM play_history p
		JOIN track_cache t ON t.id = p.track_id
		WHERE p.user_id = $1
		ORDER BY p.played_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres adapter: failed to list plays: %w", err)
	}
	defer rows.Close()

	out := []domain.PlayedTrack{}
	for rows.Next() {
		var pt domain.PlayedTrack
		var tc domain.TrackCache
		if err := rows.Scan(
			&pt.Play.ID, &pt.Play.UserID, &pt.Play.TrackID, &pt.Play.ExternalTrackID,
			&pt.Play.PlayedMs, &pt.Play.Completed, &pt.Play.Source, &pt.Play.PlayedAt,
			&tc.ID, &tc.ExternalID, &tc.Source, &tc.Title, &tc.Artist, &tc.Album,
			&tc.PrimaryGenre, &tc.DurationMs, &tc.ArtworkURL, &tc.PreviewURL,
		); err != nil {
			return nil, fmt.Errorf("postgres adapter: failed to scan play: %w", err)
		}
		pt.Track = tc.ToTrack()
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres adapter: failed to iterate plays: %w", err)
	}
	return out, nil
}
