// Package postgres provides a PostgreSQL-backed implementation of the evaluation store.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
)

// Adapter implements the evaluation repository port on a pgx pool.
type Adapter struct {
	pool *pgxpool.Pool
}

var _ ports.EvaluationRepository = (*Adapter)(nil)

// NewAdapter connects to dsn and runs the schema migration.
func NewAdapter(ctx context.Context, dsn string) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres adapter: failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres adapter: failed to ping db: %w", err)
	}

	a := &Adapter{pool: pool}
	if err := a.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres adapter: migration failed: %w", err)
	}
	return a, nil
}

// Close releases the pool.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

const trackColumns = `t.id, t.external_id, t.source, t.title, t.artist, COALESCE(t.album, ''),
	COALESCE(t.primary_genre, ''), COALESCE(t.duration_ms, 0), COALESCE(t.artwork_url, ''), COALESCE(t.preview_url, '')`

// TracksByStatus returns the cached tracks the user evaluated with status.
func (a *Adapter) TracksByStatus(ctx context.Context, userID string, status domain.EvaluationStatus) ([]domain.TrackCache, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT `+trackColumns+`
		FROM evaluations e
		JOIN track_cache t ON t.id = e.track_id
		WHERE e.user_id = $1 AND e.status = $2
	`, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres adapter: failed to query %s tracks: %w", status, err)
	}
	defer rows.Close()

	tracks := []domain.TrackCache{}
	for rows.Next() {
		var tc domain.TrackCache
		if err := rows.Scan(
			&tc.ID, &tc.ExternalID, &tc.Source, &tc.Title, &tc.Artist, &tc.Album,
			&tc.PrimaryGenre, &tc.DurationMs, &tc.ArtworkURL, &tc.PreviewURL,
		); err != nil {
			return nil, fmt.Errorf("postgres adapter: failed to scan track: %w", err)
		}
		tracks = append(tracks, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres adapter: failed to iterate tracks: %w", err)
	}
	return tracks, nil
}

// fillEmptyColumns keeps the first-seen catalog metadata of a cached track.
// A later write only fills columns that are still empty.
const fillEmptyColumns = `
	title = COALESCE(NULLIF(track_cache.title, ''), EXCLUDED.title),
	artist = COALESCE(NULLIF(track_cache.artist, ''), EXCLUDED.artist),
	album = COALESCE(NULLIF(track_cache.album, ''), EXCLUDED.album),
	primary_genre = COALESCE(NULLIF(track_cache.primary_genre, ''), EXCLUDED.primary_genre),
	duration_ms = COALESCE(NULLIF(track_cache.duration_ms, 0), EXCLUDED.duration_ms),
	artwork_url = COALESCE(NULLIF(track_cache.artwork_url, ''), EXCLUDED.artwork_url),
	preview_url = COALESCE(NULLIF(track_cache.preview_url, ''), EXCLUDED.preview_url)`

// SaveEvaluation upserts the track cache row and the user's evaluation of it.
// The cached track keeps the metadata it was first stored with.
func (a *Adapter) SaveEvaluation(ctx context.Context, track domain.TrackCache, eval domain.Evaluation) (domain.Evaluation, error) {
	if track.ExternalID == "" {
		return domain.Evaluation{}, domain.ErrInvalidTrack
	}
	if _, err := domain.ParseEvaluationStatus(string(eval.Status)); err != nil {
		return domain.Evaluation{}, err
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("postgres adapter: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	trackID, err := upsertTrack(ctx, tx, track)
	if err != nil {
		return domain.Evaluation{}, err
	}

	now := time.Now().UTC()
	saved := domain.Evaluation{TrackID: trackID}
	var status string
	if err := tx.QueryRow(ctx, `
		INSERT INTO evaluations (id, user_id, track_id, external_track_id, status, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (user_id, track_id) DO UPDATE SET
			status = EXCLUDED.status,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at
		RETURNING id, user_id, external_track_id, status, source, created_at, updated_at
	`, uuid.NewString(), eval.UserID, trackID, track.ExternalID, string(eval.Status), eval.Source, now).Scan(
		&saved.ID, &saved.UserID, &saved.ExternalTrackID, &status, &saved.Source, &saved.CreatedAt, &saved.UpdatedAt,
	); err != nil {
		return domain.Evaluation{}, fmt.Errorf("postgres adapter: failed to save evaluation: %w", err)
	}
	saved.Status = domain.EvaluationStatus(status)

	if err := tx.Commit(ctx); err != nil {
		return domain.Evaluation{}, fmt.Errorf("postgres adapter: transaction commit failed: %w", err)
	}
	return saved, nil
}

// ListEvaluations returns the user's evaluations, most recently updated first.
// An empty status lists both; a non-positive limit lists all.
func (a *Adapter) ListEvaluations(ctx context.Context, userID string, status domain.EvaluationStatus, limit int) ([]domain.EvaluatedTrack, error) {
	query := `
		SELECT e.id, e.user_id, e.track_id, e.external_track_id, e.status, e.source, e.created_at, e.updated_at,
			` + trackColumns + `
		FROM evaluations e
		JOIN track_cache t ON t.id = e.track_id
		WHERE e.user_id = $1`
	args := []any{userID}
	if status != "" {
		args = append(args, string(status))
		query += " AND e.status = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY e.updated_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres adapter: failed to list evaluations: %w", err)
	}
	defer rows.Close()

	out := []domain.EvaluatedTrack{}
	for rows.Next() {
		var et domain.EvaluatedTrack
		var st string
		var tc domain.TrackCache
		if err := rows.Scan(
			&et.Evaluation.ID, &et.Evaluation.UserID, &et.Evaluation.TrackID, &et.Evaluation.ExternalTrackID,
			&st, &et.Evaluation.Source, &et.Evaluation.CreatedAt, &et.Evaluation.UpdatedAt,
			&tc.ID, &tc.ExternalID, &tc.Source, &tc.Title, &tc.Artist, &tc.Album,
			&tc.PrimaryGenre, &tc.DurationMs, &tc.ArtworkURL, &tc.PreviewURL,
		); err != nil {
			return nil, fmt.Errorf("postgres adapter: failed to scan evaluation: %w", err)
		}
		et.Evaluation.Status = domain.EvaluationStatus(st)
		et.Track = tc.ToTrack()
		out = append(out, et)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres adapter: failed to iterate evaluations: %w", err)
	}
	return out, nil
}

// DeleteEvaluation removes the user's evaluation of a track.
func (a *Adapter) DeleteEvaluation(ctx context.Context, userID string, externalTrackID string) error {
	tag, err := a.pool.Exec(ctx,
		"DELETE FROM evaluations WHERE user_id = $1 AND external_track_id = $2", userID, externalTrackID)
	if err != nil {
		return fmt.Errorf("postgres adapter: failed to delete evaluation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// upsertTrack stores track in the shared cache and returns its row id.
func upsertTrack(ctx context.Context, tx pgx.Tx, track domain.TrackCache) (int64, error) {
	var trackID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO track_cache (
			external_id, source, title, artist, album, primary_genre, duration_ms, artwork_url, preview_url
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id) DO UPDATE SET `+fillEmptyColumns+`
		RETURNING id
	`,
		track.ExternalID, track.Source, track.Title, track.Artist, track.Album,
		track.PrimaryGenre, track.DurationMs, track.ArtworkURL, track.PreviewURL,
	).Scan(&trackID); err != nil {
		return 0, fmt.Errorf("postgres adapter: failed to save track %s: %w", track.ExternalID, err)
	}
	return trackID, nil
}

func (a *Adapter) migrate(ctx context.Context) error {
	_, err := a.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS track_cache (
		id BIGSERIAL PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL DEFAULT 'itunes',
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT,
		primary_genre TEXT,
		duration_ms INTEGER,
		artwork_url TEXT,
		preview_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		track_id BIGINT NOT NULL REFERENCES track_cache(id) ON DELETE CASCADE,
		external_track_id TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('LIKE', 'DISLIKE')),
		source TEXT NOT NULL DEFAULT 'swipe',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, track_id)
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_user_status ON evaluations (user_id, status);

	CREATE TABLE IF NOT EXISTS play_history (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		track_id BIGINT NOT NULL REFERENCES track_cache(id) ON DELETE CASCADE,
		external_track_id TEXT NOT NULL,
		played_ms INTEGER NOT NULL DEFAULT 0,
		completed BOOLEAN NOT NULL DEFAULT false,
		source TEXT NOT NULL DEFAULT 'preview',
		played_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_play_history_user_played ON play_history (user_id, played_at DESC);
	`)
	return err
}
