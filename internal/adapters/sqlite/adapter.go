// Package sqlite provides a SQLite-backed implementation of the evaluation store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously

	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/ports"
)

// Adapter implements the evaluation repository port for SQLite
type Adapter struct {
	db *sql.DB
}

var _ ports.EvaluationRepository = (*Adapter)(nil)

// NewAdapter creates a connection and runs the schema migration
func NewAdapter(storagePath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("sqlite adapter: failed to open db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite adapter: failed to ping db: %w", err)
	}

	adapter := &Adapter{db: db}

	if err := adapter.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite adapter: migration failed: %w", err)
	}

	return adapter, nil
}

// Close ensures the DB connection is closed gracefully
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Ping verifies the database is reachable.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

const trackColumns = `t.id, t.external_id, t.source, t.title, t.artist, IFNULL(t.album, ''),
	IFNULL(t.primary_genre, ''), IFNULL(t.duration_ms, 0), IFNULL(t.artwork_url, ''), IFNULL(t.preview_url, '')`

// TracksByStatus returns the cached tracks the user evaluated with status.
func (a *Adapter) TracksByStatus(ctx context.Context, userID string, status domain.EvaluationStatus) ([]domain.TrackCache, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT `+trackColumns+`
		FROM evaluations e
		JOIN track_cache t ON t.id = e.track_id
		WHERE e.user_id = ? AND e.status = ?
	`, userID, string(status))
	if err != nil {
		return nil, fmt.Errorf("sqlite adapter: failed to query %s tracks: %w", status, err)
	}
	defer rows.Close()

	tracks := []domain.TrackCache{}
	for rows.Next() {
		var tc domain.TrackCache
		if err := scanTrack(rows, &tc); err != nil {
			return nil, fmt.Errorf("sqlite adapter: failed to scan track: %w", err)
		}
		tracks = append(tracks, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite adapter: failed to iterate tracks: %w", err)
	}
	return tracks, nil
}

// fillEmptyColumns keeps the first-seen catalog metadata of a cached track.
// A later write only fills columns that are still empty.
const fillEmptyColumns = `
	title=COALESCE(NULLIF(track_cache.title, ''), excluded.title),
	artist=COALESCE(NULLIF(track_cache.artist, ''), excluded.artist),
	album=COALESCE(NULLIF(track_cache.album, ''), excluded.album),
	primary_genre=COALESCE(NULLIF(track_cache.primary_genre, ''), excluded.primary_genre),
	duration_ms=COALESCE(NULLIF(track_cache.duration_ms, 0), excluded.duration_ms),
	artwork_url=COALESCE(NULLIF(track_cache.artwork_url, ''), excluded.artwork_url),
	preview_url=COALESCE(NULLIF(track_cache.preview_url, ''), excluded.preview_url)`

// SaveEvaluation upserts the track cache row and the user's evaluation of it.
// Re-evaluating a track replaces its status; the cached track keeps the
// metadata it was first stored with.
func (a *Adapter) SaveEvaluation(ctx context.Context, track domain.TrackCache, eval domain.Evaluation) (domain.Evaluation, error) {
	if track.ExternalID == "" {
		return domain.Evaluation{}, domain.ErrInvalidTrack
	}
	if _, err := domain.ParseEvaluationStatus(string(eval.Status)); err != nil {
		return domain.Evaluation{}, err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("sqlite adapter: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	trackID, err := upsertTrack(ctx, tx, track)
	if err != nil {
		return domain.Evaluation{}, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO evaluations (id, user_id, track_id, external_track_id, status, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, track_id) DO UPDATE SET
			status=excluded.status,
			source=excluded.source,
			updated_at=excluded.updated_at;
	`, uuid.NewString(), eval.UserID, trackID, track.ExternalID, string(eval.Status), eval.Source, now, now); err != nil {
		return domain.Evaluation{}, fmt.Errorf("sqlite adapter: failed to save evaluation: %w", err)
	}

	saved := domain.Evaluation{TrackID: trackID}
	var status string
	if err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, external_track_id, status, source, created_at, updated_at
		FROM evaluations WHERE user_id = ? AND track_id = ?
	`, eval.UserID, trackID).Scan(
		&saved.ID,
		&saved.UserID,
		&saved.ExternalTrackID,
		&status,
		&saved.Source,
		&saved.CreatedAt,
		&saved.UpdatedAt,
	); err != nil {
		return domain.Evaluation{}, fmt.Errorf("sqlite adapter: failed to reload evaluation: %w", err)
	}
	saved.Status = domain.EvaluationStatus(status)

	if err := tx.Commit(); err != nil {
		return domain.Evaluation{}, fmt.Errorf("sqlite adapter: transaction commit failed: %w", err)
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
		WHERE e.user_id = ?`
	args := []any{userID}
	if status != "" {
		query += " AND e.status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY e.updated_at DESC, e.rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite adapter: failed to list evaluations: %w", err)
	}
	defer rows.Close()

	out := []domain.EvaluatedTrack{}
	for rows.Next() {
		var et domain.EvaluatedTrack
		var st string
		var tc domain.TrackCache
		if err := rows.Scan(
			&et.Evaluation.ID,
			&et.Evaluation.UserID,
			&et.Evaluation.TrackID,
			&et.Evaluation.ExternalTrackID,
			&st,
			&et.Evaluation.Source,
			&et.Evaluation.CreatedAt,
			&et.Evaluation.UpdatedAt,
			&tc.ID, &tc.ExternalID, &tc.Source, &tc.Title, &tc.Artist, &tc.Album,
			&tc.PrimaryGenre, &tc.DurationMs, &tc.ArtworkURL, &tc.PreviewURL,
		); err != nil {
			return nil, fmt.Errorf("sqlite adapter: failed to scan evaluation: %w", err)
		}
		et.Evaluation.Status = domain.EvaluationStatus(st)
		et.Track = tc.ToTrack()
		out = append(out, et)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite adapter: failed to iterate evaluations: %w", err)
	}
	return out, nil
}

// DeleteEvaluation removes the user's evaluation of a track. The cached track is kept.
func (a *Adapter) DeleteEvaluation(ctx context.Context, userID string, externalTrackID string) error {
	res, err := a.db.ExecContext(ctx,
		"DELETE FROM evaluations WHERE user_id = ? AND external_track_id = ?", userID, externalTrackID)
	if err != nil {
		return fmt.Errorf("sqlite adapter: failed to delete evaluation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite adapter: failed to delete evaluation: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// upsertTrack stores track in the shared cache and returns its row id.
func upsertTrack(ctx context.Context, tx *sql.Tx, track domain.TrackCache) (int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO track_cache (
			external_id, source, title, artist, album, primary_genre, duration_ms, artwork_url, preview_url
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET `+fillEmptyColumns+`;
	`,
		track.ExternalID,
		track.Source,
		track.Title,
		track.Artist,
		track.Album,
		track.PrimaryGenre,
		track.DurationMs,
		track.ArtworkURL,
		track.PreviewURL,
	); err != nil {
		return 0, fmt.Errorf("sqlite adapter: failed to save track %s: %w", track.ExternalID, err)
	}

	var trackID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM track_cache WHERE external_id = ?", track.ExternalID).Scan(&trackID); err != nil {
		return 0, fmt.Errorf("sqlite adapter: failed to load track id: %w", err)
	}
	return trackID, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(s scanner, tc *domain.TrackCache) error {
	return s.Scan(
		&tc.ID,
		&tc.ExternalID,
		&tc.Source,
		&tc.Title,
		&tc.Artist,
		&tc.Album,
		&tc.PrimaryGenre,
		&tc.DurationMs,
		&tc.ArtworkURL,
		&tc.PreviewURL,
	)
}

func (a *Adapter) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS track_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL DEFAULT 'itunes',
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT,
		primary_genre TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		track_id INTEGER NOT NULL,
		external_track_id TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('LIKE', 'DISLIKE')),
		source TEXT NOT NULL DEFAULT 'swipe',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (user_id, track_id),
		FOREIGN KEY(track_id) REFERENCES track_cache(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_user_status ON evaluations (user_id, status);

	CREATE TABLE IF NOT EXISTS play_history (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		track_id INTEGER NOT NULL,
		external_track_id TEXT NOT NULL,
		played_ms INTEGER NOT NULL DEFAULT 0,
		completed INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT 'preview',
		played_at DATETIME NOT NULL,
		FOREIGN KEY(track_id) REFERENCES track_cache(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_play_history_user_played ON play_history (user_id, played_at);
	`
	if _, err := a.db.Exec(query); err != nil {
		return err
	}

	// Columns added after the first release.
	for _, col := range []string{
		"duration_ms INTEGER",
		"artwork_url TEXT",
		"preview_url TEXT",
	} {
		if _, err := a.db.Exec("ALTER TABLE track_cache ADD COLUMN " + col); err != nil {
			if !isDuplicateColumnError(err) {
				return err
			}
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate column") || strings.Contains(err.Error(), "already exists"))
}
