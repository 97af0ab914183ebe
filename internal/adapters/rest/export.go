package rest

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ewilliams-labs/otodoki/internal/auth"
	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/logging"
)

const (
	exportFormatJSON = "json"
	exportFormatCSV  = "csv"
)

var (
	evaluationCSVHeader = []string{"track_id", "title", "artist", "album", "genre", "status", "source", "created_at", "updated_at"}
	historyCSVHeader    = []string{"track_id", "title", "artist", "album", "genre", "played_ms", "completed", "source", "played_at"}
)

type evaluationExport struct {
	UserID      string                  `json:"user_id"`
	ExportedAt  time.Time               `json:"exported_at"`
	Evaluations []domain.EvaluatedTrack `json:"evaluations"`
}

type historyExport struct {
	UserID     string               `json:"user_id"`
	ExportedAt time.Time            `json:"exported_at"`
	Plays      []domain.PlayedTrack `json:"plays"`
}

// ExportEvaluations handles GET /api/v1/export/evaluations?format=json|csv
func (h *Handler) ExportEvaluations(w http.ResponseWriter, r *http.Request) {
	format, ok := exportFormat(w, r)
	if !ok {
		return
	}
	user, _ := auth.UserFromContext(r.Context())

	items, err := h.deps.Evaluations.List(r.Context(), user.ID, r.URL.Query().Get("status"), 0)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.EvaluatedTrack{}
	}

	now := time.Now().UTC()
	setAttachment(w, "evaluations", format, now)
	if format == exportFormatJSON {
		writeJSON(w, http.StatusOK, evaluationExport{UserID: user.ID, ExportedAt: now, Evaluations: items})
		return
	}

	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, evaluationCSVHeader)
	for _, et := range items {
		rows = append(rows, []string{
			et.Track.ID,
			et.Track.Title,
			et.Track.Artist,
			et.Track.Album,
			et.Track.Genre,
			string(et.Evaluation.Status),
			et.Evaluation.Source,
			et.Evaluation.CreatedAt.UTC().Format(time.RFC3339),
			et.Evaluation.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeCSV(w, r, rows)
}

// ExportHistory handles GET /api/v1/export/history?format=json|csv
func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeErrorWithCode(w, http.StatusServiceUnavailable, "play history is disabled", errCodeUnavailable)
		return
	}
	format, ok := exportFormat(w, r)
	if !ok {
		return
	}
	user, _ := auth.UserFromContext(r.Context())

	items, err := h.deps.History.List(r.Context(), user.ID, 0)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.PlayedTrack{}
	}

	now := time.Now().UTC()
	setAttachment(w, "history", format, now)
	if format == exportFormatJSON {
		writeJSON(w, http.StatusOK, historyExport{UserID: user.ID, ExportedAt: now, Plays: items})
		return
	}

	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, historyCSVHeader)
	for _, pt := range items {
		rows = append(rows, []string{
			pt.Track.ID,
			pt.Track.Title,
			pt.Track.Artist,
			pt.Track.Album,
			pt.Track.Genre,
			strconv.Itoa(pt.Play.PlayedMs),
			strconv.FormatBool(pt.Play.Completed),
			pt.Play.Source,
			pt.Play.PlayedAt.UTC().Format(time.RFC3339),
		})
	}
	writeCSV(w, r, rows)
}

// exportFormat reads ?format=, defaulting to JSON. It writes the 400 itself.
func exportFormat(w http.ResponseWriter, r *http.Request) (string, bool) {
	switch format := r.URL.Query().Get("format"); format {
	case "", exportFormatJSON:
		return exportFormatJSON, true
	case exportFormatCSV:
		return exportFormatCSV, true
	default:
		writeErrorWithCode(w, http.StatusBadRequest, "format must be json or csv", errCodeBadRequest)
		return "", false
	}
}

func setAttachment(w http.ResponseWriter, name, format string, now time.Time) {
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="otodoki-%s-%s.%s"`, name, now.Format("20060102"), format))
}

func writeCSV(w http.ResponseWriter, r *http.Request, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		// Headers are already sent; the client sees a truncated file.
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("csv export failed")
	}
}
