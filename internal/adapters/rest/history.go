package rest

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/otodoki/internal/auth"
	"github.com/ewilliams-labs/otodoki/internal/core/domain"
)

const (
	defaultHistoryListLimit = 50
	maxHistoryListLimit     = 200
)

type recordPlayRequest struct {
	Track     trackPayload `json:"track" validate:"required"`
	PlayedMs  int          `json:"played_ms" validate:"gte=0"`
	Completed bool         `json:"completed"`
	Source    string       `json:"source" validate:"omitempty,max=32"`
}

// RecordPlay handles POST /api/v1/history
func (h *Handler) RecordPlay(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeErrorWithCode(w, http.StatusServiceUnavailable, "play history is disabled", errCodeUnavailable)
		return
	}
	if !isJSONContentType(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	user, _ := auth.UserFromContext(r.Context())

	var req recordPlayRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErrorWithCode(w, http.StatusBadRequest, "Invalid request body", errCodeBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErrorWithCode(w, http.StatusBadRequest, validationMessage(err), errCodeBadRequest)
		return
	}

	play, err := h.deps.History.Record(r.Context(), user.ID, req.Track.toTrack(), req.PlayedMs, req.Completed, req.Source)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, play)
}

type historyListResponse struct {
	Data []domain.PlayedTrack `json:"data"`
}

// ListHistory handles GET /api/v1/history?limit=
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeErrorWithCode(w, http.StatusServiceUnavailable, "play history is disabled", errCodeUnavailable)
		return
	}
	user, _ := auth.UserFromContext(r.Context())

	limit := defaultHistoryListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErrorWithCode(w, http.StatusBadRequest, "limit must be a positive integer", errCodeBadRequest)
			return
		}
		limit = min(n, maxHistoryListLimit)
	}

	items, err := h.deps.History.List(r.Context(), user.ID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.PlayedTrack{}
	}
	writeJSON(w, http.StatusOK, historyListResponse{Data: items})
}
