package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/otodoki/internal/auth"
	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/services"
)

const (
	defaultEvaluationListLimit = 50
	maxEvaluationListLimit     = 200
	maxBodyBytes               = 64 << 10
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type trackPayload struct {
	ID         string `json:"id" validate:"required,max=64"`
	Title      string `json:"title" validate:"required"`
	Artist     string `json:"artist" validate:"required"`
	Genre      string `json:"genre"`
	Album      string `json:"album"`
	ArtworkURL string `json:"artwork_url" validate:"omitempty,url"`
	PreviewURL string `json:"preview_url" validate:"omitempty,url"`
	DurationMs int    `json:"duration_ms" validate:"gte=0"`
}

func (p trackPayload) toTrack() domain.Track {
	return domain.Track{
		ID:         p.ID,
		Title:      p.Title,
		Artist:     p.Artist,
		Genre:      p.Genre,
		Album:      p.Album,
		ArtworkURL: p.ArtworkURL,
		PreviewURL: p.PreviewURL,
		DurationMs: p.DurationMs,
	}
}

type createEvaluationRequest struct {
	Track  trackPayload `json:"track" validate:"required"`
	Status string       `json:"status" validate:"required"`
	Source string       `json:"source" validate:"omitempty,max=32"`
}

// CreateEvaluation handles POST /api/v1/evaluations
func (h *Handler) CreateEvaluation(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}
	user, _ := auth.UserFromContext(r.Context())

	var req createEvaluationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErrorWithCode(w, http.StatusBadRequest, "Invalid request body", errCodeBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeErrorWithCode(w, http.StatusBadRequest, validationMessage(err), errCodeBadRequest)
		return
	}

	ev, err := h.deps.Evaluations.Record(r.Context(), user.ID, req.Track.toTrack(), req.Status, req.Source)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

type evaluationListResponse struct {
	Data []domain.EvaluatedTrack `json:"data"`
}

// ListEvaluations handles GET /api/v1/evaluations?status=&limit=
func (h *Handler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	q := r.URL.Query()

	limit := defaultEvaluationListLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeErrorWithCode(w, http.StatusBadRequest, "limit must be a positive integer", errCodeBadRequest)
			return
		}
		limit = min(n, maxEvaluationListLimit)
	}

	items, err := h.deps.Evaluations.List(r.Context(), user.ID, q.Get("status"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.EvaluatedTrack{}
	}
	writeJSON(w, http.StatusOK, evaluationListResponse{Data: items})
}

// DeleteEvaluation handles DELETE /api/v1/evaluations/{externalId}
func (h *Handler) DeleteEvaluation(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	externalID := chi.URLParam(r, "externalId")
	if externalID == "" {
		writeErrorWithCode(w, http.StatusBadRequest, "track id is required", errCodeBadRequest)
		return
	}
	if err := h.deps.Evaluations.Delete(r.Context(), user.ID, externalID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type preferencesResponse struct {
	Available   bool                    `json:"available"`
	LikedCount  int                     `json:"liked_count"`
	Preferences *domain.UserPreferences `json:"preferences,omitempty"`
}

// GetPreferences handles GET /api/v1/preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	analysis := h.deps.Evaluations.Preferences(r.Context(), user.ID, h.cfg.MinLikes)
	switch analysis.Outcome {
	case services.AnalysisPresent:
		writeJSON(w, http.StatusOK, preferencesResponse{Available: true, LikedCount: analysis.LikedCount, Preferences: analysis.Preferences})
	case services.AnalysisInsufficient:
		writeJSON(w, http.StatusNotFound, preferencesResponse{Available: false, LikedCount: analysis.LikedCount})
	default:
		writeServiceError(w, r, analysis.Err)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return fe.Namespace() + " failed " + fe.Tag()
}
