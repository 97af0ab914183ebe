package rest

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ewilliams-labs/otodoki/internal/auth"
	"github.com/ewilliams-labs/otodoki/internal/core/services"
	"github.com/ewilliams-labs/otodoki/internal/metrics"
)

// GetSuggestions handles GET /api/v1/tracks/suggestions?limit=&excludeIds=
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		res := h.limiter.Reserve()
		if delay := res.Delay(); !res.OK() || delay > 0 {
			res.Cancel()
			metrics.SuggestionsRateLimited.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(delay.Seconds())+1))
			writeErrorWithCode(w, http.StatusTooManyRequests, "too many requests", errCodeRateLimited)
			return
		}
	}

	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorWithCode(w, http.StatusBadRequest, "limit must be an integer", errCodeBadRequest)
			return
		}
		limit = n
	}

	req := services.SuggestionsRequest{
		Limit:      limit,
		ExcludeIDs: splitIDs(q.Get("excludeIds")),
	}
	if user, ok := auth.UserFromContext(r.Context()); ok {
		req.User = &user
	}

	resp, err := h.deps.Suggestions.Get(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type limiterStatsResponse struct {
	Enabled         bool    `json:"enabled"`
	RatePerSecond   float64 `json:"rate_per_second"`
	Burst           int     `json:"burst"`
	AvailableTokens float64 `json:"available_tokens"`
}

// SuggestionsLimiterStats handles GET /api/v1/tracks/suggestions/stats
func (h *Handler) SuggestionsLimiterStats(w http.ResponseWriter, r *http.Request) {
	if h.limiter == nil {
		writeJSON(w, http.StatusOK, limiterStatsResponse{})
		return
	}
	writeJSON(w, http.StatusOK, limiterStatsResponse{
		Enabled:         true,
		RatePerSecond:   float64(h.limiter.Limit()),
		Burst:           h.limiter.Burst(),
		AvailableTokens: h.limiter.Tokens(),
	})
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
