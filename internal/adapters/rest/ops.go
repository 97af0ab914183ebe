package rest

import (
	"math"
	"net/http"
	"time"
)

type rootResponse struct {
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
	Status  string `json:"status"`
}

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{Service: h.cfg.ServiceName, Version: h.cfg.Version, Status: "running"})
}

type healthResponse struct {
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Service       string  `json:"service"`
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Timestamp:     now.UTC().Format(time.RFC3339),
		UptimeSeconds: math.Round(now.Sub(h.startedAt).Seconds()*100) / 100,
		Service:       h.cfg.ServiceName,
	})
}

// QueueStats handles GET /queue/stats
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Queue.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type queueHealthResponse struct {
	Status             string  `json:"status"`
	QueueSize          int     `json:"queue_size"`
	Capacity           int     `json:"capacity"`
	UtilizationPercent float64 `json:"utilization_percent"`
	IsLowWatermark     bool    `json:"is_low_watermark"`
}

// QueueHealth handles GET /queue/health
func (h *Handler) QueueHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Queue.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := "healthy"
	if stats.IsLow {
		status = "low"
	}
	writeJSON(w, http.StatusOK, queueHealthResponse{
		Status:             status,
		QueueSize:          stats.CurrentSize,
		Capacity:           stats.MaxCapacity,
		UtilizationPercent: stats.Utilization,
		IsLowWatermark:     stats.IsLow,
	})
}

// WorkerStats handles GET /worker/stats
func (h *Handler) WorkerStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Worker == nil {
		writeErrorWithCode(w, http.StatusServiceUnavailable, "refill worker is disabled", errCodeUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Worker.Stats())
}

type triggerRefillResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// TriggerRefill handles POST /worker/trigger-refill. The refill runs inline.
func (h *Handler) TriggerRefill(w http.ResponseWriter, r *http.Request) {
	if h.deps.Worker == nil {
		writeErrorWithCode(w, http.StatusServiceUnavailable, "refill worker is disabled", errCodeUnavailable)
		return
	}
	if !h.deps.Worker.TriggerRefill(r.Context()) {
		writeJSON(w, http.StatusConflict, triggerRefillResponse{Triggered: false, Message: "refill already running or failed"})
		return
	}
	writeJSON(w, http.StatusOK, triggerRefillResponse{Triggered: true, Message: "refill completed"})
}

type strategiesResponse struct {
	Data []string `json:"data"`
}

// ListStrategies handles GET /api/v1/strategies
func (h *Handler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if h.deps.Strategies != nil {
		names = h.deps.Strategies.Names()
	}
	writeJSON(w, http.StatusOK, strategiesResponse{Data: names})
}
