package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/riot-match-ingestor/internal/domain"
	"github.com/riot-match-ingestor/internal/websocket"
)

// Runs is the run control surface exposed over HTTP
type Runs interface {
	Trigger(ctx context.Context) (string, error)
	CurrentRun() (string, bool)
	LastRun(ctx context.Context) (domain.RunStatistics, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the ingestor API
type Handler struct {
	runs    Runs
	store   Pinger
	hub     *websocket.Hub
	metrics http.Handler
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler. metrics may be nil.
func NewHandler(runs Runs, store Pinger, hub *websocket.Hub, metrics http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		runs:    runs,
		store:   store,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
	}).Handler)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	// WebSocket endpoint
	if h.hub != nil {
		r.Get("/ws", h.HandleWebSocket)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", h.TriggerRun)
			r.Get("/current", h.GetCurrentRun)
			r.Get("/last", h.GetLastRun)
		})

		if h.hub != nil {
			r.Get("/ws/stats", h.GetWebSocketStats)
		}
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports ready once the store answers
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeError(w, http.StatusServiceUnavailable, domain.ErrStoreUnavailable)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// TriggerRun starts an ingestion run in the background
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	runID, err := h.runs.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrRunInProgress) {
			h.writeError(w, http.StatusConflict, err)
			return
		}
		h.logger.Error("failed to trigger run", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]string{"run_id": runID, "status": "started"},
	})
}

// GetCurrentRun returns the ID of the active run
func (h *Handler) GetCurrentRun(w http.ResponseWriter, r *http.Request) {
	runID, running := h.runs.CurrentRun()
	h.writeSuccess(w, map[string]interface{}{
		"running": running,
		"run_id":  runID,
	})
}

// GetLastRun returns the statistics of the last finished run
func (h *Handler) GetLastRun(w http.ResponseWriter, r *http.Request) {
	stats, err := h.runs.LastRun(r.Context())
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get last run", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	h.writeSuccess(w, stats)
}
