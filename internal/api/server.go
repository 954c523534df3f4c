// Package api provides the HTTP surface of the cache coordinator.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/huykn/cache-coordinator/coordinator"
	"github.com/huykn/cache-coordinator/types"
)

// maxBodyBytes bounds the size of an update request body.
const maxBodyBytes = 1 << 20

// Coordinator is the subset of *coordinator.Coordinator the API drives.
type Coordinator interface {
	ScheduleUpdate(req types.UpdateRequest)
	ForceRefresh(key, source string)
	ClearPendingUpdates()
	GetStats() coordinator.Stats
}

// ServerOption configures the API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
	gatherer    prometheus.Gatherer
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetrics serves the metrics collected by g on /metrics.
func WithMetrics(g prometheus.Gatherer) ServerOption {
	return func(cfg *serverConfig) {
		cfg.gatherer = g
	}
}

// NewServer creates the HTTP router over c.
func NewServer(c Coordinator, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	h := &handler{coord: c}

	r.Get("/healthz", h.health)
	if cfg.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/updates", h.scheduleUpdates)
		r.Post("/refresh/{key}", h.forceRefresh)
		r.Delete("/pending", h.clearPending)
		r.Get("/stats", h.stats)
	})

	return r
}

// LoggingMiddleware logs HTTP requests at debug level.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

type handler struct {
	coord Coordinator
}

// updateRequest is the wire form of an update. An empty priority means normal.
type updateRequest struct {
	Key      string          `json:"key"`
	Source   string          `json:"source,omitempty"`
	Priority string          `json:"priority,omitempty"`
	Force    bool            `json:"force,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func (u updateRequest) toRequest() (types.UpdateRequest, error) {
	if u.Key == "" {
		return types.UpdateRequest{}, errors.New("key is required")
	}
	priority, err := types.ParsePriority(u.Priority)
	if err != nil {
		return types.UpdateRequest{}, err
	}

	req := types.UpdateRequest{
		Key:      u.Key,
		Source:   u.Source,
		Priority: priority,
		Force:    u.Force,
	}
	if len(u.Data) > 0 && !bytes.Equal(u.Data, []byte("null")) {
		var data any
		if err := json.Unmarshal(u.Data, &data); err != nil {
			return types.UpdateRequest{}, fmt.Errorf("data: %w", err)
		}
		req.Data = data
	}
	return req, nil
}

type acceptedResponse struct {
	Accepted int `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// scheduleUpdates accepts a single update object or an array of them.
// Either every update is valid and scheduled, or none is.
func (h *handler) scheduleUpdates(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	var updates []updateRequest
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &updates); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode updates: %w", err))
			return
		}
	} else {
		var single updateRequest
		if err := json.Unmarshal(trimmed, &single); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode update: %w", err))
			return
		}
		updates = append(updates, single)
	}

	requests := make([]types.UpdateRequest, 0, len(updates))
	for i, u := range updates {
		req, err := u.toRequest()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("update %d: %w", i, err))
			return
		}
		requests = append(requests, req)
	}

	for _, req := range requests {
		h.coord.ScheduleUpdate(req)
	}
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: len(requests)})
}

func (h *handler) forceRefresh(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, errors.New("key is required"))
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = "api"
	}

	h.coord.ForceRefresh(key, source)
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: 1})
}

func (h *handler) clearPending(w http.ResponseWriter, _ *http.Request) {
	h.coord.ClearPendingUpdates()
	w.WriteHeader(http.StatusNoContent)
}

type statsResponse struct {
	PendingCount int                  `json:"pending_count"`
	IsExecuting  bool                 `json:"is_executing"`
	Cooldowns    map[string]time.Time `json:"cooldowns"`
	Scheduled    int64                `json:"scheduled"`
	Suppressed   int64                `json:"suppressed"`
	Drains       int64                `json:"drains"`
	Failures     int64                `json:"failures"`
}

// NewStatsResponse converts coordinator stats to their JSON form.
func NewStatsResponse(s coordinator.Stats) any {
	return statsResponse{
		PendingCount: s.PendingCount,
		IsExecuting:  s.IsExecuting,
		Cooldowns:    s.Cooldowns,
		Scheduled:    s.Scheduled,
		Suppressed:   s.Suppressed,
		Drains:       s.Drains,
		Failures:     s.Failures,
	}
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewStatsResponse(h.coord.GetStats()))
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
