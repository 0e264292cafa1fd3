package handlers

import (
	"net/http"
	"os"
	"runtime"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string               `json:"status"`
	Lakehouse   string               `json:"lakehouse"`
	ReportStore string               `json:"report_store"`
	Pools       *lakehouse.PoolStats `json:"lakehouse_pools,omitempty"`
}

// PingResponse contains service status and build information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	pools  *lakehouse.PoolManager
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler. pools may be nil.
func NewHealthHandler(cfg *config.Config, pools *lakehouse.PoolManager, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, pools: pools, logger: logger}
}

// RegisterRoutes registers /health and /ping.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ping", h.Ping)
}

// Health reports the configured backends and lakehouse pool usage.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Lakehouse:   h.cfg.Lakehouse.Type,
		ReportStore: h.cfg.Reports.Store,
	}
	if h.pools != nil {
		stats := h.pools.Stats()
		resp.Pools = &stats
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping returns version and host details.
func (h *HealthHandler) Ping(w http.ResponseWriter, _ *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-assess",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
