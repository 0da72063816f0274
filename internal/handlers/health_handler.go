package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
)

// Pinger verifies connectivity to one dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports database and queue liveness
type HealthHandler struct {
	database Pinger
	queue    Pinger
	logger   arbor.ILogger
}

// HealthRead is the health check response
type HealthRead struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Queue    string `json:"queue"`
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(database, queue Pinger, logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{
		database: database,
		queue:    queue,
		logger:   logger,
	}
}

// GetHealthHandler pings the database and the queue
// GET /health/
func (h *HealthHandler) GetHealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	read := HealthRead{Status: "ok", Database: "ok", Queue: "ok"}

	if err := h.database.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Database health check failed")
		read.Status = "degraded"
		read.Database = "unavailable"
	}
	if err := h.queue.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Queue health check failed")
		read.Status = "degraded"
		read.Queue = "unavailable"
	}

	WriteJSON(w, http.StatusOK, read)
}
