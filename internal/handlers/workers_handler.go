package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// WorkersHandler issues access tokens to scrape workers
type WorkersHandler struct {
	tokens interfaces.TokenService
	logger arbor.ILogger
}

// NewWorkersHandler creates a new internal workers handler
func NewWorkersHandler(tokens interfaces.TokenService, logger arbor.ILogger) *WorkersHandler {
	return &WorkersHandler{
		tokens: tokens,
		logger: logger,
	}
}

// TokenHandler exchanges worker credentials for a signed access token
// POST /internal/workers/token
func (h *WorkersHandler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var payload models.WorkerTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}
	if err := payload.Validate(); err != nil {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	token, expiresAt, err := h.tokens.Issue(payload.WorkerID, payload.WorkerSecret)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			h.logger.Warn().Str("worker_id", payload.WorkerID).Msg("Rejected worker token request")
			WriteMessage(w, http.StatusUnauthorized, "Invalid worker credentials")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to issue worker token")
		WriteMessage(w, http.StatusInternalServerError, "Failed to issue worker token")
		return
	}

	WriteJSON(w, http.StatusOK, models.WorkerTokenRead{
		AccessToken: token,
		ExpiresAt:   expiresAt,
	})
}
