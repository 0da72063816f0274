package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// JobsHandler exposes scrape job status reads
type JobsHandler struct {
	jobs   interfaces.JobService
	logger arbor.ILogger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(jobs interfaces.JobService, logger arbor.ILogger) *JobsHandler {
	return &JobsHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// GetJobHandler returns the aggregate status of one scrape job
// GET /jobs/{job_id}
func (h *JobsHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID, ok := PathSegment(r, 1)
	if !ok {
		WriteMessage(w, http.StatusNotFound, "Not found")
		return
	}

	read, err := h.jobs.GetJobStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			WriteMessage(w, http.StatusNotFound, fmt.Sprintf("RSS scrape job %s not found", jobID))
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job status")
		WriteMessage(w, http.StatusInternalServerError, "Failed to get job status")
		return
	}

	WriteJSON(w, http.StatusOK, read)
}

// GetJobFeedsHandler returns the per-feed outcomes of one scrape job
// GET /jobs/{job_id}/feeds
func (h *JobsHandler) GetJobFeedsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID, ok := PathSegment(r, 1)
	if !ok {
		WriteMessage(w, http.StatusNotFound, "Not found")
		return
	}

	feeds, err := h.jobs.ListJobFeeds(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, models.ErrJobNotFound) {
			WriteMessage(w, http.StatusNotFound, fmt.Sprintf("RSS scrape job %s not found", jobID))
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to list job feeds")
		WriteMessage(w, http.StatusInternalServerError, "Failed to list job feeds")
		return
	}
	if feeds == nil {
		feeds = []models.JobFeedRead{}
	}

	WriteJSON(w, http.StatusOK, feeds)
}
