package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// SourcesHandler handles the persisted article API: paginated listings,
// detail reads, ingest job enqueueing and partition maintenance
type SourcesHandler struct {
	sources interfaces.SourceService
	jobs    interfaces.JobService
	locks   interfaces.JobLocker
	logger  arbor.ILogger
}

// NewSourcesHandler creates a new sources handler
func NewSourcesHandler(sources interfaces.SourceService, jobs interfaces.JobService, locks interfaces.JobLocker, logger arbor.ILogger) *SourcesHandler {
	return &SourcesHandler{
		sources: sources,
		jobs:    jobs,
		locks:   locks,
		logger:  logger,
	}
}

// ingestPayload is the optional POST body selecting feeds to ingest
type ingestPayload struct {
	FeedIDs []int `json:"feed_ids"`
}

// ListSourcesHandler returns a page of articles
// GET /sources/?limit=50&offset=0
func (h *SourcesHandler) ListSourcesHandler(w http.ResponseWriter, r *http.Request) {
	h.listSources(w, r, 0, 0)
}

// ListSourcesByFeedHandler returns a page of articles linked to one feed
// GET /sources/feeds/{feed_id}
func (h *SourcesHandler) ListSourcesByFeedHandler(w http.ResponseWriter, r *http.Request) {
	feedID, ok := PathIntSegment(r, 2)
	if !ok {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid feed id")
		return
	}
	h.listSources(w, r, feedID, 0)
}

// ListSourcesByCompanyHandler returns a page of articles from one company's
// feeds
// GET /sources/companies/{company_id}
func (h *SourcesHandler) ListSourcesByCompanyHandler(w http.ResponseWriter, r *http.Request) {
	companyID, ok := PathIntSegment(r, 2)
	if !ok {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid company id")
		return
	}
	h.listSources(w, r, 0, companyID)
}

func (h *SourcesHandler) listSources(w http.ResponseWriter, r *http.Request, feedID, companyID int) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	opts, ok := parseSourceListOptions(w, r)
	if !ok {
		return
	}
	opts.FeedID = feedID
	opts.CompanyID = companyID

	page, err := h.sources.ListSources(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list sources")
		WriteMessage(w, http.StatusInternalServerError, "Failed to list sources")
		return
	}

	WriteJSON(w, http.StatusOK, page)
}

// GetSourceHandler returns one article with its feed links
// GET /sources/{id}
func (h *SourcesHandler) GetSourceHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sourceID, ok := PathIntSegment(r, 1)
	if !ok {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid source id")
		return
	}

	detail, err := h.sources.GetSource(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, models.ErrSourceNotFound) {
			WriteMessage(w, http.StatusNotFound, fmt.Sprintf("RSS source %d not found", sourceID))
			return
		}
		h.logger.Error().Err(err).Int("source_id", sourceID).Msg("Failed to get source")
		WriteMessage(w, http.StatusInternalServerError, "Failed to get source")
		return
	}

	WriteJSON(w, http.StatusOK, detail)
}

// IngestHandler enqueues an ingest job for enabled feeds (optionally
// narrowed to the feed_ids in the body)
// POST /sources/ingest
func (h *SourcesHandler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	payload, ok := decodeIngestPayload(w, r)
	if !ok {
		return
	}

	var read *models.JobQueuedRead
	err := h.locks.Run(r.Context(), "sources_ingest", func(ctx context.Context) error {
		var enqueueErr error
		read, enqueueErr = h.jobs.EnqueueIngestJob(ctx, payload.FeedIDs)
		return enqueueErr
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrJobAlreadyRunning):
			WriteMessage(w, http.StatusConflict, "Sources ingest already running")
		case errors.Is(err, models.ErrQueuePublish):
			h.logger.Error().Err(err).Msg("Failed to publish ingest job")
			WriteMessage(w, http.StatusBadGateway, "Unable to publish RSS scrape job")
		default:
			h.logger.Error().Err(err).Msg("Failed to enqueue ingest job")
			WriteMessage(w, http.StatusInternalServerError, "Failed to enqueue ingest job")
		}
		return
	}

	WriteJSON(w, http.StatusOK, read)
}

// MaintenanceHandler moves default-partition rows into weekly partitions
// POST /sources/partitions/maintenance
func (h *SourcesHandler) MaintenanceHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	read, err := h.sources.RepartitionSources(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Partition maintenance failed")
		WriteMessage(w, http.StatusInternalServerError, "Partition maintenance failed")
		return
	}

	WriteJSON(w, http.StatusOK, read)
}

// parseSourceListOptions reads the limit/offset query parameters. Values
// out of range are clamped by the service; non-integers are rejected.
func parseSourceListOptions(w http.ResponseWriter, r *http.Request) (interfaces.SourceListOptions, bool) {
	var opts interfaces.SourceListOptions

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			WriteMessage(w, http.StatusUnprocessableEntity, "Invalid limit parameter")
			return opts, false
		}
		opts.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			WriteMessage(w, http.StatusUnprocessableEntity, "Invalid offset parameter")
			return opts, false
		}
		opts.Offset = offset
	}
	return opts, true
}

// decodeIngestPayload reads the optional {"feed_ids": [...]} body. An empty
// body selects all enabled feeds.
func decodeIngestPayload(w http.ResponseWriter, r *http.Request) (ingestPayload, bool) {
	var payload ingestPayload
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid request body")
		return payload, false
	}
	if len(body) == 0 {
		return payload, true
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid request body")
		return payload, false
	}
	return payload, true
}
