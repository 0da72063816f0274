package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// RSSHandler handles the feed catalog API: listing, toggles, git sync,
// check jobs, URL validation and icon serving
type RSSHandler struct {
	catalog interfaces.CatalogService
	jobs    interfaces.JobService
	locks   interfaces.JobLocker
	logger  arbor.ILogger
}

// NewRSSHandler creates a new RSS catalog handler
func NewRSSHandler(catalog interfaces.CatalogService, jobs interfaces.JobService, locks interfaces.JobLocker, logger arbor.ILogger) *RSSHandler {
	return &RSSHandler{
		catalog: catalog,
		jobs:    jobs,
		locks:   locks,
		logger:  logger,
	}
}

// enabledTogglePayload is the PATCH body shared by feed and company toggles
type enabledTogglePayload struct {
	Enabled *bool `json:"enabled"`
}

// ListFeedsHandler returns all feeds joined with their company, tags and
// scraping state
// GET /rss/
func (h *RSSHandler) ListFeedsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	feeds, err := h.catalog.ListFeeds(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list feeds")
		WriteMessage(w, http.StatusInternalServerError, "Failed to list feeds")
		return
	}

	WriteJSON(w, http.StatusOK, feeds)
}

// ToggleFeedHandler flips a feed's enabled flag
// PATCH /rss/feeds/{id}/enabled
func (h *RSSHandler) ToggleFeedHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPatch) {
		return
	}

	feedID, ok := PathIntSegment(r, 2)
	if !ok {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid feed id")
		return
	}
	payload, ok := decodeTogglePayload(w, r)
	if !ok {
		return
	}

	var read *models.FeedEnabledToggleRead
	err := h.locks.Run(r.Context(), "rss_patch_feed_enabled", func(ctx context.Context) error {
		var toggleErr error
		read, toggleErr = h.catalog.ToggleFeedEnabled(ctx, feedID, *payload.Enabled)
		return toggleErr
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrFeedNotFound):
			WriteMessage(w, http.StatusNotFound, fmt.Sprintf("RSS feed %d not found", feedID))
		case errors.Is(err, models.ErrToggleForbidden):
			WriteMessage(w, http.StatusConflict, fmt.Sprintf("Cannot toggle feed %d: company is disabled", feedID))
		case errors.Is(err, models.ErrJobAlreadyRunning):
			WriteMessage(w, http.StatusConflict, "RSS feed toggle already running")
		default:
			h.logger.Error().Err(err).Int("feed_id", feedID).Msg("Failed to toggle feed")
			WriteMessage(w, http.StatusInternalServerError, "Failed to toggle feed")
		}
		return
	}

	WriteJSON(w, http.StatusOK, read)
}

// ToggleCompanyHandler flips a company's enabled flag
// PATCH /rss/companies/{id}/enabled
func (h *RSSHandler) ToggleCompanyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPatch) {
		return
	}

	companyID, ok := PathIntSegment(r, 2)
	if !ok {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid company id")
		return
	}
	payload, ok := decodeTogglePayload(w, r)
	if !ok {
		return
	}

	var read *models.CompanyEnabledToggleRead
	err := h.locks.Run(r.Context(), "rss_patch_company_enabled", func(ctx context.Context) error {
		var toggleErr error
		read, toggleErr = h.catalog.ToggleCompanyEnabled(ctx, companyID, *payload.Enabled)
		return toggleErr
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrCompanyNotFound):
			WriteMessage(w, http.StatusNotFound, fmt.Sprintf("RSS company %d not found", companyID))
		case errors.Is(err, models.ErrJobAlreadyRunning):
			WriteMessage(w, http.StatusConflict, "RSS company toggle already running")
		default:
			h.logger.Error().Err(err).Int("company_id", companyID).Msg("Failed to toggle company")
			WriteMessage(w, http.StatusInternalServerError, "Failed to toggle company")
		}
		return
	}

	WriteJSON(w, http.StatusOK, read)
}

// SyncHandler mirrors the catalog git repository into the database
// POST /rss/sync?force=bool
func (h *RSSHandler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			WriteMessage(w, http.StatusUnprocessableEntity, "Invalid force parameter")
			return
		}
		force = parsed
	}

	var read *models.SyncRead
	err := h.locks.Run(r.Context(), "rss_sync", func(ctx context.Context) error {
		var syncErr error
		read, syncErr = h.catalog.Sync(ctx, force)
		return syncErr
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrJobAlreadyRunning):
			WriteMessage(w, http.StatusConflict, "RSS sync already running")
		case errors.Is(err, models.ErrRepositorySync):
			h.logger.Error().Err(err).Msg("Catalog repository sync failed")
			WriteMessage(w, http.StatusBadGateway, "RSS feeds repository synchronization failed")
		case errors.Is(err, models.ErrCatalogParse):
			h.logger.Error().Err(err).Msg("Catalog file parsing failed")
			WriteMessage(w, http.StatusUnprocessableEntity, "RSS catalog parsing failed")
		default:
			h.logger.Error().Err(err).Msg("Catalog sync failed")
			WriteMessage(w, http.StatusInternalServerError, "RSS sync failed")
		}
		return
	}

	WriteJSON(w, http.StatusOK, read)
}

// CheckFeedsHandler enqueues a check job for the requested feeds (all feeds
// when feed_ids is absent, regardless of their enabled flag)
// POST /rss/feeds/check?feed_ids=1&feed_ids=2
func (h *RSSHandler) CheckFeedsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	feedIDs, err := ParseFeedIDs(r)
	if err != nil {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid feed_ids parameter")
		return
	}

	var read *models.JobQueuedRead
	err = h.locks.Run(r.Context(), "rss_feeds_check", func(ctx context.Context) error {
		var enqueueErr error
		read, enqueueErr = h.jobs.EnqueueCheckJob(ctx, feedIDs)
		return enqueueErr
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrJobAlreadyRunning):
			WriteMessage(w, http.StatusConflict, "RSS feeds check already running")
		case errors.Is(err, models.ErrQueuePublish):
			h.logger.Error().Err(err).Msg("Failed to publish check job")
			WriteMessage(w, http.StatusBadGateway, "Unable to publish RSS scrape job")
		default:
			h.logger.Error().Err(err).Msg("Failed to enqueue check job")
			WriteMessage(w, http.StatusInternalServerError, "Failed to enqueue check job")
		}
		return
	}

	WriteJSON(w, http.StatusOK, read)
}

// ValidateFeedsHandler probes the requested feed URLs directly and reports
// the ones that do not serve a parsable RSS/Atom payload
// POST /rss/feeds/validate?feed_ids=1&feed_ids=2
func (h *RSSHandler) ValidateFeedsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	feedIDs, err := ParseFeedIDs(r)
	if err != nil {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid feed_ids parameter")
		return
	}

	results, err := h.catalog.CheckFeeds(r.Context(), feedIDs)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to validate feeds")
		WriteMessage(w, http.StatusInternalServerError, "Failed to validate feeds")
		return
	}
	if results == nil {
		results = []models.FeedCheckResultRead{}
	}

	WriteJSON(w, http.StatusOK, results)
}

// IconHandler serves a company icon from the catalog repository
// GET /rss/img/{path}
func (h *RSSHandler) IconHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	iconURL := strings.TrimPrefix(r.URL.Path, "/rss/img/")
	iconPath, err := h.catalog.ResolveIconPath(iconURL)
	if err != nil {
		if !errors.Is(err, models.ErrIconNotFound) {
			h.logger.Warn().Err(err).Str("icon_url", iconURL).Msg("Icon path rejected")
		}
		WriteMessage(w, http.StatusNotFound, "RSS icon not found")
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(iconPath)))
	http.ServeFile(w, r, iconPath)
}

// decodeTogglePayload reads the {"enabled": bool} PATCH body
func decodeTogglePayload(w http.ResponseWriter, r *http.Request) (enabledTogglePayload, bool) {
	var payload enabledTogglePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Enabled == nil {
		WriteMessage(w, http.StatusUnprocessableEntity, "Invalid request body")
		return payload, false
	}
	return payload, true
}
