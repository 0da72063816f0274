package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// Service maintains the feed catalog: it mirrors the catalog git repository
// into the database, exposes feed and company toggles, resolves icon files
// and probes feed URLs for validity.
type Service struct {
	storage    interfaces.FeedStorage
	repository *Repository
	client     *http.Client
	logger     arbor.ILogger
}

// NewService creates a catalog service backed by the given storage and the
// catalog repository configured in config
func NewService(storage interfaces.FeedStorage, config *common.Config, logger arbor.ILogger) *Service {
	repository := NewRepository(
		config.Catalog.RepositoryURL,
		config.Catalog.RepositoryBranch,
		config.Catalog.RepositoryPath,
		logger,
	)
	return &Service{
		storage:    storage,
		repository: repository,
		client:     &http.Client{Timeout: checkRequestTimeout},
		logger:     logger,
	}
}

var _ interfaces.CatalogService = (*Service)(nil)

// Sync pulls the catalog repository and applies every changed catalog file
// to the database. force reapplies the full catalog regardless of what the
// pull reported. Files are applied one at a time; the sync is idempotent, so
// a failed run converges on the next one.
func (s *Service) Sync(ctx context.Context, force bool) (*models.SyncRead, error) {
	repositorySync, err := s.repository.Sync(ctx)
	if err != nil {
		return nil, err
	}

	files := repositorySync.ChangedFiles
	if force {
		files, err = s.repository.ListCatalogFiles()
		if err != nil {
			return nil, err
		}
	}

	total := models.SyncStats{}
	for _, relativePath := range files {
		stats, err := s.syncCatalogFile(ctx, relativePath)
		if err != nil {
			return nil, err
		}
		total.Add(stats)
	}

	s.logger.Info().
		Str("action", string(repositorySync.Action)).
		Int("processed_files", total.ProcessedFiles).
		Int("created_feeds", total.CreatedFeeds).
		Int("updated_feeds", total.UpdatedFeeds).
		Int("deleted_feeds", total.DeletedFeeds).
		Msg("Catalog sync finished")

	return &models.SyncRead{
		RepositoryAction: repositorySync.Action,
		ProcessedFiles:   total.ProcessedFiles,
		ProcessedFeeds:   total.ProcessedFeeds,
		CreatedCompanies: total.CreatedCompanies,
		CreatedTags:      total.CreatedTags,
		CreatedFeeds:     total.CreatedFeeds,
		UpdatedFeeds:     total.UpdatedFeeds,
		DeletedFeeds:     total.DeletedFeeds,
	}, nil
}

// syncCatalogFile applies a single catalog file. A file that no longer
// exists deletes the feeds of the company it used to describe.
func (s *Service) syncCatalogFile(ctx context.Context, relativePath string) (models.SyncStats, error) {
	stats := models.SyncStats{ProcessedFiles: 1}

	companyName, err := CompanyNameFromFilename(relativePath)
	if err != nil {
		return stats, err
	}

	filePath := filepath.Join(s.repository.Path(), filepath.FromSlash(relativePath))
	if _, err := os.Stat(filePath); errors.Is(err, fs.ErrNotExist) {
		company, err := s.storage.GetCompanyByName(ctx, companyName)
		if err != nil {
			return stats, err
		}
		if company == nil {
			return stats, nil
		}
		deleted, err := s.storage.DeleteCompanyFeedsNotIn(ctx, company.ID, nil)
		if err != nil {
			return stats, err
		}
		stats.DeletedFeeds = deleted
		return stats, nil
	}

	company, createdCompany, err := s.storage.GetOrCreateCompany(ctx, companyName)
	if err != nil {
		return stats, err
	}
	if createdCompany {
		stats.CreatedCompanies++
	}

	entries, err := loadCatalogFile(filePath)
	if err != nil {
		return stats, err
	}

	keepURLs := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		payload := NormalizeCatalogFeed(entry)
		keepURLs[payload.URL] = struct{}{}

		tagIDs, createdTags, err := s.storage.EnsureTags(ctx, payload.Tags)
		if err != nil {
			return stats, err
		}
		stats.CreatedTags += createdTags

		createdFeed, err := s.storage.UpsertFeed(ctx, company.ID, payload, tagIDs)
		if err != nil {
			return stats, err
		}
		stats.ProcessedFeeds++
		if createdFeed {
			stats.CreatedFeeds++
		} else {
			stats.UpdatedFeeds++
		}
	}

	deleted, err := s.storage.DeleteCompanyFeedsNotIn(ctx, company.ID, keepURLs)
	if err != nil {
		return stats, err
	}
	stats.DeletedFeeds = deleted
	return stats, nil
}

// loadCatalogFile reads and validates one catalog file: a JSON list of feed
// entries
func loadCatalogFile(filePath string) ([]models.CatalogFeed, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog file %s: %v", models.ErrCatalogParse, filePath, err)
	}

	var entries []models.CatalogFeed
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON in file %s: %v", models.ErrCatalogParse, filePath, err)
	}
	for index := range entries {
		if err := entries[index].Validate(); err != nil {
			return nil, fmt.Errorf("%w: invalid feed at index %d in file %s: %v", models.ErrCatalogParse, index, filePath, err)
		}
	}
	return entries, nil
}

// ListFeeds returns every catalog feed joined with its company and tags
func (s *Service) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	return s.storage.ListFeeds(ctx)
}

// ToggleFeedEnabled flips a feed's enabled flag. Toggling a feed whose
// company is disabled is forbidden; setting the current value is a no-op.
func (s *Service) ToggleFeedEnabled(ctx context.Context, feedID int, enabled bool) (*models.FeedEnabledToggleRead, error) {
	feed, err := s.storage.GetFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, fmt.Errorf("%w: feed %d", models.ErrFeedNotFound, feedID)
	}
	if feed.Enabled == enabled {
		return &models.FeedEnabledToggleRead{FeedID: feed.ID, Enabled: feed.Enabled}, nil
	}
	if feed.Company != nil && !feed.Company.Enabled {
		return nil, fmt.Errorf("%w: cannot toggle feed %d: company %q is disabled",
			models.ErrToggleForbidden, feedID, feed.Company.Name)
	}

	updated, err := s.storage.SetFeedEnabled(ctx, feedID, enabled)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, fmt.Errorf("%w: feed %d", models.ErrFeedNotFound, feedID)
	}

	s.logger.Info().Int("feed_id", feedID).Bool("enabled", enabled).Msg("Feed enabled flag changed")
	return &models.FeedEnabledToggleRead{FeedID: feedID, Enabled: enabled}, nil
}

// ToggleCompanyEnabled flips a company's enabled flag. Setting the current
// value is a no-op.
func (s *Service) ToggleCompanyEnabled(ctx context.Context, companyID int, enabled bool) (*models.CompanyEnabledToggleRead, error) {
	company, err := s.storage.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("%w: company %d", models.ErrCompanyNotFound, companyID)
	}
	if company.Enabled == enabled {
		return &models.CompanyEnabledToggleRead{CompanyID: company.ID, Enabled: company.Enabled}, nil
	}

	updated, err := s.storage.SetCompanyEnabled(ctx, companyID, enabled)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, fmt.Errorf("%w: company %d", models.ErrCompanyNotFound, companyID)
	}

	s.logger.Info().Int("company_id", companyID).Bool("enabled", enabled).Msg("Company enabled flag changed")
	return &models.CompanyEnabledToggleRead{CompanyID: companyID, Enabled: enabled}, nil
}
