package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// Mock implementations

type mockCatalogService struct {
	syncFunc          func(ctx context.Context, force bool) (*models.SyncRead, error)
	listFeedsFunc     func(ctx context.Context) ([]models.Feed, error)
	toggleFeedFunc    func(ctx context.Context, feedID int, enabled bool) (*models.FeedEnabledToggleRead, error)
	toggleCompanyFunc func(ctx context.Context, companyID int, enabled bool) (*models.CompanyEnabledToggleRead, error)
	resolveIconFunc   func(iconURL string) (string, error)
	checkFeedsFunc    func(ctx context.Context, feedIDs []int) ([]models.FeedCheckResultRead, error)
}

var _ interfaces.CatalogService = (*mockCatalogService)(nil)

func (m *mockCatalogService) Sync(ctx context.Context, force bool) (*models.SyncRead, error) {
	if m.syncFunc != nil {
		return m.syncFunc(ctx, force)
	}
	return nil, nil
}

func (m *mockCatalogService) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	if m.listFeedsFunc != nil {
		return m.listFeedsFunc(ctx)
	}
	return nil, nil
}

func (m *mockCatalogService) ToggleFeedEnabled(ctx context.Context, feedID int, enabled bool) (*models.FeedEnabledToggleRead, error) {
	if m.toggleFeedFunc != nil {
		return m.toggleFeedFunc(ctx, feedID, enabled)
	}
	return nil, nil
}

func (m *mockCatalogService) ToggleCompanyEnabled(ctx context.Context, companyID int, enabled bool) (*models.CompanyEnabledToggleRead, error) {
	if m.toggleCompanyFunc != nil {
		return m.toggleCompanyFunc(ctx, companyID, enabled)
	}
	return nil, nil
}

func (m *mockCatalogService) ResolveIconPath(iconURL string) (string, error) {
	if m.resolveIconFunc != nil {
		return m.resolveIconFunc(iconURL)
	}
	return "", models.ErrIconNotFound
}

func (m *mockCatalogService) CheckFeeds(ctx context.Context, feedIDs []int) ([]models.FeedCheckResultRead, error) {
	if m.checkFeedsFunc != nil {
		return m.checkFeedsFunc(ctx, feedIDs)
	}
	return nil, nil
}

// mockJobLocker records lock names and runs the job inline. A non-nil err is
// returned instead of running the job.
type mockJobLocker struct {
	err   error
	names []string
}

var _ interfaces.JobLocker = (*mockJobLocker)(nil)

func (m *mockJobLocker) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	m.names = append(m.names, name)
	if m.err != nil {
		return m.err
	}
	return fn(ctx)
}

func newRSSTestHandler(catalog *mockCatalogService, jobs *mockJobService, locks *mockJobLocker) *RSSHandler {
	return NewRSSHandler(catalog, jobs, locks, createTestLogger())
}

func TestListFeedsHandler(t *testing.T) {
	t.Run("returns feeds", func(t *testing.T) {
		catalog := &mockCatalogService{
			listFeedsFunc: func(ctx context.Context) ([]models.Feed, error) {
				return []models.Feed{
					{ID: 1, URL: "https://acme.example/rss", Enabled: true, TrustScore: 0.5},
					{ID: 2, URL: "https://acme.example/tech", Enabled: false, TrustScore: 0.9},
				}, nil
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/rss/", nil)
		rec := httptest.NewRecorder()
		handler.ListFeedsHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var feeds []models.Feed
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feeds))
		require.Len(t, feeds, 2)
		assert.Equal(t, "https://acme.example/rss", feeds[0].URL)
		assert.False(t, feeds[1].Enabled)
	})

	t.Run("service error", func(t *testing.T) {
		catalog := &mockCatalogService{
			listFeedsFunc: func(ctx context.Context) ([]models.Feed, error) {
				return nil, assert.AnError
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/rss/", nil)
		rec := httptest.NewRecorder()
		handler.ListFeedsHandler(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to list feeds", decodeMessage(t, rec))
	})

	t.Run("wrong method", func(t *testing.T) {
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/", nil)
		rec := httptest.NewRecorder()
		handler.ListFeedsHandler(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestToggleFeedHandler(t *testing.T) {
	t.Run("applies toggle under lock", func(t *testing.T) {
		var capturedID int
		var capturedEnabled bool
		catalog := &mockCatalogService{
			toggleFeedFunc: func(ctx context.Context, feedID int, enabled bool) (*models.FeedEnabledToggleRead, error) {
				capturedID = feedID
				capturedEnabled = enabled
				return &models.FeedEnabledToggleRead{FeedID: feedID, Enabled: enabled}, nil
			},
		}
		locks := &mockJobLocker{}
		handler := newRSSTestHandler(catalog, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPatch, "/rss/feeds/12/enabled", strings.NewReader(`{"enabled": false}`))
		rec := httptest.NewRecorder()
		handler.ToggleFeedHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 12, capturedID)
		assert.False(t, capturedEnabled)
		assert.Equal(t, []string{"rss_patch_feed_enabled"}, locks.names)

		var read models.FeedEnabledToggleRead
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &read))
		assert.Equal(t, 12, read.FeedID)
		assert.False(t, read.Enabled)
	})

	t.Run("invalid feed id", func(t *testing.T) {
		locks := &mockJobLocker{}
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPatch, "/rss/feeds/abc/enabled", strings.NewReader(`{"enabled": true}`))
		rec := httptest.NewRecorder()
		handler.ToggleFeedHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid feed id", decodeMessage(t, rec))
		assert.Empty(t, locks.names)
	})

	t.Run("invalid body", func(t *testing.T) {
		for _, body := range []string{`{}`, `{"enabled":`, `null`} {
			handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, &mockJobLocker{})

			req := httptest.NewRequest(http.MethodPatch, "/rss/feeds/12/enabled", strings.NewReader(body))
			rec := httptest.NewRecorder()
			handler.ToggleFeedHandler(rec, req)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "body %q", body)
			assert.Equal(t, "Invalid request body", decodeMessage(t, rec))
		}
	})

	t.Run("feed not found", func(t *testing.T) {
		catalog := &mockCatalogService{
			toggleFeedFunc: func(ctx context.Context, feedID int, enabled bool) (*models.FeedEnabledToggleRead, error) {
				return nil, models.ErrFeedNotFound
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPatch, "/rss/feeds/12/enabled", strings.NewReader(`{"enabled": true}`))
		rec := httptest.NewRecorder()
		handler.ToggleFeedHandler(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "RSS feed 12 not found", decodeMessage(t, rec))
	})

	t.Run("company disabled", func(t *testing.T) {
		catalog := &mockCatalogService{
			toggleFeedFunc: func(ctx context.Context, feedID int, enabled bool) (*models.FeedEnabledToggleRead, error) {
				return nil, models.ErrToggleForbidden
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPatch, "/rss/feeds/12/enabled", strings.NewReader(`{"enabled": true}`))
		rec := httptest.NewRecorder()
		handler.ToggleFeedHandler(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "Cannot toggle feed 12: company is disabled", decodeMessage(t, rec))
	})

	t.Run("toggle already running", func(t *testing.T) {
		called := false
		catalog := &mockCatalogService{
			toggleFeedFunc: func(ctx context.Context, feedID int, enabled bool) (*models.FeedEnabledToggleRead, error) {
				called = true
				return nil, nil
			},
		}
		locks := &mockJobLocker{err: models.ErrJobAlreadyRunning}
		handler := newRSSTestHandler(catalog, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPatch, "/rss/feeds/12/enabled", strings.NewReader(`{"enabled": true}`))
		rec := httptest.NewRecorder()
		handler.ToggleFeedHandler(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "RSS feed toggle already running", decodeMessage(t, rec))
		assert.False(t, called)
	})

	t.Run("service error", func(t *testing.T) {
		catalog := &mockCatalogService{
			toggleFeedFunc: func(ctx context.Context, feedID int, enabled bool) (*models.FeedEnabledToggleRead, error) {
				return nil, assert.AnError
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPatch, "/rss/feeds/12/enabled", strings.NewReader(`{"enabled": true}`))
		rec := httptest.NewRecorder()
		handler.ToggleFeedHandler(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to toggle feed", decodeMessage(t, rec))
	})
}

func TestToggleCompanyHandler(t *testing.T) {
	t.Run("applies toggle under lock", func(t *testing.T) {
		catalog := &mockCatalogService{
			toggleCompanyFunc: func(ctx context.Context, companyID int, enabled bool) (*models.CompanyEnabledToggleRead, error) {
				return &models.CompanyEnabledToggleRead{CompanyID: companyID, Enabled: enabled}, nil
			},
		}
		locks := &mockJobLocker{}
		handler := newRSSTestHandler(catalog, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPatch, "/rss/companies/4/enabled", strings.NewReader(`{"enabled": true}`))
		rec := httptest.NewRecorder()
		handler.ToggleCompanyHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"rss_patch_company_enabled"}, locks.names)

		var read models.CompanyEnabledToggleRead
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &read))
		assert.Equal(t, 4, read.CompanyID)
		assert.True(t, read.Enabled)
	})

	t.Run("invalid company id", func(t *testing.T) {
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPatch, "/rss/companies/0/enabled", strings.NewReader(`{"enabled": true}`))
		rec := httptest.NewRecorder()
		handler.ToggleCompanyHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid company id", decodeMessage(t, rec))
	})

	t.Run("company not found", func(t *testing.T) {
		catalog := &mockCatalogService{
			toggleCompanyFunc: func(ctx context.Context, companyID int, enabled bool) (*models.CompanyEnabledToggleRead, error) {
				return nil, models.ErrCompanyNotFound
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPatch, "/rss/companies/4/enabled", strings.NewReader(`{"enabled": false}`))
		rec := httptest.NewRecorder()
		handler.ToggleCompanyHandler(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "RSS company 4 not found", decodeMessage(t, rec))
	})

	t.Run("toggle already running", func(t *testing.T) {
		locks := &mockJobLocker{err: models.ErrJobAlreadyRunning}
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPatch, "/rss/companies/4/enabled", strings.NewReader(`{"enabled": false}`))
		rec := httptest.NewRecorder()
		handler.ToggleCompanyHandler(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "RSS company toggle already running", decodeMessage(t, rec))
	})
}

func TestSyncHandler(t *testing.T) {
	t.Run("runs sync under lock", func(t *testing.T) {
		var capturedForce bool
		catalog := &mockCatalogService{
			syncFunc: func(ctx context.Context, force bool) (*models.SyncRead, error) {
				capturedForce = force
				return &models.SyncRead{
					RepositoryAction: models.RepositoryActionCloned,
					ProcessedFiles:   3,
					ProcessedFeeds:   9,
					CreatedCompanies: 3,
					CreatedFeeds:     9,
				}, nil
			},
		}
		locks := &mockJobLocker{}
		handler := newRSSTestHandler(catalog, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPost, "/rss/sync", nil)
		rec := httptest.NewRecorder()
		handler.SyncHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, capturedForce)
		assert.Equal(t, []string{"rss_sync"}, locks.names)

		var read models.SyncRead
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &read))
		assert.Equal(t, models.RepositoryActionCloned, read.RepositoryAction)
		assert.Equal(t, 9, read.ProcessedFeeds)
	})

	t.Run("force parameter", func(t *testing.T) {
		var capturedForce bool
		catalog := &mockCatalogService{
			syncFunc: func(ctx context.Context, force bool) (*models.SyncRead, error) {
				capturedForce = force
				return &models.SyncRead{RepositoryAction: models.RepositoryActionUpToDate}, nil
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/sync?force=true", nil)
		rec := httptest.NewRecorder()
		handler.SyncHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, capturedForce)
	})

	t.Run("invalid force parameter", func(t *testing.T) {
		locks := &mockJobLocker{}
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPost, "/rss/sync?force=maybe", nil)
		rec := httptest.NewRecorder()
		handler.SyncHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid force parameter", decodeMessage(t, rec))
		assert.Empty(t, locks.names)
	})

	t.Run("sync already running", func(t *testing.T) {
		locks := &mockJobLocker{err: models.ErrJobAlreadyRunning}
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPost, "/rss/sync", nil)
		rec := httptest.NewRecorder()
		handler.SyncHandler(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "RSS sync already running", decodeMessage(t, rec))
	})

	t.Run("repository sync failure", func(t *testing.T) {
		catalog := &mockCatalogService{
			syncFunc: func(ctx context.Context, force bool) (*models.SyncRead, error) {
				return nil, models.ErrRepositorySync
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/sync", nil)
		rec := httptest.NewRecorder()
		handler.SyncHandler(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "RSS feeds repository synchronization failed", decodeMessage(t, rec))
	})

	t.Run("catalog parse failure", func(t *testing.T) {
		catalog := &mockCatalogService{
			syncFunc: func(ctx context.Context, force bool) (*models.SyncRead, error) {
				return nil, models.ErrCatalogParse
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/sync", nil)
		rec := httptest.NewRecorder()
		handler.SyncHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "RSS catalog parsing failed", decodeMessage(t, rec))
	})

	t.Run("service error", func(t *testing.T) {
		catalog := &mockCatalogService{
			syncFunc: func(ctx context.Context, force bool) (*models.SyncRead, error) {
				return nil, assert.AnError
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/sync", nil)
		rec := httptest.NewRecorder()
		handler.SyncHandler(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "RSS sync failed", decodeMessage(t, rec))
	})
}

func TestCheckFeedsHandler(t *testing.T) {
	t.Run("enqueues requested feeds", func(t *testing.T) {
		var capturedIDs []int
		jobs := &mockJobService{
			enqueueCheckFunc: func(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error) {
				capturedIDs = feedIDs
				return &models.JobQueuedRead{JobID: "job-1", Status: models.JobStatusQueued}, nil
			},
		}
		locks := &mockJobLocker{}
		handler := newRSSTestHandler(&mockCatalogService{}, jobs, locks)

		req := httptest.NewRequest(http.MethodPost, "/rss/feeds/check?feed_ids=1,2", nil)
		rec := httptest.NewRecorder()
		handler.CheckFeedsHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int{1, 2}, capturedIDs)
		assert.Equal(t, []string{"rss_feeds_check"}, locks.names)

		var read models.JobQueuedRead
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &read))
		assert.Equal(t, "job-1", read.JobID)
		assert.Equal(t, models.JobStatusQueued, read.Status)
	})

	t.Run("all feeds when parameter absent", func(t *testing.T) {
		var capturedIDs []int
		jobs := &mockJobService{
			enqueueCheckFunc: func(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error) {
				capturedIDs = feedIDs
				return &models.JobQueuedRead{JobID: "job-1", Status: models.JobStatusQueued}, nil
			},
		}
		handler := newRSSTestHandler(&mockCatalogService{}, jobs, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/feeds/check", nil)
		rec := httptest.NewRecorder()
		handler.CheckFeedsHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, capturedIDs)
	})

	t.Run("invalid feed_ids parameter", func(t *testing.T) {
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/feeds/check?feed_ids=abc", nil)
		rec := httptest.NewRecorder()
		handler.CheckFeedsHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid feed_ids parameter", decodeMessage(t, rec))
	})

	t.Run("check already running", func(t *testing.T) {
		locks := &mockJobLocker{err: models.ErrJobAlreadyRunning}
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPost, "/rss/feeds/check", nil)
		rec := httptest.NewRecorder()
		handler.CheckFeedsHandler(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "RSS feeds check already running", decodeMessage(t, rec))
	})

	t.Run("queue publish failure", func(t *testing.T) {
		jobs := &mockJobService{
			enqueueCheckFunc: func(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error) {
				return nil, models.ErrQueuePublish
			},
		}
		handler := newRSSTestHandler(&mockCatalogService{}, jobs, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/feeds/check", nil)
		rec := httptest.NewRecorder()
		handler.CheckFeedsHandler(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "Unable to publish RSS scrape job", decodeMessage(t, rec))
	})

	t.Run("service error", func(t *testing.T) {
		jobs := &mockJobService{
			enqueueCheckFunc: func(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error) {
				return nil, assert.AnError
			},
		}
		handler := newRSSTestHandler(&mockCatalogService{}, jobs, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/feeds/check", nil)
		rec := httptest.NewRecorder()
		handler.CheckFeedsHandler(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to enqueue check job", decodeMessage(t, rec))
	})
}

func TestValidateFeedsHandler(t *testing.T) {
	t.Run("reports invalid feeds", func(t *testing.T) {
		var capturedIDs []int
		catalog := &mockCatalogService{
			checkFeedsFunc: func(ctx context.Context, feedIDs []int) ([]models.FeedCheckResultRead, error) {
				capturedIDs = feedIDs
				return []models.FeedCheckResultRead{
					{FeedID: 2, URL: "https://acme.example/broken", Status: "invalid", Error: "Not an XML/RSS feed"},
				}, nil
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/feeds/validate?feed_ids=1&feed_ids=2", nil)
		rec := httptest.NewRecorder()
		handler.ValidateFeedsHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int{1, 2}, capturedIDs)

		var results []models.FeedCheckResultRead
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
		require.Len(t, results, 1)
		assert.Equal(t, 2, results[0].FeedID)
		assert.Equal(t, "invalid", results[0].Status)
	})

	t.Run("no invalid feeds returns empty array", func(t *testing.T) {
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/feeds/validate", nil)
		rec := httptest.NewRecorder()
		handler.ValidateFeedsHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	})

	t.Run("invalid feed_ids parameter", func(t *testing.T) {
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/feeds/validate?feed_ids=1,x", nil)
		rec := httptest.NewRecorder()
		handler.ValidateFeedsHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid feed_ids parameter", decodeMessage(t, rec))
	})

	t.Run("service error", func(t *testing.T) {
		catalog := &mockCatalogService{
			checkFeedsFunc: func(ctx context.Context, feedIDs []int) ([]models.FeedCheckResultRead, error) {
				return nil, assert.AnError
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/feeds/validate", nil)
		rec := httptest.NewRecorder()
		handler.ValidateFeedsHandler(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to validate feeds", decodeMessage(t, rec))
	})
}

func TestIconHandler(t *testing.T) {
	t.Run("serves resolved icon", func(t *testing.T) {
		dir := t.TempDir()
		iconPath := filepath.Join(dir, "acme.svg")
		require.NoError(t, os.WriteFile(iconPath, []byte("<svg></svg>"), 0o644))

		var capturedURL string
		catalog := &mockCatalogService{
			resolveIconFunc: func(iconURL string) (string, error) {
				capturedURL = iconURL
				return iconPath, nil
			},
		}
		handler := newRSSTestHandler(catalog, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/rss/img/img/acme.svg", nil)
		rec := httptest.NewRecorder()
		handler.IconHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "img/acme.svg", capturedURL)
		assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
		assert.Equal(t, `inline; filename="acme.svg"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "<svg></svg>", rec.Body.String())
	})

	t.Run("unresolved icon", func(t *testing.T) {
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/rss/img/missing.svg", nil)
		rec := httptest.NewRecorder()
		handler.IconHandler(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "RSS icon not found", decodeMessage(t, rec))
	})

	t.Run("wrong method", func(t *testing.T) {
		handler := newRSSTestHandler(&mockCatalogService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/rss/img/acme.svg", nil)
		rec := httptest.NewRecorder()
		handler.IconHandler(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
