package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// Mock implementations

type mockSourceService struct {
	listFunc        func(ctx context.Context, opts interfaces.SourceListOptions) (*models.SourcePageRead, error)
	getFunc         func(ctx context.Context, sourceID int) (*models.SourceDetailRead, error)
	repartitionFunc func(ctx context.Context) (*models.PartitionMaintenanceRead, error)
}

var _ interfaces.SourceService = (*mockSourceService)(nil)

func (m *mockSourceService) ListSources(ctx context.Context, opts interfaces.SourceListOptions) (*models.SourcePageRead, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, opts)
	}
	return &models.SourcePageRead{Items: []models.SourceRead{}}, nil
}

func (m *mockSourceService) GetSource(ctx context.Context, sourceID int) (*models.SourceDetailRead, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, sourceID)
	}
	return nil, models.ErrSourceNotFound
}

func (m *mockSourceService) RepartitionSources(ctx context.Context) (*models.PartitionMaintenanceRead, error) {
	if m.repartitionFunc != nil {
		return m.repartitionFunc(ctx)
	}
	return nil, nil
}

func newSourcesTestHandler(sources *mockSourceService, jobs *mockJobService, locks *mockJobLocker) *SourcesHandler {
	return NewSourcesHandler(sources, jobs, locks, createTestLogger())
}

func TestListSourcesHandler(t *testing.T) {
	t.Run("returns article page", func(t *testing.T) {
		var capturedOpts interfaces.SourceListOptions
		companyName := "Acme News"
		sources := &mockSourceService{
			listFunc: func(ctx context.Context, opts interfaces.SourceListOptions) (*models.SourcePageRead, error) {
				capturedOpts = opts
				return &models.SourcePageRead{
					Items: []models.SourceRead{
						{
							ID:          1,
							Title:       "Release notes",
							URL:         "https://acme.example/articles/1",
							PublishedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
							CompanyName: &companyName,
						},
					},
					Total:  41,
					Limit:  10,
					Offset: 20,
				}, nil
			},
		}
		handler := newSourcesTestHandler(sources, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/?limit=10&offset=20", nil)
		rec := httptest.NewRecorder()
		handler.ListSourcesHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, interfaces.SourceListOptions{Limit: 10, Offset: 20}, capturedOpts)

		var page models.SourcePageRead
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Release notes", page.Items[0].Title)
		assert.Equal(t, 41, page.Total)
	})

	t.Run("invalid limit parameter", func(t *testing.T) {
		handler := newSourcesTestHandler(&mockSourceService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/?limit=ten", nil)
		rec := httptest.NewRecorder()
		handler.ListSourcesHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid limit parameter", decodeMessage(t, rec))
	})

	t.Run("invalid offset parameter", func(t *testing.T) {
		handler := newSourcesTestHandler(&mockSourceService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/?offset=x", nil)
		rec := httptest.NewRecorder()
		handler.ListSourcesHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid offset parameter", decodeMessage(t, rec))
	})

	t.Run("service error", func(t *testing.T) {
		sources := &mockSourceService{
			listFunc: func(ctx context.Context, opts interfaces.SourceListOptions) (*models.SourcePageRead, error) {
				return nil, assert.AnError
			},
		}
		handler := newSourcesTestHandler(sources, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/", nil)
		rec := httptest.NewRecorder()
		handler.ListSourcesHandler(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to list sources", decodeMessage(t, rec))
	})

	t.Run("wrong method", func(t *testing.T) {
		handler := newSourcesTestHandler(&mockSourceService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodDelete, "/sources/", nil)
		rec := httptest.NewRecorder()
		handler.ListSourcesHandler(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestListSourcesByFeedHandler(t *testing.T) {
	t.Run("filters by feed", func(t *testing.T) {
		var capturedOpts interfaces.SourceListOptions
		sources := &mockSourceService{
			listFunc: func(ctx context.Context, opts interfaces.SourceListOptions) (*models.SourcePageRead, error) {
				capturedOpts = opts
				return &models.SourcePageRead{Items: []models.SourceRead{}}, nil
			},
		}
		handler := newSourcesTestHandler(sources, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/feeds/7?limit=5", nil)
		rec := httptest.NewRecorder()
		handler.ListSourcesByFeedHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, interfaces.SourceListOptions{Limit: 5, FeedID: 7}, capturedOpts)
	})

	t.Run("invalid feed id", func(t *testing.T) {
		handler := newSourcesTestHandler(&mockSourceService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/feeds/abc", nil)
		rec := httptest.NewRecorder()
		handler.ListSourcesByFeedHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid feed id", decodeMessage(t, rec))
	})
}

func TestListSourcesByCompanyHandler(t *testing.T) {
	t.Run("filters by company", func(t *testing.T) {
		var capturedOpts interfaces.SourceListOptions
		sources := &mockSourceService{
			listFunc: func(ctx context.Context, opts interfaces.SourceListOptions) (*models.SourcePageRead, error) {
				capturedOpts = opts
				return &models.SourcePageRead{Items: []models.SourceRead{}}, nil
			},
		}
		handler := newSourcesTestHandler(sources, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/companies/3", nil)
		rec := httptest.NewRecorder()
		handler.ListSourcesByCompanyHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, interfaces.SourceListOptions{CompanyID: 3}, capturedOpts)
	})

	t.Run("invalid company id", func(t *testing.T) {
		handler := newSourcesTestHandler(&mockSourceService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/companies/-1", nil)
		rec := httptest.NewRecorder()
		handler.ListSourcesByCompanyHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid company id", decodeMessage(t, rec))
	})
}

func TestGetSourceHandler(t *testing.T) {
	t.Run("returns article detail", func(t *testing.T) {
		var capturedID int
		sources := &mockSourceService{
			getFunc: func(ctx context.Context, sourceID int) (*models.SourceDetailRead, error) {
				capturedID = sourceID
				return &models.SourceDetailRead{
					ID:           sourceID,
					Title:        "Release notes",
					URL:          "https://acme.example/articles/42",
					PublishedAt:  time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
					FeedSections: []string{"Main", "Tech"},
				}, nil
			},
		}
		handler := newSourcesTestHandler(sources, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/42", nil)
		rec := httptest.NewRecorder()
		handler.GetSourceHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 42, capturedID)

		var detail models.SourceDetailRead
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
		assert.Equal(t, 42, detail.ID)
		assert.Equal(t, []string{"Main", "Tech"}, detail.FeedSections)
	})

	t.Run("invalid source id", func(t *testing.T) {
		handler := newSourcesTestHandler(&mockSourceService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/abc", nil)
		rec := httptest.NewRecorder()
		handler.GetSourceHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid source id", decodeMessage(t, rec))
	})

	t.Run("source not found", func(t *testing.T) {
		handler := newSourcesTestHandler(&mockSourceService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/42", nil)
		rec := httptest.NewRecorder()
		handler.GetSourceHandler(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "RSS source 42 not found", decodeMessage(t, rec))
	})

	t.Run("service error", func(t *testing.T) {
		sources := &mockSourceService{
			getFunc: func(ctx context.Context, sourceID int) (*models.SourceDetailRead, error) {
				return nil, assert.AnError
			},
		}
		handler := newSourcesTestHandler(sources, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/42", nil)
		rec := httptest.NewRecorder()
		handler.GetSourceHandler(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to get source", decodeMessage(t, rec))
	})
}

func TestIngestHandler(t *testing.T) {
	t.Run("enqueues selected feeds under lock", func(t *testing.T) {
		var capturedIDs []int
		jobs := &mockJobService{
			enqueueIngestFunc: func(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error) {
				capturedIDs = feedIDs
				return &models.JobQueuedRead{JobID: "job-1", Status: models.JobStatusQueued}, nil
			},
		}
		locks := &mockJobLocker{}
		handler := newSourcesTestHandler(&mockSourceService{}, jobs, locks)

		req := httptest.NewRequest(http.MethodPost, "/sources/ingest", strings.NewReader(`{"feed_ids": [1, 2]}`))
		rec := httptest.NewRecorder()
		handler.IngestHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []int{1, 2}, capturedIDs)
		assert.Equal(t, []string{"sources_ingest"}, locks.names)

		var read models.JobQueuedRead
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &read))
		assert.Equal(t, "job-1", read.JobID)
	})

	t.Run("empty body selects all enabled feeds", func(t *testing.T) {
		var capturedIDs []int
		jobs := &mockJobService{
			enqueueIngestFunc: func(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error) {
				capturedIDs = feedIDs
				return &models.JobQueuedRead{JobID: "job-1", Status: models.JobStatusQueued}, nil
			},
		}
		handler := newSourcesTestHandler(&mockSourceService{}, jobs, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/sources/ingest", nil)
		rec := httptest.NewRecorder()
		handler.IngestHandler(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, capturedIDs)
	})

	t.Run("invalid body", func(t *testing.T) {
		locks := &mockJobLocker{}
		handler := newSourcesTestHandler(&mockSourceService{}, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPost, "/sources/ingest", strings.NewReader(`{"feed_ids":`))
		rec := httptest.NewRecorder()
		handler.IngestHandler(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "Invalid request body", decodeMessage(t, rec))
		assert.Empty(t, locks.names)
	})

	t.Run("ingest already running", func(t *testing.T) {
		locks := &mockJobLocker{err: models.ErrJobAlreadyRunning}
		handler := newSourcesTestHandler(&mockSourceService{}, &mockJobService{}, locks)

		req := httptest.NewRequest(http.MethodPost, "/sources/ingest", nil)
		rec := httptest.NewRecorder()
		handler.IngestHandler(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "Sources ingest already running", decodeMessage(t, rec))
	})

	t.Run("queue publish failure", func(t *testing.T) {
		jobs := &mockJobService{
			enqueueIngestFunc: func(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error) {
				return nil, models.ErrQueuePublish
			},
		}
		handler := newSourcesTestHandler(&mockSourceService{}, jobs, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/sources/ingest", nil)
		rec := httptest.NewRecorder()
		handler.IngestHandler(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "Unable to publish RSS scrape job", decodeMessage(t, rec))
	})

	t.Run("service error", func(t *testing.T) {
		jobs := &mockJobService{
			enqueueIngestFunc: func(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error) {
				return nil, assert.AnError
			},
		}
		handler := newSourcesTestHandler(&mockSourceService{}, jobs, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/sources/ingest", nil)
		rec := httptest.NewRecorder()
		handler.IngestHandler(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to enqueue ingest job", decodeMessage(t, rec))
	})

	t.Run("wrong method", func(t *testing.T) {
		handler := newSourcesTestHandler(&mockSourceService{}, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodGet, "/sources/ingest", nil)
		rec := httptest.NewRecorder()
		handler.IngestHandler(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestMaintenanceHandler(t *testing.T) {
	t.Run("repartitions default rows", func(t *testing.T) {
		sources := &mockSourceService{
			repartitionFunc: func(ctx context.Context) (*models.PartitionMaintenanceRead, error) {
				return &models.PartitionMaintenanceRead{
					SourceDefaultRowsRepartitioned:     120,
					SourceFeedDefaultRowsRepartitioned: 140,
					SourceWeeklyPartitionsCreated:      2,
					SourceFeedWeeklyPartitionsCreated:  2,
					WeeksCovered:                       2,
				}, nil
			},
		}
		handler := newSourcesTestHandler(sources, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/sources/partitions/maintenance", nil)
		rec := httptest.NewRecorder()
		handler.MaintenanceHandler(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var read models.PartitionMaintenanceRead
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &read))
		assert.Equal(t, 120, read.SourceDefaultRowsRepartitioned)
		assert.Equal(t, 2, read.WeeksCovered)
	})

	t.Run("maintenance failure", func(t *testing.T) {
		sources := &mockSourceService{
			repartitionFunc: func(ctx context.Context) (*models.PartitionMaintenanceRead, error) {
				return nil, assert.AnError
			},
		}
		handler := newSourcesTestHandler(sources, &mockJobService{}, &mockJobLocker{})

		req := httptest.NewRequest(http.MethodPost, "/sources/partitions/maintenance", nil)
		rec := httptest.NewRecorder()
		handler.MaintenanceHandler(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Partition maintenance failed", decodeMessage(t, rec))
	})
}
