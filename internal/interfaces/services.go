package interfaces

import (
	"context"
	"time"

	"github.com/manifeed/manifeed/internal/models"
)

// JobService builds and enqueues scrape jobs and reads job state
type JobService interface {
	// EnqueueCheckJob creates a non-ingest job covering the requested feeds
	// regardless of their enabled flag (nil/empty = all feeds)
	EnqueueCheckJob(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error)

	// EnqueueIngestJob creates an ingest job covering enabled feeds only
	EnqueueIngestJob(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error)

	GetJobStatus(ctx context.Context, jobID string) (*models.JobStatusRead, error)
	ListJobFeeds(ctx context.Context, jobID string) ([]models.JobFeedRead, error)
}

// CatalogService maintains the feed catalog from the git repository and
// exposes feed/company toggles
type CatalogService interface {
	// Sync mirrors the catalog repository into the database. force reapplies
	// every catalog file instead of just the changed ones.
	Sync(ctx context.Context, force bool) (*models.SyncRead, error)

	ListFeeds(ctx context.Context) ([]models.Feed, error)
	ToggleFeedEnabled(ctx context.Context, feedID int, enabled bool) (*models.FeedEnabledToggleRead, error)
	ToggleCompanyEnabled(ctx context.Context, companyID int, enabled bool) (*models.CompanyEnabledToggleRead, error)
	ResolveIconPath(iconURL string) (string, error)
	CheckFeeds(ctx context.Context, feedIDs []int) ([]models.FeedCheckResultRead, error)
}

// SourceService reads persisted articles
type SourceService interface {
	ListSources(ctx context.Context, opts SourceListOptions) (*models.SourcePageRead, error)
	GetSource(ctx context.Context, sourceID int) (*models.SourceDetailRead, error)
	RepartitionSources(ctx context.Context) (*models.PartitionMaintenanceRead, error)
}

// TokenService issues and verifies worker access tokens
type TokenService interface {
	Issue(workerID, workerSecret string) (token string, expiresAt time.Time, err error)
	Verify(token string) (workerID string, err error)
}

// JobLocker serializes named jobs across handlers and processes. Run returns
// the job error, or the lock error when the job is already running.
type JobLocker interface {
	Run(ctx context.Context, name string, fn func(context.Context) error) error
}
