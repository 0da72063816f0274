package interfaces

import (
	"context"

	"github.com/manifeed/manifeed/internal/models"
)

// SourceListOptions filters and pages the article listing
type SourceListOptions struct {
	Limit     int
	Offset    int
	FeedID    int // 0 = no filter
	CompanyID int // 0 = no filter
}

// FeedStorage covers the feed catalog side of the database
type FeedStorage interface {
	// ListScrapePayloads builds worker-ready feed snapshots: scraping state,
	// effective fetch protection, company host header and the newest stored
	// article timestamp per feed. feedIDs nil/empty means all feeds.
	ListScrapePayloads(ctx context.Context, feedIDs []int, enabledOnly bool) ([]models.ScrapeFeed, error)

	ListFeeds(ctx context.Context) ([]models.Feed, error)
	GetFeed(ctx context.Context, feedID int) (*models.Feed, error)
	SetFeedEnabled(ctx context.Context, feedID int, enabled bool) (bool, error)
	GetCompany(ctx context.Context, companyID int) (*models.Company, error)
	SetCompanyEnabled(ctx context.Context, companyID int, enabled bool) (bool, error)

	// Catalog sync operations
	GetCompanyByName(ctx context.Context, name string) (*models.Company, error)
	GetOrCreateCompany(ctx context.Context, name string) (*models.Company, bool, error)
	EnsureTags(ctx context.Context, names []string) (tagIDs []int, created int, err error)
	UpsertFeed(ctx context.Context, companyID int, payload models.FeedUpsert, tagIDs []int) (created bool, err error)
	DeleteCompanyFeedsNotIn(ctx context.Context, companyID int, keepURLs map[string]struct{}) (deleted int, err error)
}

// JobStorage covers scrape job bookkeeping
type JobStorage interface {
	// CreateJob inserts the job row and its per-feed snapshot rows
	CreateJob(ctx context.Context, job *models.ScrapeJob, feeds []models.ScrapeFeed) error

	SetJobStatus(ctx context.Context, jobID string, status models.JobStatus) (bool, error)
	GetJobStatusRead(ctx context.Context, jobID string) (*models.JobStatusRead, error)
	ListJobFeedReads(ctx context.Context, jobID string) ([]models.JobFeedRead, error)

	// PersistWorkerResult applies a worker result transactionally: the
	// conflict-ignoring result insert, the scraping-state upsert, article
	// upserts for successful ingest results, and the job status refresh.
	// Returns false without side effects for duplicate or orphaned results.
	PersistWorkerResult(ctx context.Context, result *models.ScrapeResult, kind models.QueueKind) (bool, error)
}

// SourceStorage covers persisted articles
type SourceStorage interface {
	ListSources(ctx context.Context, opts SourceListOptions) (*models.SourcePageRead, error)
	GetSourceDetail(ctx context.Context, sourceID int) (*models.SourceDetailRead, error)

	// RepartitionDefaultSources moves rows parked in the default partitions
	// into weekly range partitions, creating partitions as needed.
	RepartitionDefaultSources(ctx context.Context) (*models.PartitionMaintenanceRead, error)
}

// AdvisoryLocker acquires cluster-wide Postgres advisory locks. The release
// function must be called exactly once when acquired is true.
type AdvisoryLocker interface {
	TryAcquire(ctx context.Context, lockID int64) (release func(), acquired bool, err error)
}

// Storage aggregates the database surface plus lifecycle
type Storage interface {
	FeedStorage
	JobStorage
	SourceStorage
	AdvisoryLocker

	Ping(ctx context.Context) error
	Close()
}
