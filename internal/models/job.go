package models

import "time"

// JobStatus represents the lifecycle state of a scrape job
type JobStatus string

const (
	JobStatusQueued              JobStatus = "queued"
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
)

// ResultStatus represents the outcome of scraping a single feed
type ResultStatus string

const (
	ResultStatusSuccess     ResultStatus = "success"
	ResultStatusNotModified ResultStatus = "not_modified"
	ResultStatusError       ResultStatus = "error"
)

// QueueKind identifies which result stream a worker result arrived on
type QueueKind string

const (
	QueueKindCheck  QueueKind = "check"
	QueueKindIngest QueueKind = "ingest"
	QueueKindError  QueueKind = "error"
)

// ScrapeJob is the orchestrator-side record of a requested scrape run
type ScrapeJob struct {
	JobID       string    `json:"job_id"`
	Ingest      bool      `json:"ingest"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
	FeedCount   int       `json:"feed_count"`
	Status      JobStatus `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ScrapeJobFeed is the snapshot of one feed included in a job
type ScrapeJobFeed struct {
	JobID                    string     `json:"job_id"`
	FeedID                   int        `json:"feed_id"`
	FeedURL                  string     `json:"feed_url"`
	LastDBArticlePublishedAt *time.Time `json:"last_db_article_published_at,omitempty"`
}

// ScrapeJobResult is the persisted outcome for one (job, feed) pair
type ScrapeJobResult struct {
	JobID           string       `json:"job_id"`
	FeedID          int          `json:"feed_id"`
	Status          ResultStatus `json:"status"`
	QueueKind       QueueKind    `json:"queue_kind"`
	ErrorMessage    *string      `json:"error_message,omitempty"`
	Fetchprotection *int         `json:"fetchprotection,omitempty"`
	NewETag         *string      `json:"new_etag,omitempty"`
	NewLastUpdate   *time.Time   `json:"new_last_update,omitempty"`
	ProcessedAt     time.Time    `json:"processed_at"`
}

// JobStatusRead is the API view of a job with per-status result counts
type JobStatusRead struct {
	JobID            string    `json:"job_id"`
	Ingest           bool      `json:"ingest"`
	RequestedBy      string    `json:"requested_by"`
	RequestedAt      time.Time `json:"requested_at"`
	Status           JobStatus `json:"status"`
	FeedsTotal       int       `json:"feeds_total"`
	FeedsProcessed   int       `json:"feeds_processed"`
	FeedsSuccess     int       `json:"feeds_success"`
	FeedsNotModified int       `json:"feeds_not_modified"`
	FeedsError       int       `json:"feeds_error"`
}

// JobFeedRead is the API view of one feed within a job, joined with its
// result when one has been persisted ("pending" otherwise)
type JobFeedRead struct {
	FeedID          int        `json:"feed_id"`
	FeedURL         string     `json:"feed_url"`
	Status          string     `json:"status"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	Fetchprotection *int       `json:"fetchprotection,omitempty"`
	NewETag         *string    `json:"new_etag,omitempty"`
	NewLastUpdate   *time.Time `json:"new_last_update,omitempty"`
}

// JobQueuedRead is the response returned when a scrape job is enqueued
type JobQueuedRead struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// DeriveJobStatus recomputes a job status from its feed count and the
// persisted result counts. Jobs with no feeds complete immediately; a job
// stays queued until the first result lands, and finishes with
// completed_with_errors when any feed errored.
func DeriveJobStatus(feedCount, processedCount, errorCount int) JobStatus {
	switch {
	case feedCount == 0:
		return JobStatusCompleted
	case processedCount == 0:
		return JobStatusQueued
	case processedCount < feedCount:
		return JobStatusProcessing
	case errorCount > 0:
		return JobStatusCompletedWithErrors
	default:
		return JobStatusCompleted
	}
}

// ResolveQueueKind maps a result stream name onto its queue kind. Unknown
// streams are treated as error results so nothing is silently dropped.
func ResolveQueueKind(streamName, checkStream, ingestStream, errorStream string) QueueKind {
	switch streamName {
	case checkStream:
		return QueueKindCheck
	case ingestStream:
		return QueueKindIngest
	case errorStream:
		return QueueKindError
	default:
		return QueueKindError
	}
}
