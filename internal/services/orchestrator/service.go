package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// Callers are recorded on the job so operators can tell scheduled ingests
// from manual check runs
const (
	requestedByCheck  = "rss_feeds_check_endpoint"
	requestedByIngest = "sources_ingest_endpoint"
)

// Service builds scrape jobs and publishes them to the request stream. Job
// state lives in the database; the stream only carries feed snapshots.
type Service struct {
	storage   interfaces.Storage
	queue     interfaces.QueueClient
	stream    string
	batchSize int
	logger    arbor.ILogger

	now func() time.Time
}

// NewService creates a job orchestrator publishing to the configured request
// stream
func NewService(storage interfaces.Storage, queueClient interfaces.QueueClient, config *common.Config, logger arbor.ILogger) *Service {
	batchSize := config.Queue.BatchSize
	if batchSize < 1 {
		batchSize = 50
	}
	return &Service{
		storage:   storage,
		queue:     queueClient,
		stream:    config.Queue.RequestStream,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

var _ interfaces.JobService = (*Service)(nil)

// EnqueueCheckJob creates a check-only job covering the requested feeds
// regardless of their enabled flag. feedIDs nil/empty means all feeds.
func (s *Service) EnqueueCheckJob(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error) {
	return s.enqueue(ctx, feedIDs, false, requestedByCheck)
}

// EnqueueIngestJob creates an ingest job covering enabled feeds only
func (s *Service) EnqueueIngestJob(ctx context.Context, feedIDs []int) (*models.JobQueuedRead, error) {
	return s.enqueue(ctx, feedIDs, true, requestedByIngest)
}

// enqueue snapshots the selected feeds, records the job and publishes the
// feed batches. The job row is committed before anything is published so a
// worker can never see a job the database does not know about.
func (s *Service) enqueue(ctx context.Context, feedIDs []int, ingest bool, requestedBy string) (*models.JobQueuedRead, error) {
	feeds, err := s.storage.ListScrapePayloads(ctx, feedIDs, ingest)
	if err != nil {
		return nil, fmt.Errorf("list scrape payloads: %w", err)
	}

	requestedAt := s.now().UTC()
	jobID := uuid.NewString()

	status := models.JobStatusQueued
	if len(feeds) == 0 {
		status = models.JobStatusCompleted
	}

	job := &models.ScrapeJob{
		JobID:       jobID,
		Ingest:      ingest,
		RequestedBy: requestedBy,
		RequestedAt: requestedAt,
		FeedCount:   len(feeds),
		Status:      status,
	}
	if err := s.storage.CreateJob(ctx, job, feeds); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if len(feeds) == 0 {
		s.logger.Info().Str("job_id", jobID).Bool("ingest", ingest).Msg("Job completed with no matching feeds")
		return &models.JobQueuedRead{JobID: jobID, Status: status}, nil
	}

	mixed := mixFeedsByCompany(feeds)
	for start := 0; start < len(mixed); start += s.batchSize {
		end := start + s.batchSize
		if end > len(mixed) {
			end = len(mixed)
		}
		request := models.ScrapeRequest{
			JobID:       jobID,
			RequestedAt: requestedAt,
			Ingest:      ingest,
			RequestedBy: requestedBy,
			Feeds:       mixed[start:end],
		}
		if err := s.queue.Publish(ctx, s.stream, request); err != nil {
			s.failJob(ctx, jobID)
			return nil, fmt.Errorf("%w: publish batch to %s: %v", models.ErrQueuePublish, s.stream, err)
		}
	}

	s.logger.Info().
		Str("job_id", jobID).
		Bool("ingest", ingest).
		Int("feed_count", len(feeds)).
		Msg("Scrape job queued")
	return &models.JobQueuedRead{JobID: jobID, Status: status}, nil
}

// failJob is the best-effort status downgrade after a publish failure
func (s *Service) failJob(ctx context.Context, jobID string) {
	if _, err := s.storage.SetJobStatus(ctx, jobID, models.JobStatusFailed); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("Could not mark job failed after publish error")
	}
}

// GetJobStatus returns the aggregate view of a job
func (s *Service) GetJobStatus(ctx context.Context, jobID string) (*models.JobStatusRead, error) {
	read, err := s.storage.GetJobStatusRead(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if read == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, jobID)
	}
	return read, nil
}

// ListJobFeeds returns the per-feed status rows of a job
func (s *Service) ListJobFeeds(ctx context.Context, jobID string) ([]models.JobFeedRead, error) {
	job, err := s.storage.GetJobStatusRead(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, jobID)
	}
	return s.storage.ListJobFeedReads(ctx, jobID)
}

// mixFeedsByCompany interleaves feeds round-robin across companies so
// consecutive requests in a batch rarely hit the same origin. Companies keep
// their first-seen order; feeds without a company rotate individually.
func mixFeedsByCompany(feeds []models.ScrapeFeed) []models.ScrapeFeed {
	groups := make(map[string][]models.ScrapeFeed)
	order := []string{}
	longest := 0

	for _, feed := range feeds {
		key := feed.CompanyKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], feed)
		if len(groups[key]) > longest {
			longest = len(groups[key])
		}
	}

	mixed := make([]models.ScrapeFeed, 0, len(feeds))
	for round := 0; round < longest; round++ {
		for _, key := range order {
			if round < len(groups[key]) {
				mixed = append(mixed, groups[key][round])
			}
		}
	}
	return mixed
}
