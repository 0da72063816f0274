package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/manifeed/manifeed/internal/models"
)

// CreateJob inserts the job row plus one snapshot row per feed in a single
// transaction. The caller commits before publishing to the queue, so a
// published job is always resolvable by the result consumer.
func (s *Store) CreateJob(ctx context.Context, job *models.ScrapeJob, feeds []models.ScrapeFeed) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rss_scrape_jobs (job_id, ingest, requested_by, requested_at, feed_count, status, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())`,
			job.JobID, job.Ingest, job.RequestedBy, job.RequestedAt.UTC(), job.FeedCount, job.Status)
		if err != nil {
			return fmt.Errorf("insert scrape job: %w", err)
		}

		for _, feed := range feeds {
			_, err := tx.Exec(ctx, `
				INSERT INTO rss_scrape_job_feeds (job_id, feed_id, feed_url, last_db_article_published_at)
				VALUES ($1, $2, $3, $4)`,
				job.JobID, feed.FeedID, feed.FeedURL, feed.LastDBArticlePublishedAt)
			if err != nil {
				return fmt.Errorf("insert scrape job feed %d: %w", feed.FeedID, err)
			}
		}
		return nil
	})
}

// SetJobStatus updates a job's status, returning false when the job does not
// exist
func (s *Store) SetJobStatus(ctx context.Context, jobID string, status models.JobStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE rss_scrape_jobs SET status = $2, updated_at = now() WHERE job_id = $1",
		jobID, status)
	if err != nil {
		return false, fmt.Errorf("set job status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetJobStatusRead returns the job with its per-status result counts, nil
// when the job does not exist
func (s *Store) GetJobStatusRead(ctx context.Context, jobID string) (*models.JobStatusRead, error) {
	var read models.JobStatusRead
	err := s.pool.QueryRow(ctx, `
		SELECT job_id, ingest, requested_by, requested_at, status, feed_count
		FROM rss_scrape_jobs
		WHERE job_id = $1`, jobID).
		Scan(&read.JobID, &read.Ingest, &read.RequestedBy, &read.RequestedAt, &read.Status, &read.FeedsTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scrape job: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'success'),
		       COUNT(*) FILTER (WHERE status = 'not_modified'),
		       COUNT(*) FILTER (WHERE status = 'error')
		FROM rss_scrape_job_results
		WHERE job_id = $1`, jobID).
		Scan(&read.FeedsProcessed, &read.FeedsSuccess, &read.FeedsNotModified, &read.FeedsError)
	if err != nil {
		return nil, fmt.Errorf("count job results: %w", err)
	}
	return &read, nil
}

// ListJobFeedReads returns the job's feed snapshots joined with their results
// where present, ordered by feed id. Feeds without a result report "pending".
func (s *Store) ListJobFeedReads(ctx context.Context, jobID string) ([]models.JobFeedRead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT jf.feed_id, jf.feed_url,
		       r.status, r.error_message, r.fetchprotection, r.new_etag, r.new_last_update
		FROM rss_scrape_job_feeds jf
		LEFT JOIN rss_scrape_job_results r
		       ON r.job_id = jf.job_id AND r.feed_id = jf.feed_id
		WHERE jf.job_id = $1
		ORDER BY jf.feed_id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job feeds: %w", err)
	}
	defer rows.Close()

	reads := make([]models.JobFeedRead, 0)
	for rows.Next() {
		var (
			read   models.JobFeedRead
			status *string
		)
		if err := rows.Scan(&read.FeedID, &read.FeedURL, &status,
			&read.ErrorMessage, &read.Fetchprotection, &read.NewETag, &read.NewLastUpdate); err != nil {
			return nil, fmt.Errorf("scan job feed: %w", err)
		}
		read.Status = "pending"
		if status != nil {
			read.Status = *status
		}
		reads = append(reads, read)
	}
	return reads, rows.Err()
}

// PersistWorkerResult applies one worker result in a single transaction:
// result insert, scraping-state upsert, article upserts for successful ingest
// results, then the job status refresh. Returns false without side effects
// when the result is a duplicate or references an unknown job.
func (s *Store) PersistWorkerResult(ctx context.Context, result *models.ScrapeResult, kind models.QueueKind) (bool, error) {
	var persisted bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		isNew, err := insertJobResultIfNew(ctx, tx, result, kind)
		if err != nil {
			return err
		}
		if !isNew {
			return nil
		}

		if err := upsertFeedScrapingState(ctx, tx, result); err != nil {
			return err
		}
		if kind == models.QueueKindIngest {
			if err := upsertSourcesForFeed(ctx, tx, result); err != nil {
				return err
			}
		}
		if err := refreshJobStatus(ctx, tx, result.JobID); err != nil {
			return err
		}
		persisted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return persisted, nil
}

// insertJobResultIfNew inserts the (job_id, feed_id) result row. The EXISTS
// guard drops results for unknown jobs, the conflict clause drops duplicate
// deliveries. Both come back as isNew == false.
func insertJobResultIfNew(ctx context.Context, tx pgx.Tx, result *models.ScrapeResult, kind models.QueueKind) (bool, error) {
	var insertedJobID string
	err := tx.QueryRow(ctx, `
		INSERT INTO rss_scrape_job_results (
			job_id, feed_id, status, queue_kind,
			error_message, fetchprotection, new_etag, new_last_update
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE EXISTS (SELECT 1 FROM rss_scrape_jobs WHERE job_id = $1)
		ON CONFLICT (job_id, feed_id) DO NOTHING
		RETURNING job_id`,
		result.JobID, result.FeedID, result.Status, kind,
		result.ErrorMessage, result.Fetchprotection, result.NewETag, result.NewLastUpdate).
		Scan(&insertedJobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert job result: %w", err)
	}
	return true, nil
}

// upsertFeedScrapingState keeps validators sticky via COALESCE and maintains
// the consecutive error counter: errors bump error_nbr and overwrite
// error_msg, anything else clears error_msg and leaves the counter alone.
func upsertFeedScrapingState(ctx context.Context, tx pgx.Tx, result *models.ScrapeResult) error {
	isError := result.Status == models.ResultStatusError
	initialErrorNbr := 0
	var initialErrorMsg *string
	if isError {
		initialErrorNbr = 1
		initialErrorMsg = result.ErrorMessage
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO feeds_scraping (feed_id, fetchprotection, last_update, etag, error_nbr, error_msg)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (feed_id) DO UPDATE SET
			fetchprotection = EXCLUDED.fetchprotection,
			last_update = COALESCE(EXCLUDED.last_update, feeds_scraping.last_update),
			etag = COALESCE(EXCLUDED.etag, feeds_scraping.etag),
			error_nbr = CASE WHEN $7 THEN feeds_scraping.error_nbr + 1 ELSE feeds_scraping.error_nbr END,
			error_msg = CASE WHEN $7 THEN $6 ELSE NULL END`,
		result.FeedID, result.Fetchprotection, result.NewLastUpdate, result.NewETag,
		initialErrorNbr, initialErrorMsg, isError)
	if err != nil {
		return fmt.Errorf("upsert feed scraping state: %w", err)
	}
	return nil
}

// upsertSourcesForFeed stores the articles of a successful ingest result and
// links them to the feed. Articles without a publication date land on the
// epoch sentinel so the (url, published_at) key stays total.
func upsertSourcesForFeed(ctx context.Context, tx pgx.Tx, result *models.ScrapeResult) error {
	if result.Status != models.ResultStatusSuccess {
		return nil
	}

	for _, source := range result.Sources {
		publishedAt := models.SourcePublishedAtFallback
		if source.PublishedAt != nil {
			publishedAt = source.PublishedAt.UTC()
		}

		var (
			sourceID          int
			storedPublishedAt time.Time
		)
		err := tx.QueryRow(ctx, `
			INSERT INTO rss_sources (title, summary, author, url, published_at, image_url)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (url, published_at) DO UPDATE SET
				title = EXCLUDED.title,
				summary = COALESCE(EXCLUDED.summary, rss_sources.summary),
				author = COALESCE(EXCLUDED.author, rss_sources.author),
				image_url = COALESCE(EXCLUDED.image_url, rss_sources.image_url)
			RETURNING id, published_at`,
			source.Title, source.Summary, source.Author, source.URL, publishedAt, source.ImageURL).
			Scan(&sourceID, &storedPublishedAt)
		if err != nil {
			return fmt.Errorf("upsert source %q: %w", source.URL, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO rss_source_feeds (source_id, feed_id, published_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (source_id, feed_id, published_at) DO NOTHING`,
			sourceID, result.FeedID, storedPublishedAt)
		if err != nil {
			return fmt.Errorf("link source %d to feed %d: %w", sourceID, result.FeedID, err)
		}
	}
	return nil
}

// refreshJobStatus recomputes the job status from the persisted result counts
func refreshJobStatus(ctx context.Context, tx pgx.Tx, jobID string) error {
	var feedCount int
	err := tx.QueryRow(ctx, "SELECT feed_count FROM rss_scrape_jobs WHERE job_id = $1", jobID).Scan(&feedCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read job feed count: %w", err)
	}

	var processedCount, errorCount int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'error')
		FROM rss_scrape_job_results
		WHERE job_id = $1`, jobID).Scan(&processedCount, &errorCount)
	if err != nil {
		return fmt.Errorf("count job results: %w", err)
	}

	status := models.DeriveJobStatus(feedCount, processedCount, errorCount)
	_, err = tx.Exec(ctx,
		"UPDATE rss_scrape_jobs SET status = $2, updated_at = now() WHERE job_id = $1",
		jobID, status)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}
