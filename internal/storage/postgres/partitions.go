package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/manifeed/manifeed/internal/models"
)

const (
	sourcesBufferTable     = "tmp_rss_sources_default_buffer"
	sourceFeedsBufferTable = "tmp_rss_source_feeds_default_buffer"
)

// RepartitionDefaultSources moves article rows parked in the default
// partitions into weekly range partitions. The default rows are buffered in
// temp tables, the weekly partitions are created for every week seen across
// the data, then the buffered rows are reinserted so the range router places
// them. Runs as one transaction; the temp tables drop on commit.
func (s *Store) RepartitionDefaultSources(ctx context.Context) (*models.PartitionMaintenanceRead, error) {
	read := &models.PartitionMaintenanceRead{}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := prepareDefaultBuffers(ctx, tx); err != nil {
			return err
		}

		var err error
		read.SourceDefaultRowsRepartitioned, err = countRows(ctx, tx, sourcesBufferTable)
		if err != nil {
			return err
		}
		read.SourceFeedDefaultRowsRepartitioned, err = countRows(ctx, tx, sourceFeedsBufferTable)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, "DELETE FROM rss_source_feeds_default"); err != nil {
			return fmt.Errorf("clear default source feeds: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM rss_sources_default"); err != nil {
			return fmt.Errorf("clear default sources: %w", err)
		}

		weekStarts, err := listWeekStarts(ctx, tx)
		if err != nil {
			return err
		}
		read.WeeksCovered = len(weekStarts)

		for _, weekStart := range weekStarts {
			weekEnd := weekStart.AddDate(0, 0, 7)
			suffix := weekStart.Format("20060102")

			created, err := createPartitionIfMissing(ctx, tx,
				"rss_sources_w_"+suffix, "rss_sources", weekStart, weekEnd)
			if err != nil {
				return err
			}
			if created {
				read.SourceWeeklyPartitionsCreated++
			}

			created, err = createPartitionIfMissing(ctx, tx,
				"rss_source_feeds_w_"+suffix, "rss_source_feeds", weekStart, weekEnd)
			if err != nil {
				return err
			}
			if created {
				read.SourceFeedWeeklyPartitionsCreated++
			}
		}

		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO rss_sources (id, title, summary, author, url, published_at, image_url)
			SELECT id, title, summary, author, url, published_at, image_url
			FROM %s
			ORDER BY id ASC
			ON CONFLICT (id, published_at) DO NOTHING`, sourcesBufferTable)); err != nil {
			return fmt.Errorf("restore buffered sources: %w", err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO rss_source_feeds (source_id, feed_id, published_at)
			SELECT source_id, feed_id, published_at
			FROM %s
			ORDER BY source_id ASC, feed_id ASC
			ON CONFLICT (source_id, feed_id, published_at) DO NOTHING`, sourceFeedsBufferTable)); err != nil {
			return fmt.Errorf("restore buffered source feeds: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			SELECT setval(
				'rss_sources_id_seq',
				COALESCE((SELECT MAX(id) FROM rss_sources), 1),
				(SELECT EXISTS(SELECT 1 FROM rss_sources))
			)`); err != nil {
			return fmt.Errorf("resync sources sequence: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("source_rows", read.SourceDefaultRowsRepartitioned).
		Int("source_feed_rows", read.SourceFeedDefaultRowsRepartitioned).
		Int("weeks", read.WeeksCovered).
		Msg("Repartitioned default article rows")
	return read, nil
}

// prepareDefaultBuffers snapshots the default partitions into temp tables,
// filling missing publication dates with the epoch sentinel
func prepareDefaultBuffers(ctx context.Context, tx pgx.Tx) error {
	for _, table := range []string{sourceFeedsBufferTable, sourcesBufferTable} {
		if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS pg_temp.%s", table)); err != nil {
			return fmt.Errorf("drop stale buffer %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		CREATE TEMP TABLE %s ON COMMIT DROP AS
		SELECT id, title, summary, author, url,
		       COALESCE(published_at, %s) AS published_at,
		       image_url
		FROM rss_sources_default`, sourcesBufferTable, sentinelLiteral())); err != nil {
		return fmt.Errorf("buffer default sources: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		CREATE TEMP TABLE %s ON COMMIT DROP AS
		SELECT source_id, feed_id,
		       COALESCE(published_at, %s) AS published_at
		FROM rss_source_feeds_default`, sourceFeedsBufferTable, sentinelLiteral())); err != nil {
		return fmt.Errorf("buffer default source feeds: %w", err)
	}
	return nil
}

// listWeekStarts collects the distinct week starts of every article newer
// than the epoch sentinel, across both the live table and the buffer
func listWeekStarts(ctx context.Context, tx pgx.Tx) ([]time.Time, error) {
	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT DISTINCT date_trunc('week', published_at) AS week_start
		FROM (
			SELECT published_at FROM rss_sources WHERE published_at > %[1]s
			UNION ALL
			SELECT published_at FROM %[2]s WHERE published_at > %[1]s
		) AS all_sources
		ORDER BY week_start ASC`, sentinelLiteral(), sourcesBufferTable))
	if err != nil {
		return nil, fmt.Errorf("list week starts: %w", err)
	}
	defer rows.Close()

	weekStarts := make([]time.Time, 0)
	for rows.Next() {
		var weekStart time.Time
		if err := rows.Scan(&weekStart); err != nil {
			return nil, err
		}
		weekStarts = append(weekStarts, weekStart.UTC())
	}
	return weekStarts, rows.Err()
}

// createPartitionIfMissing creates a weekly range partition unless it already
// exists. Partition bounds cannot be bound parameters, so they are inlined as
// timestamp literals.
func createPartitionIfMissing(ctx context.Context, tx pgx.Tx, tableName, parentTable string, weekStart, weekEnd time.Time) (bool, error) {
	var existing *string
	if err := tx.QueryRow(ctx, "SELECT to_regclass($1)::text", tableName).Scan(&existing); err != nil {
		return false, fmt.Errorf("check partition %s: %w", tableName, err)
	}
	if existing != nil && *existing != "" {
		return false, nil
	}

	_, err := tx.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE %s PARTITION OF %s FOR VALUES FROM (%s) TO (%s)",
		tableName, parentTable, timestampLiteral(weekStart), timestampLiteral(weekEnd)))
	if err != nil {
		return false, fmt.Errorf("create partition %s: %w", tableName, err)
	}
	return true, nil
}

func countRows(ctx context.Context, tx pgx.Tx, tableName string) (int, error) {
	var count int
	if err := tx.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", tableName, err)
	}
	return count, nil
}

func sentinelLiteral() string {
	return timestampLiteral(models.SourcePublishedAtFallback)
}

func timestampLiteral(value time.Time) string {
	return fmt.Sprintf("TIMESTAMPTZ '%s'", value.UTC().Format("2006-01-02 15:04:05+00"))
}
