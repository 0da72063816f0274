package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
)

// Migration is a single schema change. Migrations are versioned with
// timestamps (YYYYMMDD-HHmmss), applied in order inside one transaction
// each, and tracked in schema_migrations so every migration runs exactly
// once.
type Migration struct {
	Version     string
	Description string
	Statements  []string
}

var migrations = []Migration{
	{
		Version:     "20260224-181500",
		Description: "initial catalog tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS rss_company (
				id SERIAL PRIMARY KEY,
				name VARCHAR(50) NOT NULL,
				host VARCHAR(255),
				icon_url VARCHAR(500),
				country CHAR(2),
				language CHAR(2),
				fetchprotection SMALLINT NOT NULL DEFAULT 1,
				enabled BOOLEAN NOT NULL DEFAULT true,
				CONSTRAINT uq_rss_company_name UNIQUE (name),
				CONSTRAINT ck_rss_company_fetchprotection CHECK (fetchprotection >= 0 AND fetchprotection <= 2)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rss_company_country ON rss_company (country)`,
			`CREATE INDEX IF NOT EXISTS idx_rss_company_language ON rss_company (language)`,
			`CREATE TABLE IF NOT EXISTS rss_feeds (
				id SERIAL PRIMARY KEY,
				url VARCHAR(500) NOT NULL,
				section VARCHAR(50),
				enabled BOOLEAN NOT NULL DEFAULT true,
				trust_score FLOAT NOT NULL DEFAULT 0.5,
				company_id INTEGER REFERENCES rss_company (id) ON DELETE SET NULL,
				CONSTRAINT uq_rss_feeds_url UNIQUE (url),
				CONSTRAINT ck_rss_feeds_trust_score CHECK (trust_score >= 0.0 AND trust_score <= 1.0)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rss_feeds_enabled ON rss_feeds (enabled) WHERE enabled = true`,
			`CREATE INDEX IF NOT EXISTS idx_rss_feeds_company_id ON rss_feeds (company_id)`,
			`CREATE TABLE IF NOT EXISTS rss_tags (
				id SERIAL PRIMARY KEY,
				name VARCHAR(50) NOT NULL,
				CONSTRAINT uq_rss_tags_name UNIQUE (name)
			)`,
			`CREATE TABLE IF NOT EXISTS rss_feed_tags (
				feed_id INTEGER NOT NULL REFERENCES rss_feeds (id) ON DELETE CASCADE,
				tag_id INTEGER NOT NULL REFERENCES rss_tags (id) ON DELETE CASCADE,
				PRIMARY KEY (feed_id, tag_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rss_feed_tags_tag_id ON rss_feed_tags (tag_id)`,
		},
	},
	{
		Version:     "20260225-150000",
		Description: "per-feed scraping state",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS feeds_scraping (
				feed_id INTEGER PRIMARY KEY REFERENCES rss_feeds (id) ON DELETE CASCADE,
				fetchprotection SMALLINT NOT NULL DEFAULT 1,
				last_update TIMESTAMPTZ,
				etag VARCHAR(255),
				error_nbr INTEGER NOT NULL DEFAULT 0,
				error_msg TEXT,
				CONSTRAINT ck_feeds_scraping_fetchprotection CHECK (fetchprotection >= 0 AND fetchprotection <= 2),
				CONSTRAINT ck_feeds_scraping_error_nbr CHECK (error_nbr >= 0)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_feeds_scraping_fetchprotection ON feeds_scraping (fetchprotection)`,
		},
	},
	{
		Version:     "20260225-200000",
		Description: "partitioned article tables",
		Statements: []string{
			`CREATE SEQUENCE IF NOT EXISTS rss_sources_id_seq`,
			`CREATE TABLE IF NOT EXISTS rss_sources (
				id INTEGER NOT NULL DEFAULT nextval('rss_sources_id_seq'),
				title VARCHAR(500) NOT NULL,
				summary TEXT,
				author VARCHAR(255),
				url VARCHAR(1000) NOT NULL,
				published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				image_url VARCHAR(1000),
				CONSTRAINT rss_sources_pkey PRIMARY KEY (id, published_at),
				CONSTRAINT uq_rss_sources_url_published_at UNIQUE (url, published_at)
			) PARTITION BY RANGE (published_at)`,
			`ALTER SEQUENCE rss_sources_id_seq OWNED BY rss_sources.id`,
			`CREATE INDEX IF NOT EXISTS idx_rss_sources_published_at ON rss_sources (published_at)`,
			`CREATE TABLE IF NOT EXISTS rss_source_feeds (
				source_id INTEGER NOT NULL,
				feed_id INTEGER NOT NULL REFERENCES rss_feeds (id) ON DELETE CASCADE,
				published_at TIMESTAMPTZ NOT NULL,
				CONSTRAINT rss_source_feeds_pkey PRIMARY KEY (source_id, feed_id, published_at),
				CONSTRAINT fk_rss_source_feeds_source FOREIGN KEY (source_id, published_at)
					REFERENCES rss_sources (id, published_at) ON DELETE CASCADE ON UPDATE CASCADE
			) PARTITION BY RANGE (published_at)`,
			`CREATE INDEX IF NOT EXISTS idx_rss_source_feeds_source_id_published_at ON rss_source_feeds (source_id, published_at)`,
			`CREATE INDEX IF NOT EXISTS idx_rss_source_feeds_feed_id ON rss_source_feeds (feed_id)`,
			`CREATE INDEX IF NOT EXISTS idx_rss_source_feeds_published_at ON rss_source_feeds (published_at)`,
			`CREATE TABLE IF NOT EXISTS rss_sources_default PARTITION OF rss_sources DEFAULT`,
			`CREATE TABLE IF NOT EXISTS rss_source_feeds_default PARTITION OF rss_source_feeds DEFAULT`,
		},
	},
	{
		Version:     "20260226-141000",
		Description: "scrape job tables",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS rss_scrape_jobs (
				job_id VARCHAR(36) PRIMARY KEY,
				ingest BOOLEAN NOT NULL,
				requested_by VARCHAR(100) NOT NULL,
				requested_at TIMESTAMPTZ NOT NULL,
				feed_count INTEGER NOT NULL,
				status VARCHAR(40) NOT NULL DEFAULT 'queued',
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				CONSTRAINT ck_rss_scrape_jobs_feed_count CHECK (feed_count >= 0),
				CONSTRAINT ck_rss_scrape_jobs_status CHECK (status IN ('queued', 'processing', 'completed', 'completed_with_errors', 'failed'))
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rss_scrape_jobs_requested_at ON rss_scrape_jobs (requested_at)`,
			`CREATE TABLE IF NOT EXISTS rss_scrape_job_feeds (
				job_id VARCHAR(36) NOT NULL REFERENCES rss_scrape_jobs (job_id) ON DELETE CASCADE,
				feed_id INTEGER NOT NULL REFERENCES rss_feeds (id) ON DELETE CASCADE,
				feed_url VARCHAR(500) NOT NULL,
				last_db_article_published_at TIMESTAMPTZ,
				PRIMARY KEY (job_id, feed_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_rss_scrape_job_feeds_feed_id ON rss_scrape_job_feeds (feed_id)`,
			`CREATE TABLE IF NOT EXISTS rss_scrape_job_results (
				job_id VARCHAR(36) NOT NULL REFERENCES rss_scrape_jobs (job_id) ON DELETE CASCADE,
				feed_id INTEGER NOT NULL REFERENCES rss_feeds (id) ON DELETE CASCADE,
				status VARCHAR(32) NOT NULL,
				queue_kind VARCHAR(32) NOT NULL,
				error_message TEXT,
				fetchprotection SMALLINT,
				new_etag VARCHAR(255),
				new_last_update TIMESTAMPTZ,
				processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (job_id, feed_id),
				CONSTRAINT ck_rss_scrape_job_results_status CHECK (status IN ('success', 'not_modified', 'error')),
				CONSTRAINT ck_rss_scrape_job_results_queue_kind CHECK (queue_kind IN ('check', 'ingest', 'error'))
			)`,
		},
	},
}

// Migrate applies pending migrations in version order
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.pool.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return err
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	pending := make([]Migration, 0, len(migrations))
	for _, m := range migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		s.logger.Info().Str("version", m.Version).Str("description", m.Description).Msg("Applying migration")
		if err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("statement failed: %w", err)
				}
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
				m.Version, m.Description)
			return err
		}); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.Version, m.Description, err)
		}
	}

	return nil
}
