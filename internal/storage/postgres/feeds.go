package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/models"
)

// ListScrapePayloads builds worker-ready payloads for the requested feeds.
// Each payload joins the feed with its scraping state, its company and the
// newest stored article timestamp so workers never touch the database.
func (s *Store) ListScrapePayloads(ctx context.Context, feedIDs []int, enabledOnly bool) ([]models.ScrapeFeed, error) {
	query := `
		SELECT f.id, f.url, f.company_id,
		       c.host, c.fetchprotection,
		       fs.fetchprotection, fs.etag, fs.last_update,
		       latest.last_db_article_published_at
		FROM rss_feeds f
		LEFT JOIN rss_company c ON c.id = f.company_id
		LEFT JOIN feeds_scraping fs ON fs.feed_id = f.id
		LEFT JOIN (
			SELECT feed_id, MAX(published_at) AS last_db_article_published_at
			FROM rss_source_feeds
			GROUP BY feed_id
		) latest ON latest.feed_id = f.id`

	conditions := make([]string, 0, 2)
	args := make([]any, 0, 1)
	if enabledOnly {
		conditions = append(conditions, "f.enabled = true")
	}
	if len(feedIDs) > 0 {
		cleaned := cleanFeedIDs(feedIDs)
		if len(cleaned) == 0 {
			return []models.ScrapeFeed{}, nil
		}
		args = append(args, cleaned)
		conditions = append(conditions, fmt.Sprintf("f.id = ANY($%d)", len(args)))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += "\n\t\tWHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += "\n\t\tORDER BY f.id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scrape payloads: %w", err)
	}
	defer rows.Close()

	payloads := make([]models.ScrapeFeed, 0)
	for rows.Next() {
		var (
			payload                 models.ScrapeFeed
			companyHost             *string
			companyFetchprotection  *int
			scrapingFetchprotection *int
		)
		if err := rows.Scan(
			&payload.FeedID,
			&payload.FeedURL,
			&payload.CompanyID,
			&companyHost,
			&companyFetchprotection,
			&scrapingFetchprotection,
			&payload.ETag,
			&payload.LastUpdate,
			&payload.LastDBArticlePublishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scrape payload: %w", err)
		}
		payload.HostHeader = common.NormalizeHost(companyHost)
		payload.Fetchprotection = resolveFetchprotection(scrapingFetchprotection, companyFetchprotection)
		payloads = append(payloads, payload)
	}
	return payloads, rows.Err()
}

// resolveFetchprotection picks the effective protection level: the per-feed
// scraping value wins over the company value, everything else means 1.
func resolveFetchprotection(scraping, company *int) int {
	if scraping != nil && *scraping >= 0 && *scraping <= 2 {
		return *scraping
	}
	if company != nil && *company >= 0 && *company <= 2 {
		return *company
	}
	return models.FetchProtectionNone
}

// cleanFeedIDs drops non-positive IDs, deduplicates and sorts
func cleanFeedIDs(feedIDs []int) []int {
	seen := make(map[int]struct{}, len(feedIDs))
	cleaned := make([]int, 0, len(feedIDs))
	for _, id := range feedIDs {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		cleaned = append(cleaned, id)
	}
	sort.Ints(cleaned)
	return cleaned
}

// ListFeeds returns the feed catalog with companies and tags, ordered by id
func (s *Store) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.url, f.section, f.enabled, f.trust_score, f.company_id,
		       c.id, c.name, c.host, c.icon_url, c.country, c.language, c.fetchprotection, c.enabled
		FROM rss_feeds f
		LEFT JOIN rss_company c ON c.id = f.company_id
		ORDER BY f.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	feeds := make([]models.Feed, 0)
	feedIDs := make([]int, 0)
	for rows.Next() {
		feed, err := scanFeedWithCompany(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *feed)
		feedIDs = append(feedIDs, feed.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		return feeds, nil
	}

	tagsByFeed, err := s.loadFeedTags(ctx, feedIDs)
	if err != nil {
		return nil, err
	}
	for i := range feeds {
		feeds[i].Tags = tagsByFeed[feeds[i].ID]
	}
	return feeds, nil
}

// GetFeed returns one feed with its company and scraping state, nil when the
// feed does not exist
func (s *Store) GetFeed(ctx context.Context, feedID int) (*models.Feed, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.url, f.section, f.enabled, f.trust_score, f.company_id,
		       c.id, c.name, c.host, c.icon_url, c.country, c.language, c.fetchprotection, c.enabled
		FROM rss_feeds f
		LEFT JOIN rss_company c ON c.id = f.company_id
		WHERE f.id = $1`, feedID)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	feed, err := scanFeedWithCompany(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	var state models.FeedScrapingState
	err = s.pool.QueryRow(ctx, `
		SELECT feed_id, fetchprotection, last_update, etag, error_nbr, error_msg
		FROM feeds_scraping
		WHERE feed_id = $1`, feedID).
		Scan(&state.FeedID, &state.Fetchprotection, &state.LastUpdate, &state.ETag, &state.ErrorNbr, &state.ErrorMsg)
	switch {
	case err == nil:
		feed.Scraping = &state
	case errors.Is(err, pgx.ErrNoRows):
		// no scraping row until the first worker result lands
	default:
		return nil, fmt.Errorf("get feed scraping state: %w", err)
	}
	return feed, nil
}

// SetFeedEnabled flips a feed's enabled flag, returning false when the feed
// does not exist
func (s *Store) SetFeedEnabled(ctx context.Context, feedID int, enabled bool) (bool, error) {
	tag, err := s.pool.Exec(ctx, "UPDATE rss_feeds SET enabled = $2 WHERE id = $1", feedID, enabled)
	if err != nil {
		return false, fmt.Errorf("set feed enabled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetCompany returns one company by id, nil when it does not exist
func (s *Store) GetCompany(ctx context.Context, companyID int) (*models.Company, error) {
	return s.getCompany(ctx, "SELECT id, name, host, icon_url, country, language, fetchprotection, enabled FROM rss_company WHERE id = $1", companyID)
}

// GetCompanyByName returns one company by its unique name, nil when it does
// not exist
func (s *Store) GetCompanyByName(ctx context.Context, name string) (*models.Company, error) {
	return s.getCompany(ctx, "SELECT id, name, host, icon_url, country, language, fetchprotection, enabled FROM rss_company WHERE name = $1", name)
}

func (s *Store) getCompany(ctx context.Context, query string, arg any) (*models.Company, error) {
	var company models.Company
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&company.ID, &company.Name, &company.Host, &company.IconURL,
		&company.Country, &company.Language, &company.Fetchprotection, &company.Enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	return &company, nil
}

// SetCompanyEnabled flips a company's enabled flag, returning false when the
// company does not exist
func (s *Store) SetCompanyEnabled(ctx context.Context, companyID int, enabled bool) (bool, error) {
	tag, err := s.pool.Exec(ctx, "UPDATE rss_company SET enabled = $2 WHERE id = $1", companyID, enabled)
	if err != nil {
		return false, fmt.Errorf("set company enabled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetOrCreateCompany returns the company with the given name, creating it
// when missing. The second return reports whether a row was created.
func (s *Store) GetOrCreateCompany(ctx context.Context, name string) (*models.Company, bool, error) {
	var company models.Company
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rss_company (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name, host, icon_url, country, language, fetchprotection, enabled`, name).
		Scan(&company.ID, &company.Name, &company.Host, &company.IconURL,
			&company.Country, &company.Language, &company.Fetchprotection, &company.Enabled)
	if err == nil {
		return &company, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create company: %w", err)
	}

	existing, err := s.GetCompanyByName(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("company %q vanished during get-or-create", name)
	}
	return existing, false, nil
}

// EnsureTags resolves tag names to IDs, creating missing tags. IDs come back
// in input order; the second return counts newly created tags.
func (s *Store) EnsureTags(ctx context.Context, names []string) ([]int, int, error) {
	unique := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		unique = append(unique, name)
	}
	if len(unique) == 0 {
		return nil, 0, nil
	}

	idsByName := make(map[string]int, len(unique))
	rows, err := s.pool.Query(ctx, "SELECT id, name FROM rss_tags WHERE name = ANY($1)", unique)
	if err != nil {
		return nil, 0, fmt.Errorf("select tags: %w", err)
	}
	for rows.Next() {
		var (
			id   int
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, 0, err
		}
		idsByName[name] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	created := 0
	for _, name := range unique {
		if _, ok := idsByName[name]; ok {
			continue
		}
		var id int
		err := s.pool.QueryRow(ctx, `
			INSERT INTO rss_tags (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, name).Scan(&id)
		if err != nil {
			return nil, 0, fmt.Errorf("create tag %q: %w", name, err)
		}
		idsByName[name] = id
		created++
	}

	ids := make([]int, len(unique))
	for i, name := range unique {
		ids[i] = idsByName[name]
	}
	return ids, created, nil
}

// UpsertFeed creates or updates a catalog feed by URL and replaces its tag
// associations. Returns true when the feed was created.
func (s *Store) UpsertFeed(ctx context.Context, companyID int, payload models.FeedUpsert, tagIDs []int) (bool, error) {
	var created bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var feedID int
		err := tx.QueryRow(ctx, "SELECT id FROM rss_feeds WHERE url = $1", payload.URL).Scan(&feedID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			created = true
			err = tx.QueryRow(ctx, `
				INSERT INTO rss_feeds (url, section, enabled, trust_score, company_id)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id`,
				payload.URL, payload.Section, payload.Enabled, payload.TrustScore, companyID).Scan(&feedID)
			if err != nil {
				return fmt.Errorf("insert feed: %w", err)
			}
		case err != nil:
			return fmt.Errorf("select feed by url: %w", err)
		default:
			_, err = tx.Exec(ctx, `
				UPDATE rss_feeds
				SET section = $2, enabled = $3, trust_score = $4, company_id = $5
				WHERE id = $1`,
				feedID, payload.Section, payload.Enabled, payload.TrustScore, companyID)
			if err != nil {
				return fmt.Errorf("update feed: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, "DELETE FROM rss_feed_tags WHERE feed_id = $1", feedID); err != nil {
			return fmt.Errorf("clear feed tags: %w", err)
		}
		for _, tagID := range tagIDs {
			if _, err := tx.Exec(ctx,
				"INSERT INTO rss_feed_tags (feed_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				feedID, tagID); err != nil {
				return fmt.Errorf("link feed tag: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// DeleteCompanyFeedsNotIn removes a company's feeds whose URL is not in
// keepURLs. An empty keep set removes all of the company's feeds.
func (s *Store) DeleteCompanyFeedsNotIn(ctx context.Context, companyID int, keepURLs map[string]struct{}) (int, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if len(keepURLs) == 0 {
		tag, err = s.pool.Exec(ctx, "DELETE FROM rss_feeds WHERE company_id = $1", companyID)
	} else {
		urls := make([]string, 0, len(keepURLs))
		for url := range keepURLs {
			urls = append(urls, url)
		}
		sort.Strings(urls)
		tag, err = s.pool.Exec(ctx,
			"DELETE FROM rss_feeds WHERE company_id = $1 AND NOT (url = ANY($2))",
			companyID, urls)
	}
	if err != nil {
		return 0, fmt.Errorf("delete stale feeds: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// loadFeedTags fetches tag names for all given feeds in one query
func (s *Store) loadFeedTags(ctx context.Context, feedIDs []int) (map[int][]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ft.feed_id, t.name
		FROM rss_feed_tags ft
		JOIN rss_tags t ON t.id = ft.tag_id
		WHERE ft.feed_id = ANY($1)
		ORDER BY ft.feed_id, t.name`, feedIDs)
	if err != nil {
		return nil, fmt.Errorf("load feed tags: %w", err)
	}
	defer rows.Close()

	tagsByFeed := make(map[int][]string)
	for rows.Next() {
		var (
			feedID int
			name   string
		)
		if err := rows.Scan(&feedID, &name); err != nil {
			return nil, err
		}
		tagsByFeed[feedID] = append(tagsByFeed[feedID], name)
	}
	return tagsByFeed, rows.Err()
}

// scanFeedWithCompany scans a feed row joined with its (possibly NULL)
// company columns
func scanFeedWithCompany(rows pgx.Rows) (*models.Feed, error) {
	var (
		feed            models.Feed
		companyID       *int
		companyName     *string
		companyHost     *string
		companyIcon     *string
		companyCountry  *string
		companyLanguage *string
		companyFetch    *int
		companyEnabled  *bool
	)
	if err := rows.Scan(
		&feed.ID, &feed.URL, &feed.Section, &feed.Enabled, &feed.TrustScore, &feed.CompanyID,
		&companyID, &companyName, &companyHost, &companyIcon,
		&companyCountry, &companyLanguage, &companyFetch, &companyEnabled,
	); err != nil {
		return nil, fmt.Errorf("scan feed: %w", err)
	}
	if companyID != nil {
		feed.Company = &models.Company{
			ID:              *companyID,
			Name:            derefString(companyName),
			Host:            companyHost,
			IconURL:         companyIcon,
			Country:         companyCountry,
			Language:        companyLanguage,
			Fetchprotection: derefInt(companyFetch, models.FetchProtectionNone),
			Enabled:         companyEnabled != nil && *companyEnabled,
		}
	}
	return &feed, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func derefInt(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}
