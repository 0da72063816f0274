package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// ListSources returns a page of stored articles joined with their feeds,
// newest first. Only articles linked to at least one feed are listed.
func (s *Store) ListSources(ctx context.Context, opts interfaces.SourceListOptions) (*models.SourcePageRead, error) {
	conditions := ""
	args := []any{}
	if opts.FeedID > 0 {
		args = append(args, opts.FeedID)
		conditions += fmt.Sprintf(" AND sf.feed_id = $%d", len(args))
	}
	if opts.CompanyID > 0 {
		args = append(args, opts.CompanyID)
		conditions += fmt.Sprintf(" AND f.company_id = $%d", len(args))
	}

	dataArgs := append(append([]any{}, args...), opts.Limit, opts.Offset)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT s.id, s.title, s.summary, s.url, s.published_at, s.image_url,
		       MIN(c.name) AS company_name
		FROM rss_sources s
		JOIN rss_source_feeds sf ON sf.source_id = s.id
		JOIN rss_feeds f ON f.id = sf.feed_id
		LEFT JOIN rss_company c ON c.id = f.company_id
		WHERE true%s
		GROUP BY s.id, s.title, s.summary, s.url, s.published_at, s.image_url
		ORDER BY s.published_at DESC NULLS LAST, s.id DESC
		LIMIT $%d OFFSET $%d`, conditions, len(args)+1, len(args)+2), dataArgs...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	items := make([]models.SourceRead, 0, opts.Limit)
	for rows.Next() {
		var item models.SourceRead
		if err := rows.Scan(&item.ID, &item.Title, &item.Summary, &item.URL,
			&item.PublishedAt, &item.ImageURL, &item.CompanyName); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var total int
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(DISTINCT s.id)
		FROM rss_sources s
		JOIN rss_source_feeds sf ON sf.source_id = s.id
		JOIN rss_feeds f ON f.id = sf.feed_id
		LEFT JOIN rss_company c ON c.id = f.company_id
		WHERE true%s`, conditions), args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count sources: %w", err)
	}

	return &models.SourcePageRead{
		Items:  items,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}, nil
}

// GetSourceDetail returns one article with its company and section context,
// nil when the article does not exist. The company name is the first linked
// company alphabetically.
func (s *Store) GetSourceDetail(ctx context.Context, sourceID int) (*models.SourceDetailRead, error) {
	var detail models.SourceDetailRead
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, summary, url, published_at, image_url
		FROM rss_sources
		WHERE id = $1`, sourceID).
		Scan(&detail.ID, &detail.Title, &detail.Summary, &detail.URL, &detail.PublishedAt, &detail.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.name, f.section
		FROM rss_source_feeds sf
		JOIN rss_feeds f ON f.id = sf.feed_id
		LEFT JOIN rss_company c ON c.id = f.company_id
		WHERE sf.source_id = $1`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get source feeds: %w", err)
	}
	defer rows.Close()

	companyNames := make(map[string]struct{})
	sections := make(map[string]struct{})
	for rows.Next() {
		var (
			companyName *string
			section     *string
		)
		if err := rows.Scan(&companyName, &section); err != nil {
			return nil, err
		}
		if companyName != nil && *companyName != "" {
			companyNames[*companyName] = struct{}{}
		}
		if section != nil && *section != "" {
			sections[*section] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(companyNames) > 0 {
		names := make([]string, 0, len(companyNames))
		for name := range companyNames {
			names = append(names, name)
		}
		sort.Strings(names)
		detail.CompanyName = &names[0]
	}
	detail.FeedSections = make([]string, 0, len(sections))
	for section := range sections {
		detail.FeedSections = append(detail.FeedSections, section)
	}
	sort.Strings(detail.FeedSections)

	return &detail, nil
}
