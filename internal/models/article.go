package models

import "time"

// SourcePublishedAtFallback is the sentinel stored when an article carries
// no publication date. The storage layer's (url, published_at) uniqueness
// needs a non-null value.
var SourcePublishedAtFallback = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Source is a persisted article row
type Source struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Summary     *string   `json:"summary,omitempty"`
	Author      *string   `json:"author,omitempty"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	ImageURL    *string   `json:"image_url,omitempty"`
}

// SourceRead is the paginated list view of an article
type SourceRead struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Summary     *string   `json:"summary,omitempty"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	ImageURL    *string   `json:"image_url,omitempty"`
	CompanyName *string   `json:"company_name,omitempty"`
}

// SourceDetailRead is the single-article view with company context
type SourceDetailRead struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	Summary      *string   `json:"summary,omitempty"`
	URL          string    `json:"url"`
	PublishedAt  time.Time `json:"published_at"`
	ImageURL     *string   `json:"image_url,omitempty"`
	CompanyName  *string   `json:"company_name,omitempty"`
	FeedSections []string  `json:"feed_sections"`
}

// SourcePageRead is a page of articles
type SourcePageRead struct {
	Items  []SourceRead `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// PartitionMaintenanceRead reports a repartitioning run over the article
// tables
type PartitionMaintenanceRead struct {
	SourceDefaultRowsRepartitioned     int `json:"source_default_rows_repartitioned"`
	SourceFeedDefaultRowsRepartitioned int `json:"source_feed_default_rows_repartitioned"`
	SourceWeeklyPartitionsCreated      int `json:"source_weekly_partitions_created"`
	SourceFeedWeeklyPartitionsCreated  int `json:"source_feed_weekly_partitions_created"`
	WeeksCovered                       int `json:"weeks_covered"`
}
