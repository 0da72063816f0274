package models

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ScrapeFeed is the per-feed payload carried inside a scrape request
// message. It snapshots everything a worker needs so no DB access happens on
// the worker side.
type ScrapeFeed struct {
	FeedID                   int        `json:"feed_id" validate:"required,min=1"`
	FeedURL                  string     `json:"feed_url" validate:"required,max=500"`
	CompanyID                *int       `json:"company_id,omitempty" validate:"omitempty,min=1"`
	HostHeader               *string    `json:"host_header,omitempty" validate:"omitempty,min=1,max=255"`
	Fetchprotection          int        `json:"fetchprotection" validate:"min=0,max=2"`
	ETag                     *string    `json:"etag,omitempty" validate:"omitempty,max=255"`
	LastUpdate               *time.Time `json:"last_update,omitempty"`
	LastDBArticlePublishedAt *time.Time `json:"last_db_article_published_at,omitempty"`
}

// CompanyKey returns the rate-limiting key for the feed. Feeds without a
// company are limited individually.
func (f ScrapeFeed) CompanyKey() string {
	if f.CompanyID != nil && *f.CompanyID > 0 {
		return "company:" + strconv.Itoa(*f.CompanyID)
	}
	return "feed:" + strconv.Itoa(f.FeedID)
}

// ScrapeRequest is one message on the scrape request stream
type ScrapeRequest struct {
	JobID       string       `json:"job_id" validate:"required,max=36"`
	RequestedAt time.Time    `json:"requested_at" validate:"required"`
	Ingest      bool         `json:"ingest"`
	RequestedBy string       `json:"requested_by" validate:"required,max=100"`
	Feeds       []ScrapeFeed `json:"feeds" validate:"dive"`
}

// Validate checks the request against its schema constraints
func (r *ScrapeRequest) Validate() error {
	return validate.Struct(r)
}

// FeedSource is a single normalized article extracted from a feed
type FeedSource struct {
	Title       string     `json:"title" validate:"required,min=1"`
	URL         string     `json:"url" validate:"required,min=1,max=1000"`
	Summary     *string    `json:"summary,omitempty"`
	Author      *string    `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	ImageURL    *string    `json:"image_url,omitempty"`
}

// ScrapeResult is one message on a result stream: the worker's outcome for a
// single feed of a job
type ScrapeResult struct {
	JobID           string       `json:"job_id" validate:"required,max=36"`
	Ingest          bool         `json:"ingest"`
	FeedID          int          `json:"feed_id" validate:"required,min=1"`
	FeedURL         string       `json:"feed_url" validate:"required,max=500"`
	Status          ResultStatus `json:"status" validate:"required,oneof=success not_modified error"`
	ErrorMessage    *string      `json:"error_message,omitempty"`
	NewETag         *string      `json:"new_etag,omitempty" validate:"omitempty,max=255"`
	NewLastUpdate   *time.Time   `json:"new_last_update,omitempty"`
	Fetchprotection int          `json:"fetchprotection" validate:"min=0,max=2"`
	Sources         []FeedSource `json:"sources" validate:"dive"`
}

// Validate checks the result against its schema constraints
func (r *ScrapeResult) Validate() error {
	return validate.Struct(r)
}
