package models

import "time"

// Company represents a publisher whose feeds are tracked in the catalog
type Company struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Host            *string `json:"host,omitempty"`
	IconURL         *string `json:"icon_url,omitempty"`
	Country         *string `json:"country,omitempty"`
	Language        *string `json:"language,omitempty"`
	Fetchprotection int     `json:"fetchprotection"`
	Enabled         bool    `json:"enabled"`
}

// Feed represents a single RSS/Atom feed belonging to a company
type Feed struct {
	ID         int      `json:"id"`
	URL        string   `json:"url"`
	Section    *string  `json:"section,omitempty"`
	Enabled    bool     `json:"enabled"`
	TrustScore float64  `json:"trust_score"`
	CompanyID  *int     `json:"company_id,omitempty"`
	Company    *Company `json:"company,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	// Scraping state is kept in its own table and loaded on demand
	Scraping *FeedScrapingState `json:"scraping,omitempty"`
}

// FeedScrapingState holds the per-feed fetch bookkeeping maintained by the
// result persistence path: conditional GET validators, the effective fetch
// protection level and the consecutive error counter.
type FeedScrapingState struct {
	FeedID          int        `json:"feed_id"`
	Fetchprotection int        `json:"fetchprotection"`
	LastUpdate      *time.Time `json:"last_update,omitempty"`
	ETag            *string    `json:"etag,omitempty"`
	ErrorNbr        int        `json:"error_nbr"`
	ErrorMsg        *string    `json:"error_msg,omitempty"`
}

// Fetch protection levels. Level 0 blocks all fetching, level 1 is a plain
// conditional GET, level 2 adds browser-like headers for picky origins.
const (
	FetchProtectionBlocked = 0
	FetchProtectionNone    = 1
	FetchProtectionBrowser = 2
)
