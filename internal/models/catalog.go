package models

// CatalogFeed is one entry of a company catalog JSON file. Enabled and
// TrustScore are pointers so absent keys can fall back to their catalog
// defaults (true and 0.5) instead of Go zero values.
type CatalogFeed struct {
	Title           string   `json:"title" validate:"required,min=1"`
	URL             string   `json:"url" validate:"required,min=1,max=500"`
	Enabled         *bool    `json:"enabled,omitempty"`
	TrustScore      *float64 `json:"trust_score,omitempty" validate:"omitempty,min=0,max=1"`
	Fetchprotection *int     `json:"fetchprotection,omitempty" validate:"omitempty,min=0,max=2"`
	Tags            []string `json:"tags"`
}

// Validate checks a catalog entry against its schema constraints
func (f *CatalogFeed) Validate() error {
	return validate.Struct(f)
}

// FeedUpsert is a normalized catalog entry ready for persistence
type FeedUpsert struct {
	URL        string
	Section    *string
	Enabled    bool
	TrustScore float64
	Tags       []string
}

// RepositoryAction describes what the git sync did to the local clone
type RepositoryAction string

const (
	RepositoryActionCloned   RepositoryAction = "cloned"
	RepositoryActionUpToDate RepositoryAction = "up_to_date"
	RepositoryActionUpdate   RepositoryAction = "update"
)

// RepositorySyncRead reports the git side of a catalog sync
type RepositorySyncRead struct {
	Action         RepositoryAction `json:"action"`
	RepositoryPath string           `json:"repository_path"`
	ChangedFiles   []string         `json:"changed_files"`
}

// SyncStats aggregates catalog-sync counters across processed files
type SyncStats struct {
	ProcessedFiles   int `json:"processed_files"`
	ProcessedFeeds   int `json:"processed_feeds"`
	CreatedCompanies int `json:"created_companies"`
	CreatedTags      int `json:"created_tags"`
	CreatedFeeds     int `json:"created_feeds"`
	UpdatedFeeds     int `json:"updated_feeds"`
	DeletedFeeds     int `json:"deleted_feeds"`
}

// Add merges another stats block into this one
func (s *SyncStats) Add(other SyncStats) {
	s.ProcessedFiles += other.ProcessedFiles
	s.ProcessedFeeds += other.ProcessedFeeds
	s.CreatedCompanies += other.CreatedCompanies
	s.CreatedTags += other.CreatedTags
	s.CreatedFeeds += other.CreatedFeeds
	s.UpdatedFeeds += other.UpdatedFeeds
	s.DeletedFeeds += other.DeletedFeeds
}

// SyncRead is the catalog sync endpoint response
type SyncRead struct {
	RepositoryAction RepositoryAction `json:"repository_action"`
	ProcessedFiles   int              `json:"processed_files"`
	ProcessedFeeds   int              `json:"processed_feeds"`
	CreatedCompanies int              `json:"created_companies"`
	CreatedTags      int              `json:"created_tags"`
	CreatedFeeds     int              `json:"created_feeds"`
	UpdatedFeeds     int              `json:"updated_feeds"`
	DeletedFeeds     int              `json:"deleted_feeds"`
}

// FeedEnabledToggleRead confirms a feed enabled toggle
type FeedEnabledToggleRead struct {
	FeedID  int  `json:"feed_id"`
	Enabled bool `json:"enabled"`
}

// CompanyEnabledToggleRead confirms a company enabled toggle
type CompanyEnabledToggleRead struct {
	CompanyID int  `json:"company_id"`
	Enabled   bool `json:"enabled"`
}

// FeedCheckResultRead reports one invalid feed from a catalog check run
type FeedCheckResultRead struct {
	FeedID          int    `json:"feed_id"`
	URL             string `json:"url"`
	Status          string `json:"status"`
	Error           string `json:"error"`
	Fetchprotection int    `json:"fetchprotection"`
}
