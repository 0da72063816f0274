package feedparse

import (
	"strings"
	"time"

	"github.com/manifeed/manifeed/internal/models"
)

// MinArticlePublishedAt is the floor below which articles are discarded.
// Feeds routinely republish deep archives; everything older than the floor
// (or undated) is noise for the ingest pipeline.
var MinArticlePublishedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// maxSourceURLLength matches the wire schema limit for article URLs
const maxSourceURLLength = 1000

// NormalizeEntries turns parsed entries into wire-ready feed sources:
// fields trimmed, blank optionals dropped, duplicate URLs collapsed onto
// the first occurrence, and undated or pre-floor articles discarded.
// Entries whose URL exceeds the wire limit are dropped rather than failing
// the whole feed.
func NormalizeEntries(entries []Entry) []models.FeedSource {
	normalized := []models.FeedSource{}
	seenURLs := make(map[string]struct{})

	for _, entry := range entries {
		title := strings.TrimSpace(entry.Title)
		entryURL := strings.TrimSpace(entry.URL)
		if title == "" || entryURL == "" || len(entryURL) > maxSourceURLLength {
			continue
		}
		if _, ok := seenURLs[entryURL]; ok {
			continue
		}
		publishedAt := normalizeTime(entry.PublishedAt)
		if publishedAt == nil || publishedAt.Before(MinArticlePublishedAt) {
			continue
		}

		seenURLs[entryURL] = struct{}{}
		normalized = append(normalized, models.FeedSource{
			Title:       title,
			URL:         entryURL,
			Summary:     normalizeOptional(entry.Summary),
			Author:      normalizeOptional(entry.Author),
			PublishedAt: publishedAt,
			ImageURL:    normalizeOptional(entry.ImageURL),
		})
	}
	return normalized
}

func normalizeTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
