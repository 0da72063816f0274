package catalog

import (
	"fmt"
	"path"
	"strings"

	"github.com/manifeed/manifeed/internal/models"
)

// Catalog defaults applied when an entry omits the field
const (
	defaultFeedEnabled    = true
	defaultFeedTrustScore = 0.5
)

// maxSectionLength caps the section derived from an entry title
const maxSectionLength = 50

// CompanyNameFromFilename derives the company name from a catalog file path.
// The file stem is the name with underscores standing in for spaces.
func CompanyNameFromFilename(relativePath string) (string, error) {
	base := path.Base(relativePath)
	stem := strings.TrimSuffix(base, path.Ext(base))
	name := strings.Join(strings.Fields(strings.ReplaceAll(stem, "_", " ")), " ")
	if name == "" {
		return "", fmt.Errorf("%w: could not derive company name from file path: %s", models.ErrCatalogParse, relativePath)
	}
	return name, nil
}

// NormalizeCatalogFeed turns a validated catalog entry into an upsert payload,
// applying the catalog defaults for omitted fields.
func NormalizeCatalogFeed(entry models.CatalogFeed) models.FeedUpsert {
	enabled := defaultFeedEnabled
	if entry.Enabled != nil {
		enabled = *entry.Enabled
	}
	trustScore := defaultFeedTrustScore
	if entry.TrustScore != nil {
		trustScore = *entry.TrustScore
	}

	return models.FeedUpsert{
		URL:        strings.TrimSpace(entry.URL),
		Section:    normalizeSection(entry.Title),
		Enabled:    enabled,
		TrustScore: trustScore,
		Tags:       normalizeTags(entry.Tags),
	}
}

// normalizeSection collapses whitespace in the entry title and truncates the
// result. Empty titles produce no section.
func normalizeSection(title string) *string {
	section := strings.Join(strings.Fields(title), " ")
	if section == "" {
		return nil
	}
	if runes := []rune(section); len(runes) > maxSectionLength {
		section = string(runes[:maxSectionLength])
	}
	return &section
}

// normalizeTags lowercases tags, folds inner whitespace to dashes and drops
// empties and duplicates while keeping first-seen order.
func normalizeTags(tags []string) []string {
	normalized := []string{}
	seen := make(map[string]struct{})

	for _, tag := range tags {
		cleaned := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(tag))), "-")
		if cleaned == "" {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		normalized = append(normalized, cleaned)
	}
	return normalized
}
