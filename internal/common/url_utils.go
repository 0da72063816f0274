package common

import (
	"strings"
)

// NormalizeHost reduces a configured company host to a lowercase hostname.
// Schemes, paths, ports and surrounding whitespace are stripped. Returns nil
// when nothing usable remains.
func NormalizeHost(host *string) *string {
	if host == nil {
		return nil
	}

	normalized := strings.TrimSpace(*host)
	if idx := strings.Index(normalized, "://"); idx >= 0 {
		normalized = normalized[idx+3:]
	}
	if idx := strings.IndexAny(normalized, "/?#"); idx >= 0 {
		normalized = normalized[:idx]
	}
	if idx := strings.Index(normalized, ":"); idx >= 0 {
		normalized = normalized[:idx]
	}
	normalized = strings.ToLower(strings.TrimSpace(normalized))
	if normalized == "" {
		return nil
	}
	return &normalized
}

// OriginFromHost builds the https origin for a normalized host, e.g.
// "www.example.com" -> "https://www.example.com". Empty input yields "".
func OriginFromHost(host *string) string {
	normalized := NormalizeHost(host)
	if normalized == nil {
		return ""
	}
	return "https://" + *normalized
}
