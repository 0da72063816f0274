package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/models"
)

const (
	checkRequestTimeout = 10 * time.Second
	maxConcurrentChecks = 5
	maxCheckBodyBytes   = 5 << 20
)

// browserHeaders imitate a desktop Firefox so origins that reject plain
// clients still answer the probe
var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (X11; Linux x86_64; rv:140.0) Gecko/20100101 Firefox/140.0",
	"Accept":                    "application/rss+xml, application/xml, application/atom+xml, text/xml;q=0.9, */*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9,fr;q=0.8,de;q=0.7,es;q=0.6,it;q=0.5",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
}

// CheckFeeds probes the requested feed URLs and reports the invalid ones.
// Each feed is fetched with escalating fetch protection levels until one
// produces a parseable feed; feeds where no level works are reported with
// level 0. feedIDs nil/empty means all feeds.
func (s *Service) CheckFeeds(ctx context.Context, feedIDs []int) ([]models.FeedCheckResultRead, error) {
	feeds, err := s.storage.ListScrapePayloads(ctx, feedIDs, false)
	if err != nil {
		return nil, err
	}
	if len(feeds) == 0 {
		return []models.FeedCheckResultRead{}, nil
	}

	results := make([]*models.FeedCheckResultRead, len(feeds))
	semaphore := make(chan struct{}, maxConcurrentChecks)
	var wg sync.WaitGroup

	for index, feed := range feeds {
		wg.Add(1)
		go func(index int, feed models.ScrapeFeed) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			results[index] = s.checkSingleFeed(ctx, feed)
		}(index, feed)
	}
	wg.Wait()

	invalid := []models.FeedCheckResultRead{}
	for _, result := range results {
		if result != nil {
			invalid = append(invalid, *result)
		}
	}

	s.logger.Info().
		Int("checked", len(feeds)).
		Int("invalid", len(invalid)).
		Msg("Feed check finished")
	return invalid, nil
}

// checkSingleFeed returns nil for a valid feed and the failure details
// otherwise
func (s *Service) checkSingleFeed(ctx context.Context, feed models.ScrapeFeed) *models.FeedCheckResultRead {
	lastError := ""
	for _, level := range []int{models.FetchProtectionNone, models.FetchProtectionBrowser} {
		body, contentType, err := s.probeFeed(ctx, feed, level)
		if err != nil {
			lastError = err.Error()
			continue
		}
		if valid, validationError := ValidateFeedPayload(body, contentType); !valid {
			lastError = validationError
			continue
		}
		return nil
	}

	if lastError == "" {
		lastError = "Blocked by fetch protection"
	}
	return &models.FeedCheckResultRead{
		FeedID:          feed.FeedID,
		URL:             feed.FeedURL,
		Status:          "invalid",
		Error:           lastError,
		Fetchprotection: models.FetchProtectionBlocked,
	}
}

// probeFeed fetches the feed URL at the given protection level and returns
// the body and content type
func (s *Service) probeFeed(ctx context.Context, feed models.ScrapeFeed, level int) (string, string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.FeedURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("request error: %v", err)
	}
	if level >= models.FetchProtectionBrowser {
		for name, value := range browserHeaders {
			request.Header.Set(name, value)
		}
		if origin := common.OriginFromHost(feed.HostHeader); origin != "" {
			request.Header.Set("Origin", origin)
			request.Header.Set("Referer", origin+"/")
		}
	}

	response, err := s.client.Do(request)
	if err != nil {
		return "", "", fmt.Errorf("request error: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("HTTP %d while checking %s", response.StatusCode, feed.FeedURL)
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, maxCheckBodyBytes))
	if err != nil {
		return "", "", fmt.Errorf("request error: %v", err)
	}
	return string(body), response.Header.Get("Content-Type"), nil
}

// ValidateFeedPayload checks whether a fetched body is a parseable RSS or
// Atom document. Returns the failure reason for invalid payloads.
func ValidateFeedPayload(content, contentType string) (bool, string) {
	contentTypeLower := strings.ToLower(contentType)
	trimmed := strings.TrimSpace(content)

	looksLikeXML := strings.Contains(contentTypeLower, "xml") ||
		strings.Contains(contentTypeLower, "rss") ||
		strings.Contains(contentTypeLower, "atom") ||
		strings.HasPrefix(trimmed, "<?xml") ||
		strings.HasPrefix(trimmed, "<rss") ||
		strings.HasPrefix(trimmed, "<feed")
	if !looksLikeXML {
		return false, "Not an XML/RSS feed"
	}

	switch gofeed.DetectFeedType(strings.NewReader(content)) {
	case gofeed.FeedTypeRSS, gofeed.FeedTypeAtom:
	default:
		return false, "XML but not RSS/Atom format"
	}

	if _, err := gofeed.NewParser().ParseString(content); err != nil {
		return false, fmt.Sprintf("Invalid XML: %v", err)
	}
	return true, ""
}
