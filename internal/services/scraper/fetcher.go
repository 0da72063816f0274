package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/models"
	"github.com/manifeed/manifeed/internal/services/feedparse"
)

const (
	fetchTimeout     = 15 * time.Second
	fetchMaxAttempts = 3
	fetchBackoff     = 1 * time.Second
	maxFeedBodyBytes = 20 << 20
)

// browserHeaders imitate a desktop Firefox for feeds behind origin checks.
// Accept-Encoding and Connection are left to the transport.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64; rv:140.0) Gecko/20100101 Firefox/140.0",
	"Accept-Language": "en-US,en;q=0.9,fr;q=0.8",
	"Accept":          "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5",
	"Cache-Control":   "no-cache",
	"Pragma":          "no-cache",
}

// Fetcher downloads and parses one feed at a time, honoring conditional GET
// validators and the feed's fetch protection level
type Fetcher struct {
	client *http.Client
	logger arbor.ILogger
}

// NewFetcher creates a feed fetcher with the standard timeout
func NewFetcher(logger arbor.ILogger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger,
	}
}

// FetchFeedResult fetches one feed and returns the scrape outcome. The
// result always carries a status; network and parse failures come back as
// error results rather than Go errors so the caller can route them onto the
// error stream.
func (f *Fetcher) FetchFeedResult(ctx context.Context, jobID string, feed models.ScrapeFeed, ingest bool) *models.ScrapeResult {
	if feed.Fetchprotection == models.FetchProtectionBlocked {
		return errorResult(jobID, feed, ingest, "Blocked by fetch protection", nil, nil)
	}

	response, err := f.requestWithRetry(ctx, feed)
	if err != nil {
		return errorResult(jobID, feed, ingest, classifyFetchError(err), nil, nil)
	}
	defer response.Body.Close()

	responseETag := cleanHeaderValue(response.Header.Get("Etag"))
	responseLastModified := parseHTTPDate(response.Header.Get("Last-Modified"))

	if response.StatusCode == http.StatusNotModified {
		return notModifiedResult(jobID, feed, ingest, responseETag, responseLastModified)
	}
	if isSameVersion(feed, responseETag, responseLastModified) {
		return notModifiedResult(jobID, feed, ingest, responseETag, responseLastModified)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxFeedBodyBytes))
	if err != nil {
		return errorResult(jobID, feed, ingest, fmt.Sprintf("Request error: %v", err), responseETag, responseLastModified)
	}

	entries, parsedLastModified, err := feedparse.ParseFeed(body)
	if err != nil {
		// Keep the observed validators so the next run can still send a
		// conditional request instead of refetching a broken feed
		return errorResult(jobID, feed, ingest, fmt.Sprintf("Feed parse error: %v", err), responseETag, responseLastModified)
	}

	newLastUpdate := responseLastModified
	if newLastUpdate == nil {
		newLastUpdate = parsedLastModified
	}

	return &models.ScrapeResult{
		JobID:           jobID,
		Ingest:          ingest,
		FeedID:          feed.FeedID,
		FeedURL:         feed.FeedURL,
		Status:          models.ResultStatusSuccess,
		Fetchprotection: feed.Fetchprotection,
		NewETag:         responseETag,
		NewLastUpdate:   newLastUpdate,
		Sources:         feedparse.NormalizeEntries(entries),
	}
}

// requestWithRetry performs the GET with linear backoff. Any non-200/304
// status counts as a failed attempt.
func (f *Fetcher) requestWithRetry(ctx context.Context, feed models.ScrapeFeed) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchMaxAttempts; attempt++ {
		response, err := f.request(ctx, feed)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if attempt < fetchMaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(fetchBackoff * time.Duration(attempt)):
			}
		}
	}
	return nil, lastErr
}

func (f *Fetcher) request(ctx context.Context, feed models.ScrapeFeed) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.FeedURL, nil)
	if err != nil {
		return nil, err
	}
	applyRequestHeaders(request, feed)

	response, err := f.client.Do(request)
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusNotModified {
		response.Body.Close()
		return nil, fmt.Errorf("HTTP %d while checking %s", response.StatusCode, feed.FeedURL)
	}
	return response, nil
}

// applyRequestHeaders sets the browser profile for protection level 2 and
// the conditional GET validators for every level
func applyRequestHeaders(request *http.Request, feed models.ScrapeFeed) {
	if feed.Fetchprotection == models.FetchProtectionBrowser {
		for name, value := range browserHeaders {
			request.Header.Set(name, value)
		}
		if feed.HostHeader != nil {
			if host := strings.ToLower(strings.TrimSpace(*feed.HostHeader)); host != "" {
				origin := "https://" + host
				request.Host = host
				request.Header.Set("Origin", origin)
				request.Header.Set("Referer", origin+"/")
			}
		}
	}

	if feed.ETag != nil {
		if etag := strings.TrimSpace(*feed.ETag); etag != "" {
			request.Header.Set("If-None-Match", etag)
		}
	}
	if feed.LastUpdate != nil {
		request.Header.Set("If-Modified-Since", feed.LastUpdate.UTC().Format(http.TimeFormat))
	}
}

// isSameVersion reports whether a 200 response carries the same validators
// the feed was fetched with last time. Some origins ignore conditional
// headers, so the worker collapses those responses to not_modified itself.
func isSameVersion(feed models.ScrapeFeed, responseETag *string, responseLastModified *time.Time) bool {
	if feed.LastUpdate != nil && responseLastModified != nil && feed.LastUpdate.UTC().Equal(*responseLastModified) {
		return true
	}
	if feed.ETag != nil && responseETag != nil && strings.TrimSpace(*feed.ETag) == *responseETag {
		return true
	}
	return false
}

func classifyFetchError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "Request timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timeout"
	}
	return fmt.Sprintf("Request error: %v", err)
}

func notModifiedResult(jobID string, feed models.ScrapeFeed, ingest bool, etag *string, lastModified *time.Time) *models.ScrapeResult {
	return &models.ScrapeResult{
		JobID:           jobID,
		Ingest:          ingest,
		FeedID:          feed.FeedID,
		FeedURL:         feed.FeedURL,
		Status:          models.ResultStatusNotModified,
		Fetchprotection: feed.Fetchprotection,
		NewETag:         etag,
		NewLastUpdate:   lastModified,
		Sources:         []models.FeedSource{},
	}
}

func errorResult(jobID string, feed models.ScrapeFeed, ingest bool, message string, etag *string, lastModified *time.Time) *models.ScrapeResult {
	return &models.ScrapeResult{
		JobID:           jobID,
		Ingest:          ingest,
		FeedID:          feed.FeedID,
		FeedURL:         feed.FeedURL,
		Status:          models.ResultStatusError,
		ErrorMessage:    &message,
		Fetchprotection: feed.Fetchprotection,
		NewETag:         etag,
		NewLastUpdate:   lastModified,
		Sources:         []models.FeedSource{},
	}
}

// parseHTTPDate parses an HTTP date header into UTC, nil when absent or
// malformed
func parseHTTPDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := http.ParseTime(value)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

// cleanHeaderValue trims a header value, nil when empty
func cleanHeaderValue(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
