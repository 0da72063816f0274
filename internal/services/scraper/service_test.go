package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// Mock implementations

type publishedMessage struct {
	stream  string
	payload any
}

// mockQueue implements interfaces.QueueClient for testing. Results are
// published from per-feed goroutines, so access is serialized.
type mockQueue struct {
	mu         sync.Mutex
	published  []publishedMessage
	ackedIDs   []string
	publishErr error
}

var _ interfaces.QueueClient = (*mockQueue)(nil)

func (m *mockQueue) EnsureGroup(ctx context.Context, group string, streams ...string) error {
	return nil
}

func (m *mockQueue) Publish(ctx context.Context, stream string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMessage{stream: stream, payload: payload})
	return nil
}

func (m *mockQueue) PublishBatch(ctx context.Context, stream string, payloads []any) error {
	for _, payload := range payloads {
		if err := m.Publish(ctx, stream, payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockQueue) ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration, streams ...string) ([]interfaces.QueueMessage, error) {
	return nil, nil
}

func (m *mockQueue) Ack(ctx context.Context, stream, group string, messageIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ackedIDs = append(m.ackedIDs, messageIDs...)
	return nil
}

func (m *mockQueue) Ping(ctx context.Context) error { return nil }

func (m *mockQueue) Close() error { return nil }

func (m *mockQueue) resultsOn(stream string) []*models.ScrapeResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := []*models.ScrapeResult{}
	for _, message := range m.published {
		if message.stream != stream {
			continue
		}
		if result, ok := message.payload.(*models.ScrapeResult); ok {
			results = append(results, result)
		}
	}
	return results
}

func newWorkerTestService(queue *mockQueue) *Service {
	return NewService(queue, common.NewDefaultConfig(), createTestLogger())
}

func requestMessage(t *testing.T, request models.ScrapeRequest) interfaces.QueueMessage {
	t.Helper()
	payload, err := json.Marshal(request)
	require.NoError(t, err)
	return interfaces.QueueMessage{Stream: "rss_scrape_requests", ID: "1-0", Payload: payload}
}

func TestProcessMessage_InvalidJSONAcked(t *testing.T) {
	queue := &mockQueue{}
	service := newWorkerTestService(queue)

	message := interfaces.QueueMessage{Stream: "rss_scrape_requests", ID: "1-0", Payload: []byte("{not json")}
	service.processMessage(context.Background(), message)

	assert.Equal(t, []string{"1-0"}, queue.ackedIDs, "an unparseable message is acked away")
	assert.Empty(t, queue.published)
}

func TestProcessMessage_InvalidRequestAcked(t *testing.T) {
	queue := &mockQueue{}
	service := newWorkerTestService(queue)

	message := interfaces.QueueMessage{Stream: "rss_scrape_requests", ID: "1-0", Payload: []byte("{}")}
	service.processMessage(context.Background(), message)

	assert.Equal(t, []string{"1-0"}, queue.ackedIDs)
	assert.Empty(t, queue.published)
}

func TestProcessMessage_RoutesResultsByOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fetcherRSSBody))
	}))
	defer server.Close()

	queue := &mockQueue{}
	service := newWorkerTestService(queue)

	request := models.ScrapeRequest{
		JobID:       "job-1",
		RequestedAt: time.Now().UTC(),
		RequestedBy: "rss_feeds_check_endpoint",
		Feeds: []models.ScrapeFeed{
			{FeedID: 1, FeedURL: server.URL, CompanyID: intPtr(10), Fetchprotection: models.FetchProtectionNone},
			{FeedID: 2, FeedURL: server.URL, CompanyID: intPtr(20), Fetchprotection: models.FetchProtectionBlocked},
		},
	}
	service.processMessage(context.Background(), requestMessage(t, request))

	checkResults := queue.resultsOn(service.checkStream)
	require.Len(t, checkResults, 1, "successful check results go to the check stream")
	assert.Equal(t, 1, checkResults[0].FeedID)
	assert.Equal(t, models.ResultStatusSuccess, checkResults[0].Status)
	assert.Len(t, checkResults[0].Sources, 2)

	errorResults := queue.resultsOn(service.errorStream)
	require.Len(t, errorResults, 1, "error results go to the error stream")
	assert.Equal(t, 2, errorResults[0].FeedID)
	assert.Equal(t, models.ResultStatusError, errorResults[0].Status)

	assert.Empty(t, queue.resultsOn(service.ingestStream))
	assert.Equal(t, []string{"1-0"}, queue.ackedIDs)
}

func TestProcessMessage_IngestResultsToIngestStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fetcherRSSBody))
	}))
	defer server.Close()

	queue := &mockQueue{}
	service := newWorkerTestService(queue)

	request := models.ScrapeRequest{
		JobID:       "job-2",
		RequestedAt: time.Now().UTC(),
		Ingest:      true,
		RequestedBy: "sources_ingest_endpoint",
		Feeds: []models.ScrapeFeed{
			{FeedID: 3, FeedURL: server.URL, Fetchprotection: models.FetchProtectionNone},
		},
	}
	service.processMessage(context.Background(), requestMessage(t, request))

	ingestResults := queue.resultsOn(service.ingestStream)
	require.Len(t, ingestResults, 1)
	assert.True(t, ingestResults[0].Ingest)
	assert.Empty(t, queue.resultsOn(service.checkStream))
	assert.Equal(t, []string{"1-0"}, queue.ackedIDs)
}

func TestProcessMessage_PublishFailureLeavesMessagePending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fetcherRSSBody))
	}))
	defer server.Close()

	queue := &mockQueue{publishErr: errors.New("stream unavailable")}
	service := newWorkerTestService(queue)

	request := models.ScrapeRequest{
		JobID:       "job-3",
		RequestedAt: time.Now().UTC(),
		RequestedBy: "rss_feeds_check_endpoint",
		Feeds: []models.ScrapeFeed{
			{FeedID: 1, FeedURL: server.URL, Fetchprotection: models.FetchProtectionNone},
		},
	}
	service.processMessage(context.Background(), requestMessage(t, request))

	assert.Empty(t, queue.ackedIDs, "a message with failed publishes stays pending for redelivery")
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	queue := &mockQueue{}
	service := newWorkerTestService(queue)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := service.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
