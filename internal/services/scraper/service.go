package scraper

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

const (
	queueBlock = 5 * time.Second
	retryPause = 1 * time.Second
)

// Service is the scrape worker: it consumes request batches, fetches the
// feeds with per-company rate limiting and publishes each feed's result to
// the stream matching its outcome.
type Service struct {
	queue    interfaces.QueueClient
	fetcher  *Fetcher
	tokens   *TokenClient
	limiters *companyLimiters
	logger   arbor.ILogger

	requestStream string
	checkStream   string
	ingestStream  string
	errorStream   string
	group         string
	consumer      string
	readCount     int
}

// NewService creates a scrape worker from the queue topology and worker
// settings in config
func NewService(queueClient interfaces.QueueClient, config *common.Config, logger arbor.ILogger) *Service {
	readCount := config.Worker.ReadCount
	if readCount < 1 {
		readCount = 20
	}
	return &Service{
		queue:         queueClient,
		fetcher:       NewFetcher(logger),
		tokens:        NewTokenClient(config, logger),
		limiters:      newCompanyLimiters(config.Worker.CompanyRatePerSecond),
		logger:        logger,
		requestStream: config.Queue.RequestStream,
		checkStream:   config.Queue.CheckStream,
		ingestStream:  config.Queue.IngestStream,
		errorStream:   config.Queue.ErrorStream,
		group:         config.Queue.RequestGroup,
		consumer:      config.Worker.ConsumerName,
		readCount:     readCount,
	}
}

// Run consumes scrape requests until the context is canceled. Transient
// auth and queue failures pause briefly and retry; they never stop the
// worker.
func (s *Service) Run(ctx context.Context) error {
	if err := s.queue.EnsureGroup(ctx, s.group, s.requestStream); err != nil {
		return err
	}
	s.logger.Info().
		Str("consumer", s.consumer).
		Str("stream", s.requestStream).
		Msg("Scrape worker started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := s.tokens.Ensure(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Worker authentication unavailable")
			s.pause(ctx)
			continue
		}

		messages, err := s.queue.ReadGroup(ctx, s.group, s.consumer, s.readCount, queueBlock, s.requestStream)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Msg("Worker queue unavailable")
			s.pause(ctx)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		var wg sync.WaitGroup
		for _, message := range messages {
			wg.Add(1)
			go func(message interfaces.QueueMessage) {
				defer wg.Done()
				s.processMessage(ctx, message)
			}(message)
		}
		wg.Wait()
	}
}

// processMessage handles one request batch. Unparseable payloads are acked
// away; a batch whose results could not all be published stays pending so
// it is not silently lost.
func (s *Service) processMessage(ctx context.Context, message interfaces.QueueMessage) {
	var request models.ScrapeRequest
	if err := json.Unmarshal(message.Payload, &request); err != nil {
		s.logger.Error().Err(err).Str("message_id", message.ID).Msg("Invalid scrape request payload")
		s.ack(ctx, message.ID)
		return
	}
	if err := request.Validate(); err != nil {
		s.logger.Error().Err(err).Str("message_id", message.ID).Str("job_id", request.JobID).Msg("Invalid scrape request payload")
		s.ack(ctx, message.ID)
		return
	}

	groups := make(map[string][]models.ScrapeFeed)
	for _, feed := range request.Feeds {
		key := feed.CompanyKey()
		groups[key] = append(groups[key], feed)
	}

	var publishFailures atomic.Int64
	var wg sync.WaitGroup
	for key, feeds := range groups {
		wg.Add(1)
		go func(key string, feeds []models.ScrapeFeed) {
			defer wg.Done()
			s.processCompanyFeeds(ctx, &request, key, feeds, &publishFailures)
		}(key, feeds)
	}
	wg.Wait()

	if failures := publishFailures.Load(); failures > 0 {
		s.logger.Warn().
			Str("message_id", message.ID).
			Str("job_id", request.JobID).
			Int64("failed_publishes", failures).
			Msg("Leaving request pending after publish failures")
		return
	}
	s.ack(ctx, message.ID)
}

// processCompanyFeeds fetches one company's feeds concurrently behind the
// company's shared rate limiter
func (s *Service) processCompanyFeeds(ctx context.Context, request *models.ScrapeRequest, key string, feeds []models.ScrapeFeed, publishFailures *atomic.Int64) {
	limiter := s.limiters.get(key)

	var wg sync.WaitGroup
	for _, feed := range feeds {
		wg.Add(1)
		go func(feed models.ScrapeFeed) {
			defer wg.Done()
			if err := limiter.Wait(ctx); err != nil {
				publishFailures.Add(1)
				return
			}
			if err := s.processFeed(ctx, request, feed); err != nil {
				publishFailures.Add(1)
			}
		}(feed)
	}
	wg.Wait()
}

// processFeed fetches one feed and publishes its result. Error results go
// to the error stream, the rest to the stream matching the job kind.
func (s *Service) processFeed(ctx context.Context, request *models.ScrapeRequest, feed models.ScrapeFeed) error {
	result := s.fetcher.FetchFeedResult(ctx, request.JobID, feed, request.Ingest)

	stream := s.checkStream
	switch {
	case result.Status == models.ResultStatusError:
		stream = s.errorStream
	case request.Ingest:
		stream = s.ingestStream
	}

	if err := s.queue.Publish(ctx, stream, result); err != nil {
		s.logger.Error().Err(err).
			Str("job_id", request.JobID).
			Int("feed_id", feed.FeedID).
			Str("stream", stream).
			Msg("Could not publish scrape result")
		return err
	}

	s.logger.Debug().
		Str("job_id", request.JobID).
		Int("feed_id", feed.FeedID).
		Str("status", string(result.Status)).
		Int("sources", len(result.Sources)).
		Msg("Feed scraped")
	return nil
}

func (s *Service) ack(ctx context.Context, messageID string) {
	if err := s.queue.Ack(ctx, s.requestStream, s.group, messageID); err != nil {
		s.logger.Error().Err(err).Str("message_id", messageID).Msg("Could not ack request message")
	}
}

// pause sleeps the retry interval unless the context ends first
func (s *Service) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(retryPause):
	}
}
