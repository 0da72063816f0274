package persister

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

const (
	consumerName = "db_manager_1"
	readCount    = 10
	queueBlock   = 5 * time.Second
	retryPause   = 1 * time.Second
)

// Service is the db manager loop: it consumes worker results from the
// three result streams and applies each one to the database.
type Service struct {
	queue   interfaces.QueueClient
	storage interfaces.JobStorage
	logger  arbor.ILogger

	checkStream  string
	ingestStream string
	errorStream  string
	group        string
}

func NewService(queueClient interfaces.QueueClient, storage interfaces.JobStorage, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		queue:        queueClient,
		storage:      storage,
		logger:       logger,
		checkStream:  config.Queue.CheckStream,
		ingestStream: config.Queue.IngestStream,
		errorStream:  config.Queue.ErrorStream,
		group:        config.Queue.ResultGroup,
	}
}

// Run consumes worker results until the context is canceled. Results that
// fail to persist are left pending so a later pass can retry them.
func (s *Service) Run(ctx context.Context) error {
	streams := []string{s.checkStream, s.ingestStream, s.errorStream}
	if err := s.queue.EnsureGroup(ctx, s.group, streams...); err != nil {
		return err
	}
	s.logger.Info().
		Str("group", s.group).
		Str("consumer", consumerName).
		Msg("Result persister started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		messages, err := s.queue.ReadGroup(ctx, s.group, consumerName, readCount, queueBlock, streams...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Msg("Result queue unavailable")
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

// processMessage applies one worker result. Unparseable payloads are acked
// away; persistence failures leave the message pending.
func (s *Service) processMessage(ctx context.Context, message interfaces.QueueMessage) {
	var result models.ScrapeResult
	if err := json.Unmarshal(message.Payload, &result); err != nil {
		s.logger.Error().Err(err).
			Str("message_id", message.ID).
			Str("stream", message.Stream).
			Msg("Invalid scrape result payload")
		s.ack(ctx, message)
		return
	}
	if err := result.Validate(); err != nil {
		s.logger.Error().Err(err).
			Str("message_id", message.ID).
			Str("stream", message.Stream).
			Str("job_id", result.JobID).
			Msg("Invalid scrape result payload")
		s.ack(ctx, message)
		return
	}

	kind := models.ResolveQueueKind(message.Stream, s.checkStream, s.ingestStream, s.errorStream)
	persisted, err := s.storage.PersistWorkerResult(ctx, &result, kind)
	if err != nil {
		s.logger.Error().Err(err).
			Str("job_id", result.JobID).
			Int("feed_id", result.FeedID).
			Str("stream", message.Stream).
			Msg("Could not persist scrape result")
		return
	}
	if !persisted {
		s.logger.Warn().
			Str("job_id", result.JobID).
			Int("feed_id", result.FeedID).
			Msg("Discarded duplicate or orphaned scrape result")
	} else {
		s.logger.Debug().
			Str("job_id", result.JobID).
			Int("feed_id", result.FeedID).
			Str("status", string(result.Status)).
			Str("queue_kind", string(kind)).
			Int("sources", len(result.Sources)).
			Msg("Scrape result persisted")
	}
	s.ack(ctx, message)
}

func (s *Service) ack(ctx context.Context, message interfaces.QueueMessage) {
	if err := s.queue.Ack(ctx, message.Stream, s.group, message.ID); err != nil {
		s.logger.Error().Err(err).
			Str("message_id", message.ID).
			Str("stream", message.Stream).
			Msg("Could not ack result message")
	}
}

func (s *Service) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(retryPause):
	}
}
