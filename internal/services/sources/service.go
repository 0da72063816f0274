package sources

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// Listing page bounds. Out-of-range values are clamped rather than rejected
// so stale clients keep working.
const (
	defaultPageLimit = 50
	maxPageLimit     = 100
)

// Service reads persisted articles and runs partition maintenance
type Service struct {
	storage interfaces.SourceStorage
	logger  arbor.ILogger
}

// NewService creates a source read service
func NewService(storage interfaces.SourceStorage, logger arbor.ILogger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

var _ interfaces.SourceService = (*Service)(nil)

// ListSources returns one page of articles, newest first
func (s *Service) ListSources(ctx context.Context, opts interfaces.SourceListOptions) (*models.SourcePageRead, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultPageLimit
	}
	if opts.Limit > maxPageLimit {
		opts.Limit = maxPageLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return s.storage.ListSources(ctx, opts)
}

// GetSource returns one article with its feed links
func (s *Service) GetSource(ctx context.Context, sourceID int) (*models.SourceDetailRead, error) {
	detail, err := s.storage.GetSourceDetail(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, fmt.Errorf("%w: %d", models.ErrSourceNotFound, sourceID)
	}
	return detail, nil
}

// RepartitionSources moves articles parked in the default partitions into
// weekly partitions
func (s *Service) RepartitionSources(ctx context.Context) (*models.PartitionMaintenanceRead, error) {
	read, err := s.storage.RepartitionDefaultSources(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Int("moved_sources", read.SourceDefaultRowsRepartitioned).
		Int("moved_links", read.SourceFeedDefaultRowsRepartitioned).
		Int("weeks_covered", read.WeeksCovered).
		Msg("Source partitions maintained")
	return read, nil
}
