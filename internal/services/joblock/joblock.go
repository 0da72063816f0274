package joblock

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/interfaces"
	"github.com/manifeed/manifeed/internal/models"
)

// Advisory lock IDs per named job. The IDs are part of the deployment
// contract: every replica must agree on them for cross-process exclusion.
// Names without an ID are serialized within the process only.
var advisoryLockIDs = map[string]int64{
	"rss_patch_feed_enabled":    83001,
	"rss_patch_company_enabled": 83002,
	"rss_sync":                  83003,
}

// Service serializes named maintenance jobs. A local fail-fast mutex stops
// concurrent runs inside one process; a Postgres advisory lock extends the
// exclusion across replicas for the names that have a lock ID.
type Service struct {
	locker interfaces.AdvisoryLocker
	logger arbor.ILogger

	mu    sync.Mutex
	local map[string]*sync.Mutex
}

// NewService creates a job lock service backed by the given advisory locker
func NewService(locker interfaces.AdvisoryLocker, logger arbor.ILogger) *Service {
	return &Service{
		locker: locker,
		logger: logger,
		local:  make(map[string]*sync.Mutex),
	}
}

// Run executes fn while holding the named lock. Returns
// models.ErrJobAlreadyRunning without calling fn when the lock is held
// elsewhere.
func (s *Service) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	local := s.localLock(name)
	if !local.TryLock() {
		return fmt.Errorf("%w: %s", models.ErrJobAlreadyRunning, name)
	}
	defer local.Unlock()

	if lockID, ok := advisoryLockIDs[name]; ok {
		release, acquired, err := s.locker.TryAcquire(ctx, lockID)
		if err != nil {
			return fmt.Errorf("acquire advisory lock for %s: %w", name, err)
		}
		if !acquired {
			s.logger.Debug().Str("job", name).Int64("lock_id", lockID).Msg("Advisory lock held elsewhere")
			return fmt.Errorf("%w: %s", models.ErrJobAlreadyRunning, name)
		}
		defer release()
	}

	return fn(ctx)
}

func (s *Service) localLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.local[name]
	if !ok {
		lock = &sync.Mutex{}
		s.local[name] = lock
	}
	return lock
}
