package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
)

const (
	reindexLockKey = "search:reindex:lock"
	reindexLockTTL = 30 * time.Minute
	reindexTimeout = time.Minute
)

// DistributedLock is held by at most one process at a time.
type DistributedLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory creates a lock on key that expires after ttl.
type LockFactory func(key string, ttl time.Duration) DistributedLock

// ReindexScheduler emits a BULK_REINDEX event per entity type on a cron
// schedule. Every indexer replica runs one; the lock makes sure a run
// happens once per schedule tick.
type ReindexScheduler struct {
	cron     *cron.Cron
	emitter  *ChangeEmitter
	newLock  LockFactory
	schedule string
	logger   logger.Logger

	mu      sync.Mutex
	running bool
}

func NewReindexScheduler(emitter *ChangeEmitter, newLock LockFactory, schedule string, logger logger.Logger) *ReindexScheduler {
	location, _ := time.LoadLocation("UTC")
	return &ReindexScheduler{
		cron:     cron.New(cron.WithLocation(location)),
		emitter:  emitter,
		newLock:  newLock,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the schedule and starts the cron runner.
func (s *ReindexScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reindexTimeout)
		defer cancel()
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Scheduled reindex failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reindex schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Reindex scheduler started", "schedule", s.schedule)
	return nil
}

// Stop stops the cron runner and waits for a running job.
func (s *ReindexScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Reindex scheduler stopped")
}

// RunOnce requests a bulk reindex of every entity type unless another
// process already did within the lock TTL. The lock is kept on success so
// that replicas firing on the same tick skip; it is released on failure so
// the next attempt can run.
func (s *ReindexScheduler) RunOnce(ctx context.Context) error {
	lock := s.newLock(reindexLockKey, reindexLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire reindex lock: %w", err)
	}
	if !acquired {
		s.logger.Info("Reindex already requested by another instance")
		return nil
	}

	var errs []error
	for _, t := range model.AllEntityTypes() {
		if _, err := s.emitter.PublishBulkReindex(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		if relErr := lock.Release(ctx); relErr != nil {
			s.logger.Warn("Failed to release reindex lock", "error", relErr)
		}
		return err
	}
	return nil
}
