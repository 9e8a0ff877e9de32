// Package scheduler drives periodic reconciliation runs.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
var ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

const (
	// DefaultInterval is the default time between reconciliation runs
	DefaultInterval = 30 * time.Minute

	// DefaultLockTTL is the default TTL for the run lock
	DefaultLockTTL = 30 * time.Minute
)

// Config holds configuration for the scheduler
type Config struct {
	// Interval is how often to kick off a reconciliation run
	Interval time.Duration

	// LockTTL is how long to hold the run lock
	LockTTL time.Duration
}

// Scheduler kicks off reconciliation runs on a fixed interval. It contends on
// the same distributed lock as the API trigger, so a manual run in flight
// simply skips the scheduled one.
type Scheduler struct {
	runner *reconcile.Runner
	locker *redis.Locker
	config Config
	logger ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(runner *reconcile.Runner, locker *redis.Locker, config Config, logger ectologger.Logger) *Scheduler {
	// Apply defaults
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}

	return &Scheduler{
		runner:   runner,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: interval=%s", s.config.Interval)

	go s.pollLoop(ctx)

	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	close(s.stopCh)

	// Wait for graceful shutdown with timeout
	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler poll loop stopping")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle attempts one scheduled reconciliation run
func (s *Scheduler) runCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.runCycle")
	defer span.End()

	lock, err := s.locker.Acquire(ctx, reconcile.RunLockKey, s.config.LockTTL)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		s.logger.WithContext(ctx).Info("Skipping scheduled run, another run is in progress")
		return
	}
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to acquire run lock")
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to release run lock")
		}
	}()

	if _, err := s.runner.Run(ctx, models.RunTriggerScheduler); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Scheduled run failed")
	}
}
