// Package scheduler runs the periodic duplicate scan and auto-merge jobs.
// Distributed locks keep each tenant's job on a single instance when the
// service runs with replicas.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultScanInterval is the default interval between duplicate scans
	DefaultScanInterval = time.Hour

	// DefaultAutoMergeInterval is the default interval between auto-merge passes
	DefaultAutoMergeInterval = 15 * time.Minute

	// DefaultLockTTL is the default TTL for distributed job locks
	DefaultLockTTL = 10 * time.Minute

	scanLockKey      = "scan:"
	autoMergeLockKey = "automerge:"

	// scheduledActor is recorded on merges and resolutions made by the jobs
	scheduledActor = "scheduler"
)

// TenantSource lists the tenants the jobs iterate over
type TenantSource interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// ScanRunner runs one duplicate detection pass for a tenant
type ScanRunner interface {
	RunDetection(ctx context.Context, tenantID string, minConfidence float64) (*models.ScanRun, error)
}

// AutoMergeRunner runs one auto-merge pass for a tenant
type AutoMergeRunner interface {
	Run(ctx context.Context, tenantID string, actor string) (*models.AutoMergeRun, error)
}

// Config holds configuration for the scheduler
type Config struct {
	// ScanInterval is how often to run duplicate detection
	ScanInterval time.Duration

	// AutoMergeInterval is how often to run the auto-merge policy
	AutoMergeInterval time.Duration

	// LockTTL is how long a tenant's job lock is held
	LockTTL time.Duration

	// AutoMergeEnabled turns the auto-merge job on
	AutoMergeEnabled bool
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		ScanInterval:      DefaultScanInterval,
		AutoMergeInterval: DefaultAutoMergeInterval,
		LockTTL:           DefaultLockTTL,
		AutoMergeEnabled:  true,
	}
}

// Scheduler runs the periodic jobs over every tenant
type Scheduler struct {
	tenants   TenantSource
	scanner   ScanRunner
	autoMerge AutoMergeRunner
	locker    *redis.Locker
	config    Config
	logger    ectologger.Logger

	// Coordination
	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler. The locker may be nil, in which case
// jobs run without cross-instance coordination (single-replica deployments).
func NewScheduler(
	tenants TenantSource,
	scanner ScanRunner,
	autoMerge AutoMergeRunner,
	locker *redis.Locker,
	config Config,
	logger ectologger.Logger,
) *Scheduler {
	// Apply defaults
	if config.ScanInterval <= 0 {
		config.ScanInterval = DefaultScanInterval
	}
	if config.AutoMergeInterval <= 0 {
		config.AutoMergeInterval = DefaultAutoMergeInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}

	return &Scheduler{
		tenants:   tenants,
		scanner:   scanner,
		autoMerge: autoMerge,
		locker:    locker,
		config:    config,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedC:  make(chan struct{}),
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

	s.logger.WithContext(ctx).Infof("Starting scheduler: scan_interval=%s auto_merge_interval=%s",
		s.config.ScanInterval, s.config.AutoMergeInterval)

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

// pollLoop drives both jobs from their own tickers
func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	scanTicker := time.NewTicker(s.config.ScanInterval)
	defer scanTicker.Stop()

	mergeTicker := time.NewTicker(s.config.AutoMergeInterval)
	defer mergeTicker.Stop()

	// Scan once on start so a fresh deployment does not wait a full interval
	s.runScanCycle(ctx)

	for {
		select {
		case <-s.stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler poll loop stopping")
			return
		case <-scanTicker.C:
			s.runScanCycle(ctx)
		case <-mergeTicker.C:
			if s.config.AutoMergeEnabled {
				s.runAutoMergeCycle(ctx)
			}
		}
	}
}

// runScanCycle runs duplicate detection for every tenant
func (s *Scheduler) runScanCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.runScanCycle")
	defer span.End()

	start := time.Now()

	tenantIDs, err := s.tenants.ListIDs(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list tenants for scan cycle")
		return
	}

	ran := 0
	skipped := 0
	for _, tenantID := range tenantIDs {
		err := s.withTenantLock(ctx, scanLockKey+tenantID, func(ctx context.Context) error {
			_, err := s.scanner.RunDetection(ctx, tenantID, 0)
			return err
		}, tenantID)
		if errors.Is(err, redis.ErrLockNotAcquired) {
			skipped++
			continue
		}
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warnf("Scan failed for tenant %s", tenantID)
			continue
		}
		ran++
	}

	s.logger.WithContext(ctx).Infof("Scan cycle completed: tenants=%d ran=%d skipped=%d duration=%s",
		len(tenantIDs), ran, skipped, time.Since(start))
}

// runAutoMergeCycle runs the auto-merge policy for every tenant
func (s *Scheduler) runAutoMergeCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.runAutoMergeCycle")
	defer span.End()

	start := time.Now()

	tenantIDs, err := s.tenants.ListIDs(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list tenants for auto-merge cycle")
		return
	}

	ran := 0
	skipped := 0
	for _, tenantID := range tenantIDs {
		err := s.withTenantLock(ctx, autoMergeLockKey+tenantID, func(ctx context.Context) error {
			_, err := s.autoMerge.Run(ctx, tenantID, scheduledActor)
			return err
		}, tenantID)
		if errors.Is(err, redis.ErrLockNotAcquired) {
			skipped++
			continue
		}
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warnf("Auto-merge failed for tenant %s", tenantID)
			continue
		}
		ran++
	}

	s.logger.WithContext(ctx).Infof("Auto-merge cycle completed: tenants=%d ran=%d skipped=%d duration=%s",
		len(tenantIDs), ran, skipped, time.Since(start))
}

// withTenantLock runs fn under the tenant's job lock when a locker is
// configured, and directly otherwise.
func (s *Scheduler) withTenantLock(ctx context.Context, key string, fn func(context.Context) error, tenantID string) error {
	ctx = appctx.SetTenantID(ctx, tenantID)

	if s.locker == nil {
		return fn(ctx)
	}

	lock, err := s.locker.Acquire(ctx, key, s.config.LockTTL)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	return fn(ctx)
}
