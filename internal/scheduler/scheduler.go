package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"mailwave/internal/abtest"
	"mailwave/internal/config"
	"mailwave/internal/constants"
	"mailwave/internal/dispatch"
	"mailwave/internal/logger"
	"mailwave/pkg/distlock"
	"mailwave/pkg/errors"
	"mailwave/pkg/logging"
	"mailwave/pkg/metrics"
	"mailwave/pkg/models"
	"mailwave/pkg/tracing"
)

type CampaignSource interface {
	ListDue(ctx context.Context, now time.Time, limit int64) ([]models.Campaign, error)
}

type CampaignDispatcher interface {
	DispatchScheduled(ctx context.Context, id string) (*dispatch.Result, error)
}

type ABTestSource interface {
	ListDue(ctx context.Context, now time.Time, limit int64) ([]models.ABTest, error)
}

type ABTestRunner interface {
	Run(ctx context.Context, testID string) (*abtest.RunResult, error)
}

type Limits struct {
	Campaigns int
	ABTests   int
}

// TriggerLimits bound a single externally triggered tick.
var TriggerLimits = Limits{Campaigns: constants.DefaultCampaignLimit, ABTests: constants.DefaultABTestLimit}

type TickResult struct {
	ProcessedCampaigns int  `json:"processedCampaigns"`
	ProcessedABTests   int  `json:"processedABTests"`
	Skipped            bool `json:"skipped,omitempty"`
}

// Scheduler discovers due campaigns and A/B tests and hands them to the
// dispatch pipeline and the allocator.
type Scheduler struct {
	campaigns CampaignSource
	dispatch  CampaignDispatcher
	tests     ABTestSource
	allocator ABTestRunner
	locker    distlock.Locker
	logger    logger.Logger

	interval time.Duration
	limits   Limits
	lockTTL  time.Duration

	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	started atomic.Bool
}

func New(cfg config.SchedulerConfig, campaigns CampaignSource, d CampaignDispatcher, tests ABTestSource, allocator ABTestRunner, locker distlock.Locker, log logger.Logger) *Scheduler {
	s := &Scheduler{
		campaigns: campaigns,
		dispatch:  d,
		tests:     tests,
		allocator: allocator,
		locker:    locker,
		logger:    log,
		interval:  cfg.Interval,
		limits:    Limits{Campaigns: cfg.CampaignLimit, ABTests: cfg.ABTestLimit},
		lockTTL:   cfg.LockTTL,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = constants.DefaultSchedulerInterval
	}
	if s.limits.Campaigns <= 0 {
		s.limits.Campaigns = constants.DefaultCampaignLimit
	}
	if s.limits.ABTests <= 0 {
		s.limits.ABTests = constants.DefaultABTestLimit
	}
	if s.lockTTL <= 0 {
		s.lockTTL = constants.DefaultSchedulerLockTTL
	}
	if s.locker == nil {
		s.locker = distlock.NewLocalLocker()
	}
	return s
}

// Start runs a tick every interval until ctx is done or Stop is called.
// It blocks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.started.Store(true)
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Infow("Scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("Scheduler stopped", "reason", "context canceled")
			return nil
		case <-s.stop:
			s.logger.Infow("Scheduler stopped", "reason", "stop requested")
			return nil
		case now := <-ticker.C:
			if _, err := s.Tick(ctx, now.UTC()); err != nil {
				s.logger.ErrorwCtx(ctx, "Scheduler tick failed", "error", err)
			}
		}
	}
}

// Stop ends the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

func (s *Scheduler) Tick(ctx context.Context, now time.Time) (*TickResult, error) {
	return s.tick(ctx, now, s.limits)
}

// Trigger runs one tick with the limits of the external trigger.
func (s *Scheduler) Trigger(ctx context.Context) (*TickResult, error) {
	return s.tick(ctx, time.Now().UTC(), TriggerLimits)
}

func (s *Scheduler) tick(ctx context.Context, now time.Time, limits Limits) (*TickResult, error) {
	ctx = logging.WithServiceName(ctx, "scheduler")
	ctx, span := tracing.Start(ctx, "scheduler", "scheduler.tick")
	defer span.End()

	result := &TickResult{}
	lock, err := s.locker.Acquire(ctx, constants.SchedulerLockName, s.lockTTL)
	switch {
	case err != nil:
		s.logger.WarnwCtx(ctx, "Scheduler lock unavailable, relying on claims", "error", err)
	case lock == nil:
		s.logger.DebugwCtx(ctx, "Scheduler tick held elsewhere, skipping")
		result.Skipped = true
		return result, nil
	default:
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnwCtx(ctx, "Failed to release scheduler lock", "error", err)
			}
		}()
	}

	campaigns, err := s.campaigns.ListDue(ctx, now, int64(limits.Campaigns))
	if err != nil {
		tracing.RecordError(span, err)
		return result, errors.Wrap(err, errors.ErrInternal)
	}
	for _, c := range campaigns {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if s.dispatchCampaign(ctx, c.ID) {
			result.ProcessedCampaigns++
		}
	}

	tests, err := s.tests.ListDue(ctx, now, int64(limits.ABTests))
	if err != nil {
		tracing.RecordError(span, err)
		return result, errors.Wrap(err, errors.ErrInternal)
	}
	for _, t := range tests {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if s.runTest(ctx, t.ID) {
			result.ProcessedABTests++
		}
	}

	if result.ProcessedCampaigns > 0 || result.ProcessedABTests > 0 {
		s.logger.InfowCtx(ctx, "Scheduler tick processed work",
			"campaigns", result.ProcessedCampaigns,
			"ab_tests", result.ProcessedABTests,
		)
	}
	return result, nil
}

// dispatchCampaign reports whether this tick attempted the campaign.
func (s *Scheduler) dispatchCampaign(ctx context.Context, id string) bool {
	res, err := s.dispatch.DispatchScheduled(ctx, id)
	switch {
	case errors.IsInvalidStateTransition(err):
		metrics.IncSchedulerItem("campaign", "skipped")
		s.logger.InfowCtx(ctx, "Scheduled campaign already claimed", "campaign_id", id)
		return false
	case err != nil:
		metrics.IncSchedulerItem("campaign", "failed")
		s.logger.ErrorwCtx(ctx, "Scheduled campaign dispatch failed", "error", err, "campaign_id", id)
		return true
	}
	metrics.IncSchedulerItem("campaign", "processed")
	s.logger.InfowCtx(ctx, "Scheduled campaign dispatched",
		"campaign_id", id,
		"sent", res.Sent,
		"failed", res.Failed,
	)
	return true
}

func (s *Scheduler) runTest(ctx context.Context, id string) bool {
	res, err := s.allocator.Run(ctx, id)
	switch {
	case err != nil:
		metrics.IncSchedulerItem("abtest", "failed")
		s.logger.ErrorwCtx(ctx, "A/B test run failed", "error", err, "ab_test_id", id)
		return true
	case res == nil:
		metrics.IncSchedulerItem("abtest", "skipped")
		return false
	}
	metrics.IncSchedulerItem("abtest", "processed")
	return true
}
