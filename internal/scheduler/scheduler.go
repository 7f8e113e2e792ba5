package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waitlist/internal/clock"
	notificationdomain "github.com/smallbiznis/waitlist/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/waitlist/internal/observability/metrics"
	"github.com/smallbiznis/waitlist/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobOutboxDispatch = "outbox_dispatch"
	JobDripEmails     = "drip_emails"

	dripLockKey = "waitlist:lock:drip_emails"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Notifications notificationdomain.Service
	Locker        *ratelimit.Locker `optional:"true"`
	Config        Config            `optional:"true"`
}

type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	notifications notificationdomain.Service
	locker        *ratelimit.Locker

	mu       sync.Mutex
	lastDrip time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Notifications == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           cfg,
		genID:         p.GenID,
		clock:         p.Clock,
		notifications: p.Notifications,
		locker:        p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.startRun(ctx, name, batchSize)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.id),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.failures == 0 {
			run.fail()
		}
		s.finishRun(ctx, run)
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout; the next tick picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once. Drip runs at most once per
// DripInterval.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	if s.isJobEnabled(JobOutboxDispatch) {
		err = errors.Join(err, s.runJob(parent, JobOutboxDispatch, s.cfg.BatchSize, s.cfg.DispatchTimeout, s.OutboxDispatchJob))
	}
	if s.isJobEnabled(JobDripEmails) && s.dripDue() {
		dripErr := s.runJob(parent, JobDripEmails, s.cfg.BatchSize, s.cfg.DripTimeout, s.DripEmailsJob)
		if dripErr == nil {
			s.markDripRan()
		}
		err = errors.Join(err, dripErr)
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty means every job runs in this process.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// OutboxDispatchJob drains due notification jobs until a batch comes back short.
func (s *Scheduler) OutboxDispatchJob(ctx context.Context) error {
	ctx, run, owner := s.startRun(ctx, JobOutboxDispatch, s.cfg.BatchSize)
	if owner {
		defer s.finishRun(ctx, run)
	}

	for {
		processed, err := s.notifications.Dispatch(ctx, s.cfg.BatchSize)
		run.count("notification_jobs", processed)
		obsmetrics.Scheduler().AddBatchProcessed(JobOutboxDispatch, "notification_jobs", processed)
		if err != nil {
			s.failRun(ctx, run, "scheduler.outbox.dispatch_failed", err)
			return err
		}
		if processed < s.cfg.BatchSize {
			if processed == 0 {
				obsmetrics.Scheduler().IncBatchDeferred(JobOutboxDispatch, obsmetrics.SchedulerBatchDeferredReasonEmpty)
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// DripEmailsJob sends the day 2 and day 5 emails. Only one instance runs it
// at a time when a Redis lock is available.
func (s *Scheduler) DripEmailsJob(ctx context.Context) error {
	ctx, run, owner := s.startRun(ctx, JobDripEmails, s.cfg.BatchSize)
	if owner {
		defer s.finishRun(ctx, run)
	}

	err := s.locker.WithLock(ctx, dripLockKey, s.cfg.DripLockTTL, func(ctx context.Context) error {
		result, err := s.notifications.ProcessDrip(ctx)
		if err != nil {
			return err
		}
		run.count("day2", result.Day2Sent)
		run.count("day5", result.Day5Sent)
		obsmetrics.Scheduler().AddBatchProcessed(JobDripEmails, "day2", result.Day2Sent)
		obsmetrics.Scheduler().AddBatchProcessed(JobDripEmails, "day5", result.Day5Sent)
		for _, msg := range result.Errors {
			run.fail()
			s.logger(ctx).Warn("scheduler.drip.send_failed", zap.String("job", JobDripEmails), zap.String("error", msg))
		}
		s.logger(ctx).Info("scheduler.drip.completed",
			zap.Int("day2_sent", result.Day2Sent),
			zap.Int("day5_sent", result.Day5Sent),
			zap.Int("error_count", len(result.Errors)),
		)
		return nil
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		obsmetrics.Scheduler().IncBatchDeferred(JobDripEmails, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Debug("scheduler.drip.lock_held", zap.String("job", JobDripEmails))
		return nil
	}
	if err != nil {
		s.failRun(ctx, run, "scheduler.drip.failed", err)
	}
	return err
}

func (s *Scheduler) dripDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDrip.IsZero() || s.clock.Now().Sub(s.lastDrip) >= s.cfg.DripInterval
}

func (s *Scheduler) markDripRan() {
	s.mu.Lock()
	s.lastDrip = s.clock.Now()
	s.mu.Unlock()
}
