package scheduler

import (
	"context"
	"sort"
	"time"

	obscontext "github.com/smallbiznis/waitlist/internal/observability/context"
	obslogger "github.com/smallbiznis/waitlist/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/waitlist/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a job. Its id doubles as the request id so
// outbox and email logs written during the run can be joined back to it.
type jobRun struct {
	job       string
	id        string
	batchSize int
	startedAt time.Time
	processed map[string]int
	failures  int
}

type jobRunKey struct{}

// count adds processed items under a label such as "day2" or "notification_jobs".
func (r *jobRun) count(label string, n int) {
	if r == nil || n <= 0 {
		return
	}
	if r.processed == nil {
		r.processed = map[string]int{}
	}
	r.processed[label] += n
}

func (r *jobRun) fail() {
	if r != nil {
		r.failures++
	}
}

func (r *jobRun) total() int {
	if r == nil {
		return 0
	}
	sum := 0
	for _, n := range r.processed {
		sum += n
	}
	return sum
}

// startRun attaches a run to ctx unless one is already there. owner reports
// whether the caller created it and so must finish it.
func (s *Scheduler) startRun(ctx context.Context, job string, batchSize int) (_ context.Context, run *jobRun, owner bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && existing != nil {
		return ctx, existing, false
	}
	run = &jobRun{
		job:       job,
		id:        s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithRequestID(ctx, run.id)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")

	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", job),
		zap.String("run_id", run.id),
		zap.Int("batch_size", batchSize),
	)
	return ctx, run, true
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.id),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.total()),
		zap.Int("error_count", run.failures),
	}
	labels := make([]string, 0, len(run.processed))
	for label := range run.processed {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fields = append(fields, zap.Int("processed_"+label, run.processed[label]))
	}

	log := s.logger(ctx)
	if run.failures > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) failRun(ctx context.Context, run *jobRun, msg string, err error) {
	if err == nil {
		return
	}
	run.fail()
	job := ""
	if run != nil {
		job = run.job
	}
	s.logger(ctx).Error(msg,
		zap.String("job", job),
		zap.String("error_type", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	)
}
