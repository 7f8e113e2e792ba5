package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/panjf2000/ants/v2"
	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/config"
	"github.com/smallbiznis/waitlist/internal/events"
	"github.com/smallbiznis/waitlist/internal/notification/domain"
	"github.com/smallbiznis/waitlist/internal/notification/templates"
	obscontext "github.com/smallbiznis/waitlist/internal/observability/context"
	"github.com/smallbiznis/waitlist/internal/observability/metrics"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	"github.com/smallbiznis/waitlist/internal/providers/email"
	"github.com/smallbiznis/waitlist/internal/ranking"
	signupdomain "github.com/smallbiznis/waitlist/internal/signup/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultWorkers   = 8
	defaultBatchSize = 100
	leaseDuration    = 2 * time.Minute
	backoffBase      = 30 * time.Second
	backoffMax       = time.Hour
	dayTwoDelay      = 24 * time.Hour
	dayFiveDelay     = 5 * 24 * time.Hour
	maxErrorLength   = 500
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Repo      domain.Repository
	Signups   signupdomain.Repository
	Ranking   *ranking.Engine
	Projects  projectdomain.Service
	Email     email.Provider
	Publisher events.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	repo      domain.Repository
	signups   signupdomain.Repository
	ranking   *ranking.Engine
	projects  projectdomain.Service
	email     email.Provider
	publisher events.Publisher
	metrics   *metrics.Metrics
	outbox    *metrics.OutboxMetrics

	pool      *ants.Pool
	sendLimit *rate.Limiter
	batchSize int

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

func New(p Params) (*Service, error) {
	log := p.Log.Named("notification.service")
	pool, err := ants.NewPool(defaultWorkers, ants.WithPanicHandler(func(v any) {
		log.Error("notification worker panic", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	m := p.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	batchSize := p.Config.Scheduler.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Service{
		db:        p.DB,
		log:       log,
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config,
		repo:      p.Repo,
		signups:   p.Signups,
		ranking:   p.Ranking,
		projects:  p.Projects,
		email:     p.Email,
		publisher: p.Publisher,
		metrics:   m,
		outbox:    metrics.Outbox(),
		pool:      pool,
		sendLimit: rate.NewLimiter(rate.Limit(10), 1),
		batchSize: batchSize,
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Enqueue records the side effects of a signup inside its transaction.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, created signupdomain.Created) error {
	signup := created.Signup
	correlationID := obscontext.RequestIDFromContext(ctx)
	now := s.clock.Now()

	jobs := []struct {
		kind    string
		payload any
	}{
		{kind: domain.KindWelcomeEmail, payload: map[string]string{"signupId": signup.ID.String()}},
		{kind: domain.KindSignupCreated, payload: domain.SignupCreatedEvent{
			SignupID:     signup.ID.String(),
			ProjectID:    signup.ProjectID.String(),
			ReferralCode: signup.ReferralCode,
			ReferredBy:   signup.ReferredBy,
			Position:     created.Position,
			CreatedAt:    signup.CreatedAt,
		}},
	}
	if created.Referrer != nil {
		jobs = append(jobs, struct {
			kind    string
			payload any
		}{kind: domain.KindReferralRecorded, payload: domain.ReferralRecordedEvent{
			ProjectID:     signup.ProjectID.String(),
			ReferrerID:    created.Referrer.ID.String(),
			RefereeID:     signup.ID.String(),
			ReferralCode:  created.Referrer.ReferralCode,
			ReferralCount: created.Referrer.ReferralCount,
		}})
	}

	for _, item := range jobs {
		payload, err := json.Marshal(item.payload)
		if err != nil {
			return err
		}
		job := domain.Job{
			ID:            s.genID.Generate(),
			Kind:          item.kind,
			SignupID:      signup.ID,
			ProjectID:     signup.ProjectID,
			DedupeKey:     item.kind + ":" + signup.ID.String(),
			Payload:       datatypes.JSON(payload),
			Status:        domain.StatusPending,
			CorrelationID: correlationID,
			AvailableAt:   now,
			CreatedAt:     now,
		}
		if _, err := s.repo.Insert(ctx, tx, &job); err != nil {
			return err
		}
	}
	return nil
}

// Kick wakes the background dispatcher without blocking the caller.
func (s *Service) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Start runs the dispatcher loop until Stop. Scheduled passes pick up
// anything a kick missed.
func (s *Service) Start() {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.stop:
				return
			case <-s.kick:
				ctx, cancel := context.WithTimeout(context.Background(), leaseDuration)
				if _, err := s.Dispatch(ctx, s.batchSize); err != nil {
					s.log.Warn("outbox dispatch failed", zap.Error(err))
				}
				cancel()
			}
		}
	}()
}

func (s *Service) Stop(ctx context.Context) error {
	close(s.stop)
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return s.pool.ReleaseTimeout(5 * time.Second)
}

// Dispatch claims due jobs and runs them on the worker pool. It returns the
// number of jobs that completed.
func (s *Service) Dispatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = s.batchSize
	}
	started := s.clock.Now()
	due, err := s.repo.ListDue(ctx, s.db, started, limit)
	if err != nil {
		s.outbox.RecordBatch("error", 0, time.Since(started))
		return 0, err
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		claimed   int
	)
	for _, job := range due {
		ok, err := s.repo.Claim(ctx, s.db, job.ID, started, started.Add(leaseDuration))
		if err != nil {
			return completed, err
		}
		if !ok {
			continue
		}
		claimed++
		job.Attempts++

		wg.Add(1)
		if err := s.pool.Submit(func() {
			defer wg.Done()
			if s.runJob(ctx, job) {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}); err != nil {
			wg.Done()
			s.log.Warn("worker pool rejected job", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
	}
	wg.Wait()

	s.outbox.RecordBatch("ok", claimed, time.Since(started))
	return completed, nil
}

func (s *Service) runJob(ctx context.Context, job domain.Job) bool {
	if job.CorrelationID != "" {
		ctx = obscontext.WithRequestID(ctx, job.CorrelationID)
	}
	log := s.log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("kind", job.Kind),
		zap.Int("attempt", job.Attempts),
	)

	err := s.handle(ctx, job)
	now := s.clock.Now()
	if err == nil {
		if markErr := s.repo.MarkDone(ctx, s.db, job.ID, now); markErr != nil {
			log.Warn("mark job done failed", zap.Error(markErr))
		}
		s.outbox.RecordDispatch(job.Kind, domain.StatusDone)
		return true
	}

	message := truncate(err.Error(), maxErrorLength)
	if job.Attempts >= domain.MaxAttempts {
		log.Error("outbox job failed permanently", zap.Error(err))
		if markErr := s.repo.MarkFailed(ctx, s.db, job.ID, now, message); markErr != nil {
			log.Warn("mark job failed failed", zap.Error(markErr))
		}
		s.outbox.RecordDispatch(job.Kind, domain.StatusFailed)
		return false
	}

	retryAt := now.Add(Backoff(job.Attempts))
	log.Warn("outbox job failed, retrying", zap.Time("retry_at", retryAt), zap.Error(err))
	if markErr := s.repo.Reschedule(ctx, s.db, job.ID, retryAt, message); markErr != nil {
		log.Warn("reschedule job failed", zap.Error(markErr))
	}
	s.outbox.RecordDispatch(job.Kind, "retry")
	return false
}

func (s *Service) handle(ctx context.Context, job domain.Job) error {
	switch job.Kind {
	case domain.KindWelcomeEmail:
		return s.SendWelcome(ctx, job.SignupID)
	case domain.KindSignupCreated, domain.KindReferralRecorded:
		return s.publisher.Publish(ctx, job.ProjectID.String(), events.Envelope{
			Type:          job.Kind,
			CorrelationID: job.CorrelationID,
			Data:          json.RawMessage(job.Payload),
		})
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// Backoff is the delay before retry n (1-based): 30s, 1m, 2m, ... capped at an hour.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffMax {
			return backoffMax
		}
	}
	return d
}

func (s *Service) SendWelcome(ctx context.Context, signupID snowflake.ID) error {
	_, err := s.sendByID(ctx, signupID, signupdomain.StageWelcome)
	return err
}

func (s *Service) SendDayTwo(ctx context.Context, signupID snowflake.ID) error {
	_, err := s.sendByID(ctx, signupID, signupdomain.StageDayTwo)
	return err
}

func (s *Service) SendDayFive(ctx context.Context, signupID snowflake.ID) error {
	_, err := s.sendByID(ctx, signupID, signupdomain.StageDayFive)
	return err
}

func (s *Service) sendByID(ctx context.Context, signupID snowflake.ID, stage signupdomain.EmailStage) (bool, error) {
	signup, err := s.signups.FindByID(ctx, s.db, signupID)
	if err != nil {
		return false, err
	}
	if signup == nil {
		return false, signupdomain.ErrNotFound
	}
	return s.send(ctx, signup, stage)
}

// send delivers one stage email unless its marker is already set. It reports
// whether an email went out.
func (s *Service) send(ctx context.Context, signup *signupdomain.Signup, stage signupdomain.EmailStage) (bool, error) {
	if sentAt(signup, stage) != nil {
		return false, nil
	}
	project, err := s.projects.GetByID(ctx, signup.ProjectID)
	if err != nil {
		return false, err
	}

	data := templates.Data{
		Brand:         project.Name,
		BaseURL:       s.cfg.BaseURL,
		ReferralLink:  ReferralLink(s.cfg.BaseURL, project.Slug, signup.ReferralCode),
		ReferralCount: signup.ReferralCount,
		Year:          s.clock.Now().Year(),
	}
	if stage != signupdomain.StageDayFive {
		position, err := s.ranking.ComputePosition(ctx, s.db, signup.ID)
		if err != nil {
			return false, err
		}
		data.Position = position
	}

	rendered, err := templates.Render(templateFor(stage), data)
	if err != nil {
		return false, err
	}
	if err := s.sendLimit.Wait(ctx); err != nil {
		return false, err
	}
	if err := s.email.Send(ctx, email.Message{
		To:      signup.Email,
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
		ReplyTo: s.cfg.Email.ReplyTo,
	}); err != nil {
		s.metrics.RecordNotification(ctx, string(stage), "error")
		return false, fmt.Errorf("send %s email: %w", stage, err)
	}

	marked, err := s.signups.MarkEmailSent(ctx, s.db, signup.ID, stage, s.clock.Now())
	if err != nil {
		return true, err
	}
	if !marked {
		s.log.Warn("email marker already set by another sender",
			zap.String("signup_id", signup.ID.String()),
			zap.String("stage", string(stage)),
		)
	}
	s.metrics.RecordNotification(ctx, string(stage), "sent")
	s.log.Info("email sent",
		zap.String("signup_id", signup.ID.String()),
		zap.String("project_id", signup.ProjectID.String()),
		zap.String("stage", string(stage)),
	)
	return true, nil
}

// ProcessDrip sends one batch of day 2 and day 5 emails. Per-signup failures
// are collected and do not stop the run.
func (s *Service) ProcessDrip(ctx context.Context) (domain.DripResult, error) {
	now := s.clock.Now()
	result := domain.DripResult{Errors: []string{}}

	stages := []struct {
		stage signupdomain.EmailStage
		delay time.Duration
		label string
		count *int
	}{
		{signupdomain.StageDayTwo, dayTwoDelay, "Day2", &result.Day2Sent},
		{signupdomain.StageDayFive, dayFiveDelay, "Day5", &result.Day5Sent},
	}
	for _, item := range stages {
		candidates, err := s.signups.FindDripCandidates(ctx, s.db, item.stage, now.Add(-item.delay), s.batchSize)
		if err != nil {
			return result, err
		}
		for i := range candidates {
			sent, err := s.send(ctx, &candidates[i], item.stage)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return result, err
				}
				result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", item.label, candidates[i].ID, err))
				continue
			}
			if sent {
				*item.count++
			}
		}
	}

	s.log.Info("drip run complete",
		zap.Int("day2_sent", result.Day2Sent),
		zap.Int("day5_sent", result.Day5Sent),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// ReferralLink is the public share link for a subscriber.
func ReferralLink(baseURL, slug, code string) string {
	return baseURL + "/" + slug + "?ref=" + code
}

func sentAt(signup *signupdomain.Signup, stage signupdomain.EmailStage) *time.Time {
	switch stage {
	case signupdomain.StageWelcome:
		return signup.WelcomeEmailSentAt
	case signupdomain.StageDayTwo:
		return signup.Day2EmailSentAt
	case signupdomain.StageDayFive:
		return signup.Day5EmailSentAt
	}
	return nil
}

func templateFor(stage signupdomain.EmailStage) string {
	switch stage {
	case signupdomain.StageDayTwo:
		return templates.DayTwo
	case signupdomain.StageDayFive:
		return templates.DayFive
	default:
		return templates.Welcome
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

