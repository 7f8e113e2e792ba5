package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/config"
	"github.com/smallbiznis/waitlist/internal/emailaddr"
	"github.com/smallbiznis/waitlist/internal/idgen"
	"github.com/smallbiznis/waitlist/internal/observability/metrics"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	"github.com/smallbiznis/waitlist/internal/ranking"
	"github.com/smallbiznis/waitlist/internal/signup/domain"
	"github.com/smallbiznis/waitlist/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCodeAttempts = 3

const (
	outcomeCreated  = "created"
	outcomeExisting = "existing"
	outcomeQuota    = "quota_exceeded"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Codes    idgen.Generator
	Clock    clock.Clock
	Repo     domain.Repository
	Ranking  *ranking.Engine
	Projects projectdomain.Service
	Plans    *config.PlanConfigHolder
	Notifier domain.Notifier `optional:"true"`
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	codes    idgen.Generator
	clock    clock.Clock
	repo     domain.Repository
	ranking  *ranking.Engine
	projects projectdomain.Service
	plans    *config.PlanConfigHolder
	notifier domain.Notifier
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	notifier := p.Notifier
	if notifier == nil {
		notifier = domain.NewNoopNotifier()
	}
	m := p.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("signup.service"),
		genID:    p.GenID,
		codes:    p.Codes,
		clock:    p.Clock,
		repo:     p.Repo,
		ranking:  p.Ranking,
		projects: p.Projects,
		plans:    p.Plans,
		notifier: notifier,
		metrics:  m,
	}
}

func (s *Service) Signup(ctx context.Context, req domain.Request) (*domain.Result, error) {
	email := emailaddr.Normalize(req.Email)
	if !emailaddr.Valid(email) {
		return nil, domain.ErrInvalidEmail
	}
	projectID, err := domain.ParseProjectID(req.ProjectID)
	if err != nil {
		return nil, err
	}
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, projectdomain.ErrNotFound) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, err
	}

	maxSignups := s.plans.Get().SignupLimit(project.Tier)
	if maxSignups > 0 {
		count, err := s.repo.CountByProject(ctx, s.db, project.ID)
		if err != nil {
			return nil, err
		}
		if count >= maxSignups {
			s.metrics.RecordSignup(ctx, project.Tier, outcomeQuota)
			return nil, domain.ErrQuotaExceeded
		}
	}

	if existing, err := s.existing(ctx, project.ID, email); err != nil || existing != nil {
		if existing != nil {
			s.metrics.RecordSignup(ctx, project.Tier, outcomeExisting)
		}
		return existing, err
	}

	// A malformed code cannot match any signup.
	referralCode := strings.TrimSpace(req.ReferralCode)
	if !idgen.IsValidCode(referralCode) {
		referralCode = ""
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		result, credited, err := s.create(ctx, project, email, referralCode, maxSignups)
		if err == nil {
			s.notifier.Kick()
			s.metrics.RecordSignup(ctx, project.Tier, outcomeCreated)
			if credited {
				s.metrics.RecordReferral(ctx, true)
			} else if req.ReferralCode != "" {
				s.metrics.RecordReferral(ctx, false)
			}
			s.log.Info("signup created",
				zap.String("project_id", project.ID.String()),
				zap.String("signup_id", result.Signup.ID.String()),
				zap.Int64("position", result.Position),
				zap.Bool("referral_credited", credited),
			)
			return result, nil
		}
		if errors.Is(err, domain.ErrQuotaExceeded) {
			s.metrics.RecordSignup(ctx, project.Tier, outcomeQuota)
			return nil, err
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}

		// Lost a race with a concurrent signup of the same email.
		existing, lookupErr := s.existing(ctx, project.ID, email)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing != nil {
			s.metrics.RecordSignup(ctx, project.Tier, outcomeExisting)
			return existing, nil
		}
		s.log.Warn("referral code collision", zap.String("project_id", project.ID.String()), zap.Int("attempt", attempt+1))
	}
	return nil, domain.ErrCodeExhausted
}

func (s *Service) existing(ctx context.Context, projectID snowflake.ID, email string) (*domain.Result, error) {
	signup, err := s.repo.FindByProjectEmail(ctx, s.db, projectID, email)
	if err != nil || signup == nil {
		return nil, err
	}
	position, err := s.ranking.ComputePosition(ctx, s.db, signup.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Result{Signup: *signup, Position: position, AlreadySignedUp: true}, nil
}

func (s *Service) create(ctx context.Context, project *projectdomain.Project, email, referralCode string, maxSignups int64) (*domain.Result, bool, error) {
	var (
		result   domain.Result
		credited bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if maxSignups > 0 {
			if err := s.repo.LockProject(ctx, tx, project.ID); err != nil {
				return err
			}
			count, err := s.repo.CountByProject(ctx, tx, project.ID)
			if err != nil {
				return err
			}
			if count >= maxSignups {
				return domain.ErrQuotaExceeded
			}
		}

		signup := domain.Signup{
			ID:           s.genID.Generate(),
			ProjectID:    project.ID,
			Email:        email,
			ReferralCode: s.codes.ReferralCode(),
			CreatedAt:    s.clock.Now(),
		}

		// The referral is credited before the insert so a failed insert rolls
		// the increment back with it.
		var referrer *domain.Signup
		if referralCode != "" {
			found, err := s.repo.FindByReferralCode(ctx, tx, project.ID, referralCode)
			if err != nil {
				return err
			}
			if found != nil {
				ok, err := s.ranking.RecordReferral(ctx, tx, project.ID, found.ReferralCode, signup.ID)
				if err != nil {
					return fmt.Errorf("record referral: %w", err)
				}
				if ok {
					credited = true
					found.ReferralCount++
					referrer = found
					code := found.ReferralCode
					signup.ReferredBy = &code
				}
			}
		}

		if err := s.repo.Insert(ctx, tx, &signup); err != nil {
			return err
		}

		position, err := s.ranking.InitialRank(ctx, tx, signup.ID)
		if err != nil {
			return err
		}

		if err := s.notifier.Enqueue(ctx, tx, domain.Created{
			Signup:   signup,
			Position: position,
			Referrer: referrer,
		}); err != nil {
			return fmt.Errorf("enqueue notifications: %w", err)
		}

		result = domain.Result{Signup: signup, Position: position}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &result, credited, nil
}
