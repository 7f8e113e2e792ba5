package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/emailaddr"
	"github.com/smallbiznis/waitlist/internal/idgen"
	"github.com/smallbiznis/waitlist/internal/project/domain"
	"github.com/smallbiznis/waitlist/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	cacheSize        = 1024
	cacheTTL         = 30 * time.Second
	maxSlugAttempts  = 50
	fallbackSlugBase = "waitlist"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Codes idgen.Generator
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	codes    idgen.Generator
	clock    clock.Clock
	repo     domain.Repository
	bySlug   *expirable.LRU[string, domain.Project]
	hashCost int
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("project.service"),
		genID:    p.GenID,
		codes:    p.Codes,
		clock:    p.Clock,
		repo:     p.Repo,
		bySlug:   expirable.NewLRU[string, domain.Project](cacheSize, nil, cacheTTL),
		hashCost: bcrypt.DefaultCost,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProjectRequest) (domain.CreateProjectResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.CreateProjectResponse{}, domain.ErrInvalidName
	}
	ownerEmail := emailaddr.Normalize(req.OwnerEmail)
	if !emailaddr.Valid(ownerEmail) {
		return domain.CreateProjectResponse{}, domain.ErrInvalidEmail
	}

	secret := s.codes.AdminSecret()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.hashCost)
	if err != nil {
		return domain.CreateProjectResponse{}, fmt.Errorf("hash admin secret: %w", err)
	}

	now := s.clock.Now()
	project := domain.Project{
		ID:              s.genID.Generate(),
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		OwnerEmail:      ownerEmail,
		AdminSecretHash: string(hash),
		Tier:            domain.TierFree,
		Plan:            domain.TierFree,
		PrimaryColor:    strings.TrimSpace(req.PrimaryColor),
		LogoURL:         strings.TrimSpace(req.LogoURL),
		Headline:        strings.TrimSpace(req.Headline),
		Subheadline:     strings.TrimSpace(req.Subheadline),
		ButtonText:      strings.TrimSpace(req.ButtonText),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	base := slug.Make(name)
	if base == "" {
		base = fallbackSlugBase
	}
	// Another request may take the free slug between the check and the insert;
	// the unique index catches it and we move to the next suffix.
	for attempt, suffix := 0, 0; attempt < maxSlugAttempts; attempt++ {
		candidate, next, err := s.nextFreeSlug(ctx, base, suffix)
		if err != nil {
			return domain.CreateProjectResponse{}, err
		}
		project.Slug = candidate

		err = s.repo.Insert(ctx, s.db, &project)
		if err == nil {
			s.log.Info("project created",
				zap.String("project_id", project.ID.String()),
				zap.String("slug", project.Slug),
			)
			return domain.CreateProjectResponse{Project: project, AdminSecret: secret}, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return domain.CreateProjectResponse{}, err
		}
		suffix = next
	}
	return domain.CreateProjectResponse{}, fmt.Errorf("allocate slug for %q: too many collisions", base)
}

// nextFreeSlug walks base, base-1, base-2, ... starting at suffix and returns
// the first unused candidate with the suffix to resume from.
func (s *Service) nextFreeSlug(ctx context.Context, base string, suffix int) (string, int, error) {
	for {
		candidate := base
		if suffix > 0 {
			candidate = fmt.Sprintf("%s-%d", base, suffix)
		}
		exists, err := s.repo.SlugExists(ctx, s.db, candidate)
		if err != nil {
			return "", 0, err
		}
		if !exists {
			return candidate, suffix + 1, nil
		}
		suffix++
	}
}

func (s *Service) GetPublic(ctx context.Context, slugValue string) (domain.PublicProject, error) {
	slugValue = strings.TrimSpace(slugValue)
	if slugValue == "" {
		return domain.PublicProject{}, domain.ErrNotFound
	}

	project, ok := s.bySlug.Get(slugValue)
	if !ok {
		item, err := s.repo.FindBySlug(ctx, s.db, slugValue)
		if err != nil {
			return domain.PublicProject{}, err
		}
		if item == nil {
			return domain.PublicProject{}, domain.ErrNotFound
		}
		project = *item
		s.bySlug.Add(slugValue, project)
	}

	count, err := s.repo.CountSignups(ctx, s.db, project.ID)
	if err != nil {
		return domain.PublicProject{}, err
	}

	return domain.PublicProject{
		ID:           project.ID,
		Slug:         project.Slug,
		Name:         project.Name,
		Description:  project.Description,
		PrimaryColor: project.PrimaryColor,
		LogoURL:      project.LogoURL,
		Headline:     project.Headline,
		Subheadline:  project.Subheadline,
		ButtonText:   project.ButtonText,
		Tier:         project.Tier,
		SignupCount:  count,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Project, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// Authorize checks the admin secret for a project. A missing secret is
// rejected before the lookup so unauthenticated callers cannot probe ids.
func (s *Service) Authorize(ctx context.Context, projectID, secret string) (*domain.Project, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, domain.ErrUnauthorized
	}
	id, err := snowflake.ParseString(strings.TrimSpace(projectID))
	if err != nil {
		return nil, domain.ErrNotFound
	}
	project, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !secretMatches(project.AdminSecretHash, secret) {
		s.log.Warn("admin secret mismatch", zap.String("project_id", project.ID.String()))
		return nil, domain.ErrForbidden
	}
	return project, nil
}

// secretMatches compares in constant time via bcrypt.
func secretMatches(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

func (s *Service) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*domain.Project, error) {
	item, err := s.repo.FindBySubscriptionID(ctx, s.db, strings.TrimSpace(subscriptionID))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) ApplyBilling(ctx context.Context, update domain.BillingUpdate) error {
	if update.ProjectID == 0 {
		return domain.ErrInvalidID
	}
	project, err := s.GetByID(ctx, update.ProjectID)
	if err != nil {
		return err
	}

	if _, err := s.repo.UpdateBilling(ctx, s.db, update); err != nil {
		return err
	}
	s.bySlug.Remove(project.Slug)

	s.log.Info("project billing updated",
		zap.String("project_id", project.ID.String()),
		zap.String("plan", update.Plan),
		zap.String("tier", update.Tier),
	)
	return nil
}

func (s *Service) CountAll(ctx context.Context) (int64, error) {
	return s.repo.CountAll(ctx, s.db)
}
