package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/waitlist/internal/audit/domain"
	"github.com/smallbiznis/waitlist/internal/audit/masking"
	"github.com/smallbiznis/waitlist/internal/clock"
	obscontext "github.com/smallbiznis/waitlist/internal/observability/context"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	"github.com/smallbiznis/waitlist/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// sensitiveKeys are masked before metadata is stored.
var sensitiveKeys = []string{"customer_id", "subscription_id", "email", "owner_email"}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     auditdomain.Repository
	Projects projectdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     auditdomain.Repository
	projects projectdomain.Service
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("audit.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		projects: p.Projects,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType, actorID := s.resolveActor(ctx, entry.ActorType, entry.ActorID)

	payload := masking.MaskFields(entry.Metadata, sensitiveKeys...)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["request_id"] = requestID
	}

	log := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ProjectID:  entry.ProjectID,
		ActorType:  actorType,
		ActorID:    normalize(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   normalize(entry.TargetID),
		CreatedAt:  s.clock.Now(),
	}
	if payload != nil {
		log.Metadata = datatypes.JSONMap(payload)
	}
	if ip := obscontext.ClientIPFromContext(ctx); ip != "" {
		log.IPAddress = &ip
	}

	if err := s.repo.Insert(ctx, s.db, &log); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, projectID, secret string, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	project, err := s.projects.Authorize(ctx, projectID, secret)
	if err != nil {
		return auditdomain.ListResponse{}, err
	}
	offset, limit, err := req.Normalize()
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		ProjectID: project.ID,
		Action:    req.Action,
		Offset:    offset,
		Limit:     limit + 1,
	})
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	items, info := pagination.BuildPageInfo(items, offset, limit)
	if items == nil {
		items = []auditdomain.AuditLog{}
	}
	return auditdomain.ListResponse{AuditLogs: items, PageInfo: info}, nil
}

func (s *Service) resolveActor(ctx context.Context, actorType auditdomain.ActorType, actorID string) (string, string) {
	if actorType == "" {
		if ctxType, ctxID := obscontext.ActorFromContext(ctx); ctxType != "" {
			actorType = auditdomain.ActorType(ctxType)
			if strings.TrimSpace(actorID) == "" {
				actorID = ctxID
			}
		}
	}
	if actorType == "" {
		actorType = auditdomain.ActorTypeSystem
	}
	return string(actorType), actorID
}

func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
