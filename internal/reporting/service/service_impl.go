package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/waitlist/internal/audit/domain"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	"github.com/smallbiznis/waitlist/internal/reporting/domain"
	signupdomain "github.com/smallbiznis/waitlist/internal/signup/domain"
	"github.com/smallbiznis/waitlist/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// csvTimeLayout renders UTC instants with millisecond precision.
const csvTimeLayout = "2006-01-02T15:04:05.000Z07:00"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Signups  signupdomain.Repository
	Projects projectdomain.Service
	Audit    auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	signups  signupdomain.Repository
	projects projectdomain.Service
	audit    auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("reporting.service"),
		signups:  p.Signups,
		projects: p.Projects,
		audit:    p.Audit,
	}
}

func (s *Service) ListSignups(ctx context.Context, projectID, secret string, page pagination.Pagination) (domain.SignupPage, error) {
	project, err := s.projects.Authorize(ctx, projectID, secret)
	if err != nil {
		return domain.SignupPage{}, err
	}
	offset, limit, err := page.Normalize()
	if err != nil {
		return domain.SignupPage{}, err
	}

	rows, err := s.signups.ListRanked(ctx, s.db, project.ID, offset, limit+1)
	if err != nil {
		return domain.SignupPage{}, err
	}
	rows, info := pagination.BuildPageInfo(rows, offset, limit)
	return domain.SignupPage{Signups: ranked(rows, offset), PageInfo: info}, nil
}

// TopReferrers returns the head of the ranking. Rank order puts the biggest
// referrers first, ties going to whoever joined earlier.
func (s *Service) TopReferrers(ctx context.Context, projectID snowflake.ID, limit int) ([]signupdomain.RankedSignup, error) {
	if limit <= 0 {
		limit = domain.DefaultTopReferrers
	}
	if limit > domain.MaxTopReferrers {
		limit = domain.MaxTopReferrers
	}
	rows, err := s.signups.ListRanked(ctx, s.db, projectID, 0, limit)
	if err != nil {
		return nil, err
	}
	return ranked(rows, 0), nil
}

func (s *Service) Stats(ctx context.Context, projectID snowflake.ID) (signupdomain.Stats, error) {
	return s.signups.Stats(ctx, s.db, projectID)
}

func (s *Service) ExportCSV(ctx context.Context, projectID, secret string) (domain.Export, error) {
	project, err := s.projects.Authorize(ctx, projectID, secret)
	if err != nil {
		return domain.Export{}, err
	}
	rows, err := s.signups.ListRanked(ctx, s.db, project.ID, 0, 0)
	if err != nil {
		return domain.Export{}, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(domain.CSVHeader); err != nil {
		return domain.Export{}, err
	}
	for _, row := range ranked(rows, 0) {
		referredBy := "Direct"
		if row.ReferredBy != nil && *row.ReferredBy != "" {
			referredBy = *row.ReferredBy
		}
		record := []string{
			strconv.FormatInt(row.Position, 10),
			row.Email,
			row.ReferralCode,
			referredBy,
			strconv.FormatInt(row.ReferralCount, 10),
			row.CreatedAt.UTC().Format(csvTimeLayout),
		}
		if err := w.Write(record); err != nil {
			return domain.Export{}, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return domain.Export{}, err
	}

	s.log.Info("signups exported",
		zap.String("project_id", project.ID.String()),
		zap.Int("rows", len(rows)),
	)
	if s.audit != nil {
		projectRef := project.ID
		if err := s.audit.Record(ctx, auditdomain.Entry{
			ProjectID:  &projectRef,
			ActorType:  auditdomain.ActorTypeAdmin,
			Action:     auditdomain.ActionSignupsExported,
			TargetType: auditdomain.TargetProject,
			TargetID:   project.ID.String(),
			Metadata:   map[string]any{"rows": len(rows)},
		}); err != nil {
			s.log.Warn("audit record failed", zap.Error(err))
		}
	}
	return domain.Export{Filename: project.Slug + "-signups.csv", Content: buf.Bytes()}, nil
}

func (s *Service) AdminView(ctx context.Context, projectID, secret string) (domain.AdminView, error) {
	project, err := s.projects.Authorize(ctx, projectID, secret)
	if err != nil {
		return domain.AdminView{}, err
	}

	rows, err := s.signups.ListRanked(ctx, s.db, project.ID, 0, 0)
	if err != nil {
		return domain.AdminView{}, err
	}
	all := ranked(rows, 0)

	// Counted from the same snapshot as the listing so the numbers agree.
	var stats signupdomain.Stats
	for _, row := range all {
		stats.TotalSignups++
		stats.TotalReferrals += row.ReferralCount
	}

	top := all
	if len(top) > domain.AdminTopReferrers {
		top = top[:domain.AdminTopReferrers]
	}

	return domain.AdminView{
		Project: domain.AdminProject{
			ID:   project.ID,
			Name: project.Name,
			Slug: project.Slug,
			Tier: project.Tier,
		},
		Stats:        stats,
		Signups:      all,
		TopReferrers: top,
	}, nil
}

func (s *Service) GlobalStats(ctx context.Context) (domain.GlobalStats, error) {
	signups, err := s.signups.CountAll(ctx, s.db)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	projects, err := s.projects.CountAll(ctx)
	if err != nil {
		return domain.GlobalStats{}, err
	}
	return domain.GlobalStats{
		TotalSignups:   signups,
		TotalProjects:  projects,
		DisplaySignups: max(signups, 0),
	}, nil
}

func ranked(rows []signupdomain.Signup, offset int) []signupdomain.RankedSignup {
	out := make([]signupdomain.RankedSignup, 0, len(rows))
	for i, row := range rows {
		out = append(out, signupdomain.RankedSignup{Signup: row, Position: int64(offset + i + 1)})
	}
	return out
}

