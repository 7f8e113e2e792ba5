package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waitlist/internal/ranking"
	"github.com/smallbiznis/waitlist/internal/signup/domain"
	"github.com/smallbiznis/waitlist/pkg/db"
	"gorm.io/gorm"
)

const signupColumns = `id, project_id, email, referral_code, referred_by, referral_count,
	welcome_email_sent_at, day2_email_sent_at, day5_email_sent_at, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, s *domain.Signup) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO signups (id, project_id, email, referral_code, referred_by, referral_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.ProjectID,
		s.Email,
		s.ReferralCode,
		s.ReferredBy,
		s.ReferralCount,
		s.CreatedAt,
	).Error
}

// LockProject serializes quota checks for one project until the surrounding
// transaction ends. SQLite has no row locks; its transactions take the write
// lock at BEGIN instead (see db.Dialect).
func (r *repo) LockProject(ctx context.Context, conn *gorm.DB, projectID snowflake.ID) error {
	if !db.SupportsRowLocks(conn) {
		return nil
	}
	var id snowflake.ID
	return conn.WithContext(ctx).Raw(
		`SELECT id FROM projects WHERE id = ? FOR UPDATE`,
		projectID,
	).Scan(&id).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Signup, error) {
	return r.findOne(ctx, conn, `id = ?`, id)
}

func (r *repo) FindByProjectEmail(ctx context.Context, conn *gorm.DB, projectID snowflake.ID, email string) (*domain.Signup, error) {
	return r.findOne(ctx, conn, `project_id = ? AND email = ?`, projectID, email)
}

func (r *repo) FindByReferralCode(ctx context.Context, conn *gorm.DB, projectID snowflake.ID, code string) (*domain.Signup, error) {
	return r.findOne(ctx, conn, `project_id = ? AND referral_code = ?`, projectID, code)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, where string, args ...any) (*domain.Signup, error) {
	var signup domain.Signup
	err := conn.WithContext(ctx).Raw(
		`SELECT `+signupColumns+` FROM signups WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(&signup).Error
	if err != nil {
		return nil, err
	}
	if signup.ID == 0 {
		return nil, nil
	}
	return &signup, nil
}

func (r *repo) CountByProject(ctx context.Context, conn *gorm.DB, projectID snowflake.ID) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(`SELECT COUNT(*) FROM signups WHERE project_id = ?`, projectID).Scan(&count).Error
	return count, err
}

func (r *repo) CountAll(ctx context.Context, conn *gorm.DB) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(`SELECT COUNT(*) FROM signups`).Scan(&count).Error
	return count, err
}

func (r *repo) CountReferredBy(ctx context.Context, conn *gorm.DB, projectID snowflake.ID, code string) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM signups WHERE project_id = ? AND referred_by = ?`,
		projectID,
		code,
	).Scan(&count).Error
	return count, err
}

func (r *repo) ListRanked(ctx context.Context, conn *gorm.DB, projectID snowflake.ID, offset, limit int) ([]domain.Signup, error) {
	var signups []domain.Signup
	stmt := `SELECT ` + signupColumns + ` FROM signups WHERE project_id = ? ORDER BY ` + ranking.Order
	args := []any{projectID}
	if limit > 0 {
		stmt += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	if err := conn.WithContext(ctx).Raw(stmt, args...).Scan(&signups).Error; err != nil {
		return nil, err
	}
	return signups, nil
}

func (r *repo) Stats(ctx context.Context, conn *gorm.DB, projectID snowflake.ID) (domain.Stats, error) {
	var stats domain.Stats
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS total_signups, COALESCE(SUM(referral_count), 0) AS total_referrals
		 FROM signups WHERE project_id = ?`,
		projectID,
	).Scan(&stats).Error
	return stats, err
}

// FindDripCandidates returns signups that got the welcome email, have not
// received stage yet and joined at or before cutoff, oldest first.
func (r *repo) FindDripCandidates(ctx context.Context, conn *gorm.DB, stage domain.EmailStage, cutoff time.Time, limit int) ([]domain.Signup, error) {
	column, ok := stage.Column()
	if !ok || stage == domain.StageWelcome {
		return nil, fmt.Errorf("unsupported drip stage %q", stage)
	}
	var signups []domain.Signup
	err := conn.WithContext(ctx).Raw(
		`SELECT `+signupColumns+` FROM signups
		 WHERE welcome_email_sent_at IS NOT NULL
		   AND `+column+` IS NULL
		   AND created_at <= ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		cutoff,
		limit,
	).Scan(&signups).Error
	if err != nil {
		return nil, err
	}
	return signups, nil
}

// MarkEmailSent sets the stage marker unless another worker already did and
// reports whether this call won.
func (r *repo) MarkEmailSent(ctx context.Context, conn *gorm.DB, id snowflake.ID, stage domain.EmailStage, at time.Time) (bool, error) {
	column, ok := stage.Column()
	if !ok {
		return false, fmt.Errorf("unknown email stage %q", stage)
	}
	res := conn.WithContext(ctx).Exec(
		`UPDATE signups SET `+column+` = ? WHERE id = ? AND `+column+` IS NULL`,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
