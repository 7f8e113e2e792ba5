package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waitlist/internal/project/domain"
	"gorm.io/gorm"
)

const projectColumns = `id, slug, name, description, owner_email, admin_secret_hash, tier,
	primary_color, logo_url, headline, subheadline, button_text,
	stripe_customer_id, subscription_id, price_id, plan, plan_expires_at,
	created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Project) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO projects (`+projectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Slug,
		p.Name,
		p.Description,
		p.OwnerEmail,
		p.AdminSecretHash,
		p.Tier,
		p.PrimaryColor,
		p.LogoURL,
		p.Headline,
		p.Subheadline,
		p.ButtonText,
		p.StripeCustomerID,
		p.SubscriptionID,
		p.PriceID,
		p.Plan,
		p.PlanExpiresAt,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Project, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Project, error) {
	return r.findOne(ctx, db, `slug = ?`, slug)
}

func (r *repo) FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*domain.Project, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	return r.findOne(ctx, db, `subscription_id = ?`, subscriptionID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Project, error) {
	var project domain.Project
	err := db.WithContext(ctx).Raw(
		`SELECT `+projectColumns+` FROM projects WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&project).Error
	if err != nil {
		return nil, err
	}
	if project.ID == 0 {
		return nil, nil
	}
	return &project, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM projects WHERE slug = ?`, slug).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) CountAll(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM projects`).Scan(&count).Error
	return count, err
}

func (r *repo) CountSignups(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM signups WHERE project_id = ?`, projectID).Scan(&count).Error
	return count, err
}

func (r *repo) UpdateBilling(ctx context.Context, db *gorm.DB, u domain.BillingUpdate) (bool, error) {
	updates := map[string]any{}
	if u.StripeCustomerID != "" {
		updates["stripe_customer_id"] = u.StripeCustomerID
	}
	if u.SubscriptionID != "" {
		updates["subscription_id"] = u.SubscriptionID
	}
	if u.PriceID != "" {
		updates["price_id"] = u.PriceID
	}
	if u.Plan != "" {
		updates["plan"] = u.Plan
	}
	if u.Tier != "" {
		updates["tier"] = u.Tier
	}
	if u.PlanExpiresAt != nil {
		updates["plan_expires_at"] = *u.PlanExpiresAt
	} else if u.ClearExpiry {
		updates["plan_expires_at"] = nil
	}
	if len(updates) == 0 {
		return false, nil
	}
	updates["updated_at"] = db.NowFunc()

	res := db.WithContext(ctx).
		Model(&domain.Project{}).
		Where("id = ?", u.ProjectID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
