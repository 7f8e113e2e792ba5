package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, project *Project) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Project, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Project, error)
	FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID string) (*Project, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	CountAll(ctx context.Context, db *gorm.DB) (int64, error)
	CountSignups(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (int64, error)
	UpdateBilling(ctx context.Context, db *gorm.DB, update BillingUpdate) (bool, error)
}
