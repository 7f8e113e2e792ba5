package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, signup *Signup) error
	LockProject(ctx context.Context, db *gorm.DB, projectID snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Signup, error)
	FindByProjectEmail(ctx context.Context, db *gorm.DB, projectID snowflake.ID, email string) (*Signup, error)
	FindByReferralCode(ctx context.Context, db *gorm.DB, projectID snowflake.ID, code string) (*Signup, error)
	CountByProject(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (int64, error)
	CountAll(ctx context.Context, db *gorm.DB) (int64, error)
	CountReferredBy(ctx context.Context, db *gorm.DB, projectID snowflake.ID, code string) (int64, error)
	ListRanked(ctx context.Context, db *gorm.DB, projectID snowflake.ID, offset, limit int) ([]Signup, error)
	Stats(ctx context.Context, db *gorm.DB, projectID snowflake.ID) (Stats, error)
	FindDripCandidates(ctx context.Context, db *gorm.DB, stage EmailStage, cutoff time.Time, limit int) ([]Signup, error)
	MarkEmailSent(ctx context.Context, db *gorm.DB, id snowflake.ID, stage EmailStage, at time.Time) (bool, error)
}
