package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) (bool, error)
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Job, error)
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now, leaseUntil time.Time) (bool, error)
	MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, availableAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time, lastError string) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)
}
