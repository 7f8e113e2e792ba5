package repository

import (
	"context"

	"gorm.io/gorm"
)

// QueryOption narrows a Find/FindOne query beyond the equality filter.
type QueryOption func(*gorm.DB) *gorm.DB

// Repository is the generic CRUD store for single-table resources.
type Repository[T any] interface {
	WithTrx(tx *gorm.DB) Repository[T]
	Find(ctx context.Context, query *T, opts ...QueryOption) ([]*T, error)
	FindOne(ctx context.Context, query *T, opts ...QueryOption) (*T, error)
	Create(ctx context.Context, resource *T) error
	Count(ctx context.Context, query *T) (int64, error)
}

func OrderBy(clause string) QueryOption {
	return func(db *gorm.DB) *gorm.DB { return db.Order(clause) }
}

func Limit(n int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if n <= 0 {
			return db
		}
		return db.Limit(n)
	}
}
