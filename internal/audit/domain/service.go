package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/waitlist/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListRequest struct {
	pagination.Pagination
	Action string `form:"action"`
}

type ListResponse struct {
	AuditLogs []AuditLog          `json:"auditLogs"`
	PageInfo  pagination.PageInfo `json:"pageInfo"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, projectID, secret string, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidAction = errors.New("invalid_action")
)
