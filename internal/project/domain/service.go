package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateProjectRequest struct {
	Name         string
	OwnerEmail   string
	Description  string
	PrimaryColor string
	LogoURL      string
	Headline     string
	Subheadline  string
	ButtonText   string
}

// CreateProjectResponse returns the admin secret in plaintext exactly once.
type CreateProjectResponse struct {
	Project     Project `json:"project"`
	AdminSecret string  `json:"adminSecret"`
}

type Service interface {
	Create(ctx context.Context, req CreateProjectRequest) (CreateProjectResponse, error)
	GetPublic(ctx context.Context, slug string) (PublicProject, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Project, error)
	Authorize(ctx context.Context, projectID, secret string) (*Project, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*Project, error)
	ApplyBilling(ctx context.Context, update BillingUpdate) error
	CountAll(ctx context.Context) (int64, error)
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("project_not_found")
	ErrUnauthorized = errors.New("admin_secret_required")
	ErrForbidden    = errors.New("admin_secret_invalid")
)
