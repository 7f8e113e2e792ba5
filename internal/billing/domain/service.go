package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waitlist/internal/config"
	"gorm.io/gorm"
)

// Gateway is the payment provider seen by the billing service.
type Gateway interface {
	Provider() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest, successURL, cancelURL string) (Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (Session, error)
	Verify(payload []byte, headers http.Header) error
	Parse(payload []byte) (*Event, error)
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

type Service interface {
	Plans() config.PlanConfig
	Checkout(ctx context.Context, req CheckoutRequest) (Session, error)
	Portal(ctx context.Context, req PortalRequest) (Session, error)
	HandleWebhook(ctx context.Context, payload []byte, headers http.Header) error
}

var (
	ErrNotConfigured    = errors.New("billing_not_configured")
	ErrPriceRequired    = errors.New("price_id_required")
	ErrUnknownPrice     = errors.New("price_id_unknown")
	ErrCustomerRequired = errors.New("customer_id_required")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrProviderRequest  = errors.New("billing_provider_request_failed")
	ErrSignatureTooOld  = errors.New("signature_timestamp_outside_tolerance")
)
