package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const ProviderStripe = "stripe"

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// EventRecord is one webhook delivery. (provider, provider_event_id) is unique
// so redeliveries are applied once.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_billing_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_billing_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	ProjectID       *snowflake.ID  `json:"project_id" gorm:"index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "billing_events" }

// Event is the provider-neutral view of a webhook payload. Fields that do not
// apply to the event type are left empty.
type Event struct {
	ID             string
	Type           string
	OccurredAt     time.Time
	ProjectID      string
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
	PriceID        string
	Status         string
	InvoiceID      string
	AmountPaid     int64
	PeriodEnd      *time.Time
	RawPayload     []byte
}

type CheckoutRequest struct {
	PriceID   string `json:"priceId"`
	Email     string `json:"email"`
	ProjectID string `json:"projectId"`
	Origin    string `json:"-"`
}

type PortalRequest struct {
	CustomerID string `json:"customerId"`
	Origin     string `json:"-"`
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
