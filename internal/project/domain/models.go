package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TierFree     = "free"
	TierPro      = "pro"
	TierBusiness = "business"
)

type Project struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Slug            string       `gorm:"not null;uniqueIndex" json:"slug"`
	Name            string       `gorm:"not null" json:"name"`
	Description     string       `gorm:"not null;default:''" json:"description"`
	OwnerEmail      string       `gorm:"column:owner_email;not null" json:"adminEmail"`
	AdminSecretHash string       `gorm:"column:admin_secret_hash;not null" json:"-"`
	Tier            string       `gorm:"not null;default:'free'" json:"tier"`

	PrimaryColor string `gorm:"not null;default:''" json:"primaryColor"`
	LogoURL      string `gorm:"column:logo_url;not null;default:''" json:"logoUrl"`
	Headline     string `gorm:"not null;default:''" json:"headline"`
	Subheadline  string `gorm:"not null;default:''" json:"subheadline"`
	ButtonText   string `gorm:"not null;default:''" json:"buttonText"`

	StripeCustomerID string     `gorm:"column:stripe_customer_id;not null;default:''" json:"-"`
	SubscriptionID   string     `gorm:"column:subscription_id;not null;default:'';index" json:"-"`
	PriceID          string     `gorm:"column:price_id;not null;default:''" json:"-"`
	Plan             string     `gorm:"not null;default:'free'" json:"plan"`
	PlanExpiresAt    *time.Time `json:"planExpiresAt,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

func (Project) TableName() string { return "projects" }

// PublicProject is what the hosted page and the embeddable widget may see.
type PublicProject struct {
	ID           snowflake.ID `json:"id"`
	Slug         string       `json:"slug"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	PrimaryColor string       `json:"primaryColor"`
	LogoURL      string       `json:"logo"`
	Headline     string       `json:"headline"`
	Subheadline  string       `json:"subheadline"`
	ButtonText   string       `json:"buttonText"`
	Tier         string       `json:"tier"`
	SignupCount  int64        `json:"signupCount"`
}

// BillingUpdate carries subscription state pushed by the payment provider.
// Empty strings leave the stored value untouched.
type BillingUpdate struct {
	ProjectID        snowflake.ID
	StripeCustomerID string
	SubscriptionID   string
	PriceID          string
	Plan             string
	Tier             string
	PlanExpiresAt    *time.Time
	ClearExpiry      bool
}
