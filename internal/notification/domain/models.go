package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	KindWelcomeEmail     = "email.welcome"
	KindSignupCreated    = "signup.created"
	KindReferralRecorded = "referral.recorded"
)

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// MaxAttempts bounds delivery tries before a job is parked as failed.
const MaxAttempts = 5

// Job is one unit of deferred work written in the same transaction as the
// signup that caused it.
type Job struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	Kind          string         `gorm:"type:text;not null" json:"kind"`
	SignupID      snowflake.ID   `gorm:"not null;index" json:"signup_id"`
	ProjectID     snowflake.ID   `gorm:"not null" json:"project_id"`
	DedupeKey     string         `gorm:"type:text;not null;uniqueIndex" json:"dedupe_key"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	Status        string         `gorm:"type:text;not null;default:'pending';index:idx_notification_jobs_due,priority:1" json:"status"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	LastError     string         `gorm:"type:text;not null;default:''" json:"last_error"`
	CorrelationID string         `gorm:"type:text;not null;default:''" json:"correlation_id"`
	AvailableAt   time.Time      `gorm:"not null;index:idx_notification_jobs_due,priority:2" json:"available_at"`
	ProcessedAt   *time.Time     `json:"processed_at"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

func (Job) TableName() string { return "notification_jobs" }

// SignupCreatedEvent is the payload published for a new signup.
type SignupCreatedEvent struct {
	SignupID     string    `json:"signupId"`
	ProjectID    string    `json:"projectId"`
	ReferralCode string    `json:"referralCode"`
	ReferredBy   *string   `json:"referredBy,omitempty"`
	Position     int64     `json:"position"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ReferralRecordedEvent is the payload published when a referral is credited.
type ReferralRecordedEvent struct {
	ProjectID     string `json:"projectId"`
	ReferrerID    string `json:"referrerId"`
	RefereeID     string `json:"refereeId"`
	ReferralCode  string `json:"referralCode"`
	ReferralCount int64  `json:"referralCount"`
}

// DripResult summarizes one drip run.
type DripResult struct {
	Day2Sent int      `json:"day2Sent"`
	Day5Sent int      `json:"day5Sent"`
	Errors   []string `json:"errors"`
}
