package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Signup struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID          snowflake.ID `gorm:"not null;uniqueIndex:ux_signups_project_email,priority:1;index:idx_signups_rank,priority:1" json:"projectId"`
	Email              string       `gorm:"not null;uniqueIndex:ux_signups_project_email,priority:2" json:"email"`
	ReferralCode       string       `gorm:"not null;uniqueIndex:ux_signups_referral_code" json:"referralCode"`
	ReferredBy         *string      `json:"referredBy"`
	ReferralCount      int64        `gorm:"not null;default:0;index:idx_signups_rank,priority:2" json:"referralCount"`
	WelcomeEmailSentAt *time.Time   `gorm:"column:welcome_email_sent_at" json:"welcomeEmailSentAt,omitempty"`
	Day2EmailSentAt    *time.Time   `gorm:"column:day2_email_sent_at" json:"day2EmailSentAt,omitempty"`
	Day5EmailSentAt    *time.Time   `gorm:"column:day5_email_sent_at" json:"day5EmailSentAt,omitempty"`
	CreatedAt          time.Time    `gorm:"not null;index:idx_signups_rank,priority:3" json:"createdAt"`
}

func (Signup) TableName() string { return "signups" }

// RankedSignup is a signup with its position at read time.
type RankedSignup struct {
	Signup
	Position int64 `json:"position"`
}

// EmailStage names an at-most-once notification marker.
type EmailStage string

const (
	StageWelcome EmailStage = "welcome"
	StageDayTwo  EmailStage = "day2"
	StageDayFive EmailStage = "day5"
)

// Column returns the marker column for the stage.
func (s EmailStage) Column() (string, bool) {
	switch s {
	case StageWelcome:
		return "welcome_email_sent_at", true
	case StageDayTwo:
		return "day2_email_sent_at", true
	case StageDayFive:
		return "day5_email_sent_at", true
	default:
		return "", false
	}
}

type Stats struct {
	TotalSignups   int64 `json:"totalSignups"`
	TotalReferrals int64 `json:"totalReferrals"`
}
