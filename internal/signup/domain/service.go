package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Signup(ctx context.Context, req Request) (*Result, error)
}

type Request struct {
	Email        string `json:"email"`
	ProjectID    string `json:"projectId"`
	ReferralCode string `json:"referredBy"`
	UserAgent    string `json:"-"`
	IPAddress    string `json:"-"`
}

type Result struct {
	Signup          Signup `json:"signup"`
	Position        int64  `json:"position"`
	AlreadySignedUp bool   `json:"alreadySignedUp"`
}

// Notifier schedules the side effects of a new signup. Enqueue runs inside
// the signup transaction so the work commits or rolls back with the row;
// Kick is called after commit and must not block.
type Notifier interface {
	Enqueue(ctx context.Context, tx *gorm.DB, created Created) error
	Kick()
}

// Created describes a committed signup for notifiers.
type Created struct {
	Signup   Signup
	Position int64
	Referrer *Signup
}

type noopNotifier struct{}

func NewNoopNotifier() Notifier { return noopNotifier{} }

func (noopNotifier) Enqueue(context.Context, *gorm.DB, Created) error { return nil }

func (noopNotifier) Kick() {}

var (
	ErrInvalidEmail    = errors.New("invalid_email")
	ErrProjectNotFound = errors.New("project_not_found")
	ErrQuotaExceeded   = errors.New("quota_exceeded")
	ErrNotFound        = errors.New("signup_not_found")
	ErrCodeExhausted   = errors.New("referral_code_exhausted")
)

// QuotaExceededMessage is shown to visitors when a free waitlist is full.
const QuotaExceededMessage = "Waitlist is full. Please upgrade to Pro for unlimited signups."

// ParseProjectID accepts the decimal snowflake form used on the wire.
func ParseProjectID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, ErrProjectNotFound
	}
	return id, nil
}
