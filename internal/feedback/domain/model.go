package domain

import (
	"context"
	"errors"
	"time"
)

const Product = "waitlistkit"

// MaxMessageLength caps stored feedback; longer messages are truncated.
const MaxMessageLength = 5000

type Feedback struct {
	ID        string    `gorm:"primaryKey;type:text" json:"id"`
	Message   string    `gorm:"type:text;not null" json:"feedback"`
	Email     *string   `gorm:"type:text" json:"email"`
	Product   string    `gorm:"type:text;not null" json:"product"`
	CreatedAt time.Time `gorm:"not null;index" json:"timestamp"`
}

func (Feedback) TableName() string { return "feedback" }

type Request struct {
	Message string `json:"feedback"`
	Email   string `json:"email"`
}

type Response struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

type Service interface {
	Submit(ctx context.Context, req Request) (Response, error)
}

var ErrMessageRequired = errors.New("feedback_required")
