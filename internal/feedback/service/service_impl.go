package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/config"
	"github.com/smallbiznis/waitlist/internal/feedback/domain"
	"github.com/smallbiznis/waitlist/internal/providers/slack"
	"github.com/smallbiznis/waitlist/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
	Slack  slack.Provider `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	store   repository.Repository[domain.Feedback]
	slack   slack.Provider
	channel string
}

func New(p Params) domain.Service {
	alerts := p.Slack
	if alerts == nil {
		alerts = &slack.NoOpProvider{}
	}
	return &Service{
		log:     p.Log.Named("feedback.service"),
		clock:   p.Clock,
		store:   repository.ProvideStore[domain.Feedback](p.DB),
		slack:   alerts,
		channel: p.Config.Slack.Channel,
	}
}

func (s *Service) Submit(ctx context.Context, req domain.Request) (domain.Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return domain.Response{}, domain.ErrMessageRequired
	}
	if len(message) > domain.MaxMessageLength {
		message = strings.ToValidUTF8(message[:domain.MaxMessageLength], "")
	}

	entry := domain.Feedback{
		ID:        uuid.NewString(),
		Message:   message,
		Product:   domain.Product,
		CreatedAt: s.clock.Now().UTC(),
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		entry.Email = &email
	}

	if err := s.store.Create(ctx, &entry); err != nil {
		return domain.Response{}, err
	}

	s.log.Info("feedback received",
		zap.String("feedback_id", entry.ID),
		zap.Bool("has_email", entry.Email != nil),
		zap.Int("length", len(entry.Message)),
	)

	if err := s.slack.PostMessage(ctx, s.channel, alertText(entry)); err != nil {
		s.log.Warn("feedback alert failed", zap.String("feedback_id", entry.ID), zap.Error(err))
	}

	return domain.Response{Success: true, ID: entry.ID}, nil
}

func alertText(entry domain.Feedback) string {
	from := "anonymous"
	if entry.Email != nil {
		from = *entry.Email
	}
	return fmt.Sprintf("New %s feedback from %s:\n>%s", entry.Product, from, entry.Message)
}
