package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/config"
	"github.com/smallbiznis/waitlist/internal/feedback/domain"
	"github.com/smallbiznis/waitlist/pkg/db"
	"github.com/smallbiznis/waitlist/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSlack struct {
	channel  string
	messages []string
	err      error
}

func (r *recordingSlack) PostMessage(_ context.Context, channelID string, message string) error {
	r.channel = channelID
	r.messages = append(r.messages, message)
	return r.err
}

func TestSubmitStoresFeedback(t *testing.T) {
	conn := db.NewTest(t, &domain.Feedback{})
	alerts := &recordingSlack{}
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	svc := New(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(now),
		Config: config.Config{Slack: config.SlackConfig{Channel: "#feedback"}},
		Slack:  alerts,
	})

	resp, err := svc.Submit(context.Background(), domain.Request{Message: "  Love it  ", Email: "fan@acme.io"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Len(t, resp.ID, 36)

	stored, err := repository.ProvideStore[domain.Feedback](conn).FindOne(context.Background(), &domain.Feedback{ID: resp.ID})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Love it", stored.Message)
	assert.Equal(t, domain.Product, stored.Product)
	require.NotNil(t, stored.Email)
	assert.Equal(t, "fan@acme.io", *stored.Email)
	assert.True(t, now.Equal(stored.CreatedAt))

	assert.Equal(t, "#feedback", alerts.channel)
	require.Len(t, alerts.messages, 1)
	assert.Contains(t, alerts.messages[0], "fan@acme.io")
}

func TestSubmitAnonymousAndAlertFailure(t *testing.T) {
	conn := db.NewTest(t, &domain.Feedback{})
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Now()),
		Slack: &recordingSlack{err: errors.New("slack down")},
	})

	resp, err := svc.Submit(context.Background(), domain.Request{Message: strings.Repeat("x", domain.MaxMessageLength+10)})
	require.NoError(t, err)

	stored, err := repository.ProvideStore[domain.Feedback](conn).FindOne(context.Background(), &domain.Feedback{ID: resp.ID})
	require.NoError(t, err)
	assert.Nil(t, stored.Email)
	assert.Len(t, stored.Message, domain.MaxMessageLength)

	count, err := repository.ProvideStore[domain.Feedback](conn).Count(context.Background(), &domain.Feedback{Product: domain.Product})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSubmitRequiresMessage(t *testing.T) {
	svc := New(Params{DB: db.NewTest(t, &domain.Feedback{}), Log: zap.NewNop(), Clock: clock.NewFakeClock(time.Now())})
	_, err := svc.Submit(context.Background(), domain.Request{Message: "   "})
	assert.ErrorIs(t, err, domain.ErrMessageRequired)
}
