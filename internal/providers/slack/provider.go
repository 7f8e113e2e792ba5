package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/waitlist/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.slack",
	fx.Provide(NewFromConfig),
)

type Provider interface {
	PostMessage(ctx context.Context, channelID string, message string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	return nil
}

var ErrEmptyMessage = errors.New("slack_message_empty")

// WebhookProvider posts to a Slack incoming webhook.
type WebhookProvider struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *WebhookProvider {
	return &WebhookProvider{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.Slack.WebhookURL == "" {
		log.Debug("SLACK_WEBHOOK_URL not set, slack alerts disabled")
		return &NoOpProvider{}
	}
	return NewWebhook(cfg.Slack.WebhookURL)
}

type webhookMessage struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

func (p *WebhookProvider) PostMessage(ctx context.Context, channelID string, message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyMessage
	}
	body, err := json.Marshal(webhookMessage{Channel: channelID, Text: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}
