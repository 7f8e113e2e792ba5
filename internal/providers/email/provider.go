package email

import (
	"context"
	"errors"
	"sync"
)

// Message is a transactional email with HTML and plain text alternatives.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	ReplyTo string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipient = errors.New("email: missing recipient")

// NoOpProvider drops every message. It keeps the last ones around for tests
// and local runs without SMTP.
type NoOpProvider struct {
	mu   sync.Mutex
	sent []Message
}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *NoOpProvider) Sent() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.sent))
	copy(out, p.sent)
	return out
}
