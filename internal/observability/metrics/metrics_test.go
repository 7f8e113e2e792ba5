package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("plan", "free"),
		attribute.String("email", "ada@example.com"),
		attribute.String("project_id", "123"),
		attribute.String("outcome", "created"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "email" || attr.Key == "project_id" {
			t.Fatalf("unexpected label %q retained", attr.Key)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordSignup(context.Background(), "free", "created")
	m.RecordReferral(context.Background(), true)
	m.RecordRateLimitDenied(context.Background(), "signup", "exceeded")

	noop := NewNoop()
	if noop == nil {
		t.Fatalf("expected noop metrics")
	}
	noop.RecordNotification(context.Background(), "welcome", "sent")
}
