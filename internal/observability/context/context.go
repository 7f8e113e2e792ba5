// Package context carries correlation identifiers through request and job contexts.
package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	projectIDKey ctxKey = "project_id"
	actorTypeKey ctxKey = "actor_type"
	actorIDKey   ctxKey = "actor_id"
	clientIPKey  ctxKey = "client_ip"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func WithProjectID(ctx context.Context, projectID string) context.Context {
	return withValue(ctx, projectIDKey, projectID)
}

func ProjectIDFromContext(ctx context.Context) string {
	return stringValue(ctx, projectIDKey)
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return withValue(ctx, clientIPKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	return stringValue(ctx, clientIPKey)
}

// WithActor records who is acting: "public", "admin" or "system".
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	ctx = withValue(ctx, actorTypeKey, actorType)
	return withValue(ctx, actorIDKey, actorID)
}

func ActorFromContext(ctx context.Context) (string, string) {
	return stringValue(ctx, actorTypeKey), stringValue(ctx, actorIDKey)
}

func withValue(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}
