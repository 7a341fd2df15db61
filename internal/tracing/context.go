package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys.
type ContextKey string

const (
	// RequestIDKey is the context key for the request ID.
	RequestIDKey ContextKey = "request_id"
	// OwnerIDKey is the context key for the authenticated owner.
	OwnerIDKey ContextKey = "owner_id"
)

// NewRequestID generates a new request ID.
func NewRequestID() string {
	return uuid.New().String()
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithOwnerID adds the authenticated owner to the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// GetOwnerID retrieves the authenticated owner from the context.
func GetOwnerID(ctx context.Context) string {
	if ownerID, ok := ctx.Value(OwnerIDKey).(string); ok {
		return ownerID
	}
	return ""
}

// NewRequestContext stamps a fresh request ID onto the context.
func NewRequestContext(ctx context.Context) context.Context {
	return WithRequestID(ctx, NewRequestID())
}
