// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services and the audit
// pipeline read them without importing net/http.
package requestcontext

import (
	"context"
	"time"
)

type (
	callerIDKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// CallerID retrieves the authenticated calling service from the context.
// Returns "" if not set.
func CallerID(ctx context.Context) string {
	if v, ok := ctx.Value(callerIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithCallerID injects the calling service identity into the context.
func WithCallerID(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerIDKey{}, caller)
}

// RequestID retrieves the correlation ID from the context. Returns "" if not set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped evaluation time when one was injected,
// falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return v
	}
	return time.Now()
}

// PinnedTime reports the request-scoped time and whether one was set.
func PinnedTime(ctx context.Context) (time.Time, bool) {
	v, ok := ctx.Value(requestTimeKey{}).(time.Time)
	return v, ok
}

// WithTime pins the evaluation time for the rest of the request.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
