// Package device propagates the caller-supplied device identifier. The
// engine's MFA gate stamps it into audit fields; the geo-velocity heuristic
// treats a missing device ID as just another absent signal.
package device

import (
	"context"
	"net/http"
)

const headerName = "X-Device-ID"

type contextKeyDeviceID struct{}

// Middleware extracts the X-Device-ID header into the request context.
// Values longer than 128 bytes are ignored: device IDs are opaque tokens,
// not a free-text channel.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.Header.Get(headerName)
		if deviceID == "" || len(deviceID) > 128 {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyDeviceID{}, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetDeviceID retrieves the device identifier from the context.
func GetDeviceID(ctx context.Context) string {
	if deviceID, ok := ctx.Value(contextKeyDeviceID{}).(string); ok {
		return deviceID
	}
	return ""
}

// WithDeviceID injects a device identifier into a context for tests that
// bypass the HTTP middleware chain.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, contextKeyDeviceID{}, deviceID)
}
