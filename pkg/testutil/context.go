package testutil

import (
	"net/http"

	"opsgate/pkg/platform/middleware/device"
	"opsgate/pkg/platform/middleware/metadata"
	"opsgate/pkg/requestcontext"
)

// WithRequestID stamps a correlation ID onto the request, as the request-id
// middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	return req.WithContext(ctx)
}

// WithClientMetadata stamps client IP and user agent onto the request.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	ctx := metadata.WithClientMetadata(req.Context(), clientIP, userAgent)
	return req.WithContext(ctx)
}

// WithDeviceID stamps a device identifier onto the request.
func WithDeviceID(req *http.Request, deviceID string) *http.Request {
	ctx := device.WithDeviceID(req.Context(), deviceID)
	return req.WithContext(ctx)
}
