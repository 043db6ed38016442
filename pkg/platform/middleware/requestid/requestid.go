// Package requestid assigns each request a correlation ID, propagated via
// the request context and echoed back in the X-Request-ID response header.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"opsgate/pkg/requestcontext"
)

const headerName = "X-Request-ID"

// Middleware reuses the caller's X-Request-ID when one is supplied (capped
// at 128 bytes) and generates a fresh UUID otherwise.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerName)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(headerName, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
