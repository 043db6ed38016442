package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with defaults sized for a low-latency decision
// endpoint: requests are small JSON bodies and responses are computed in
// tens of milliseconds.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
