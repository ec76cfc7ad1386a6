// Package httpserver builds the service's HTTP server. The timeouts suit
// its traffic shape: every request is either a local lookup or one bounded
// siteverify round trip.
package httpserver

import (
	"context"
	"net/http"
	"time"
)

// DefaultShutdownTimeout bounds graceful shutdown. In-flight verifications
// get this long to finish before the listener is torn down.
const DefaultShutdownTimeout = 10 * time.Second

// New builds the HTTP server serving handler on addr.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

// Shutdown drains srv gracefully within DefaultShutdownTimeout.
func Shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
