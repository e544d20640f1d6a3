package handlers

import (
	"net"
	"net/http"

	"github.com/kinship/backend/internal/auth"
)

// RateLimiter is the minimal interface required to guard sensitive endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

// allowRequest charges one event against the caller's bucket for scope. The
// caller is the address middleware.ClientIP attributed the request to, or the
// connecting peer when that middleware is not installed.
func allowRequest(limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	client, ok := auth.ClientIPFromContext(r.Context())
	if !ok {
		client = peerAddr(r.RemoteAddr)
	}
	if scope != "" {
		client = scope + ":" + client
	}
	return limiter.Allow(client)
}

func peerAddr(remote string) string {
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
