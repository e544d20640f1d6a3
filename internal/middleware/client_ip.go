package middleware

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/kinship/backend/internal/auth"
)

// ClientIP attributes each request to a client address. Forwarding headers
// are only honoured when the connecting peer is one of the trusted proxies;
// otherwise the peer address is used as is.
func ClientIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trusted)
			next.ServeHTTP(w, r.WithContext(auth.WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientIP(r *http.Request, trusted []netip.Prefix) string {
	peer, err := netip.ParseAddrPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		addr, perr := netip.ParseAddr(strings.TrimSpace(r.RemoteAddr))
		if perr != nil {
			return strings.TrimSpace(r.RemoteAddr)
		}
		peer = netip.AddrPortFrom(addr, 0)
	}
	addr := peer.Addr().Unmap()
	if !isTrusted(addr, trusted) {
		return addr.String()
	}

	// Walk X-Forwarded-For from the nearest hop and stop at the first
	// address not operated by a trusted proxy.
	if hops := forwardedHops(r.Header.Values("X-Forwarded-For")); len(hops) > 0 {
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(hops[i])
			if err != nil {
				break
			}
			hop = hop.Unmap()
			addr = hop
			if !isTrusted(hop, trusted) {
				break
			}
		}
		return addr.String()
	}
	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}
	return addr.String()
}

func forwardedHops(values []string) []string {
	var hops []string
	for _, v := range values {
		for _, hop := range strings.Split(v, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
