package httphandler

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/ericfisherdev/cruciverba/internal/config"
)

type clientIPKey struct{}

// ClientIPMiddleware resolves the client address once per request and stores
// it for GetClientIP. The peer address from RemoteAddr is used as-is unless
// the peer is in trusted. Only then is X-Forwarded-For walked from the right,
// skipping trusted hops, with X-Real-IP as the fallback.
func ClientIPMiddleware(trusted config.TrustedProxies, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := resolveClientIP(r, trusted)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
	})
}

// GetClientIP returns the address resolved by ClientIPMiddleware. Outside of
// it the host part of RemoteAddr is returned; proxy headers are never read.
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func resolveClientIP(r *http.Request, trusted config.TrustedProxies) string {
	peer := remoteHost(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !trusted.Contains(addr) {
		return peer
	}

	if hops := forwardedHops(r.Header.Values("X-Forwarded-For")); len(hops) > 0 {
		client := addr
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(hops[i])
			if err != nil {
				// Anything left of a garbled hop is client-supplied.
				break
			}
			client = hop
			if !trusted.Contains(hop) {
				break
			}
		}
		return client.Unmap().String()
	}

	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}
	return peer
}

// forwardedHops flattens every X-Forwarded-For header into one list, left to right.
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
