package httpx

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies lists the networks whose forwarding headers are believed.
// The zero value trusts nobody, so clients are identified by their socket
// address alone.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies reads a comma separated list of CIDRs or bare
// addresses, e.g. "10.0.0.0/8, 127.0.0.1".
func ParseTrustedProxies(list string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Contains reports whether addr belongs to a trusted network.
func (t TrustedProxies) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIPMiddleware resolves the client address once per request and
// stores it for IPKeyExtractor and ClientIP.
//
// X-Forwarded-For and X-Real-IP are only consulted when the socket peer is
// a trusted proxy. The forwarded chain is then walked from the right and
// the first untrusted hop is the client.
func ClientIPMiddleware(trusted TrustedProxies) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ResolveClientIP(r, trusted)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CtxKeyClientIP, ip)))
		})
	}
}

// ResolveClientIP applies the ClientIPMiddleware rules to r.
func ResolveClientIP(r *http.Request, trusted TrustedProxies) string {
	peer := peerIP(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !trusted.Contains(addr) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		client := peer
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			client = hop.Unmap().String()
			if !trusted.Contains(hop) {
				break
			}
		}
		return client
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}
	return peer
}

func peerIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
