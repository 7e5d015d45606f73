package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/aussiebroadwan/studyhub/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestParseTrustedProxies(t *testing.T) {
	trusted, err := httpx.ParseTrustedProxies(" 10.0.0.0/8, 127.0.0.1 ,::1,")
	require.NoError(t, err)
	require.Len(t, trusted, 3)

	require.True(t, trusted.Contains(netip.MustParseAddr("10.20.30.40")))
	require.True(t, trusted.Contains(netip.MustParseAddr("127.0.0.1")))
	require.True(t, trusted.Contains(netip.MustParseAddr("::ffff:127.0.0.1")))
	require.True(t, trusted.Contains(netip.MustParseAddr("::1")))
	require.False(t, trusted.Contains(netip.MustParseAddr("127.0.0.2")))

	empty, err := httpx.ParseTrustedProxies("")
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = httpx.ParseTrustedProxies("10.0.0.0/99")
	require.Error(t, err)
	_, err = httpx.ParseTrustedProxies("proxy.internal")
	require.Error(t, err)
}

func TestResolveClientIP(t *testing.T) {
	trusted, err := httpx.ParseTrustedProxies("10.0.0.0/8")
	require.NoError(t, err)

	tests := []struct {
		name    string
		peer    string
		xff     []string
		realIP  string
		trusted httpx.TrustedProxies
		want    string
	}{
		{
			name: "no trusted proxies ignores headers",
			peer: "10.0.0.5", xff: []string{"203.0.113.9"}, realIP: "203.0.113.8",
			want: "10.0.0.5",
		},
		{
			name: "untrusted peer cannot spoof",
			peer: "198.51.100.4", xff: []string{"203.0.113.9"},
			trusted: trusted, want: "198.51.100.4",
		},
		{
			name: "trusted peer forwards client",
			peer: "10.0.0.5", xff: []string{"203.0.113.9"},
			trusted: trusted, want: "203.0.113.9",
		},
		{
			name: "spoofed leading hop is skipped",
			peer: "10.0.0.5", xff: []string{"1.2.3.4, 203.0.113.9, 10.1.1.1"},
			trusted: trusted, want: "203.0.113.9",
		},
		{
			name: "repeated headers are one chain",
			peer: "10.0.0.5", xff: []string{"1.2.3.4", "203.0.113.9"},
			trusted: trusted, want: "203.0.113.9",
		},
		{
			name: "all hops trusted yields leftmost",
			peer: "10.0.0.5", xff: []string{"10.9.9.9, 10.1.1.1"},
			trusted: trusted, want: "10.9.9.9",
		},
		{
			name: "garbage hop stops the walk",
			peer: "10.0.0.5", xff: []string{"not-an-ip, 10.1.1.1"},
			trusted: trusted, want: "10.1.1.1",
		},
		{
			name: "real ip header from trusted peer",
			peer: "10.0.0.5", realIP: "203.0.113.8",
			trusted: trusted, want: "203.0.113.8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestFrom(tt.peer)
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			require.Equal(t, tt.want, httpx.ResolveClientIP(req, tt.trusted))
		})
	}
}

func TestClientIPMiddlewareKeysRateLimiter(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	h := httpx.Chain(okHandler,
		httpx.ClientIPMiddleware(nil),
		httpx.RateLimitByIP(cfg),
	)

	for i, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		req := requestFrom("198.51.100.4")
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i == 0 {
			require.Equal(t, http.StatusOK, rec.Code)
		} else {
			require.Equal(t, http.StatusTooManyRequests, rec.Code)
		}
	}
}
