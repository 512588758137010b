package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func mustTrust(t *testing.T, entries ...string) TrustedProxies {
	t.Helper()
	tp, err := ParseTrustedProxies(entries)
	require.NoError(t, err)
	return tp
}

func TestRealIP_UntrustedPeerIgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:4444"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	req.Header.Set("X-Real-Ip", "9.10.11.12")
	assert.Equal(t, "203.0.113.7", realIP(req, nil))
	assert.Equal(t, "203.0.113.7", realIP(req, mustTrust(t, "10.0.0.0/8")))
}

func TestRealIP_RemoteAddr_Fallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:54321"
	assert.Equal(t, "192.168.1.1", realIP(req, nil))
}

func TestRealIP_TrustedProxy(t *testing.T) {
	trusted := mustTrust(t, "10.0.0.0/8", "172.16.0.1")
	tests := []struct {
		name   string
		remote string
		xff    string
		xreal  string
		want   string
	}{
		{"xff from trusted peer", "10.0.0.5:80", "1.2.3.4", "", "1.2.3.4"},
		{"rightmost untrusted hop wins", "10.0.0.5:80", "6.6.6.6, 1.2.3.4, 10.1.1.1", "", "1.2.3.4"},
		{"bare address entry", "172.16.0.1:80", "1.2.3.4", "", "1.2.3.4"},
		{"all hops trusted", "10.0.0.5:80", "10.9.9.9, 10.1.1.1", "", "10.9.9.9"},
		{"x-real-ip fallback", "10.0.0.5:80", "", "9.10.11.12", "9.10.11.12"},
		{"xff takes precedence over x-real-ip", "10.0.0.5:80", "1.1.1.1", "2.2.2.2", "1.1.1.1"},
		{"no headers", "10.0.0.5:80", "", "", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xreal != "" {
				req.Header.Set("X-Real-Ip", tt.xreal)
			}
			assert.Equal(t, tt.want, realIP(req, trusted))
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	tp, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.168.1.1 ", "", "::1"})
	require.NoError(t, err)
	assert.Len(t, tp, 3)
	assert.True(t, tp.contains("10.200.0.1"))
	assert.True(t, tp.contains("192.168.1.1"))
	assert.False(t, tp.contains("192.168.1.2"))
	assert.True(t, tp.contains("::1"))

	_, err = ParseTrustedProxies([]string{"not-an-ip"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}

func TestRateLimiter_SpoofedForwardingSharesBucket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, rate.Limit(0.001), 2, nil)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	allowed := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/session", nil)
		req.RemoteAddr = "203.0.113.7:4444"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Real-Ip", fmt.Sprintf("192.0.2.%d", i))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusNoContent {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestRateLimiter_TrustedProxySplitsClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, rate.Limit(0.001), 1, mustTrust(t, "10.0.0.1"))
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:80"
		req.Header.Set("X-Forwarded-For", client)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code, client)
	}
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, rate.Limit(0.001), 2, nil)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRateLimiter_SweepDropsIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, rate.Limit(1), 1, nil)
	rl.get("1.1.1.1")
	rl.get("2.2.2.2")
	rl.limiters["1.1.1.1"].lastSeen = time.Now().Add(-time.Hour)

	rl.sweep(time.Now())
	_, stale := rl.limiters["1.1.1.1"]
	_, fresh := rl.limiters["2.2.2.2"]
	assert.False(t, stale)
	assert.True(t, fresh)
}
