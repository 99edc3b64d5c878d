package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	t.Parallel()
	h := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}).Handler(okHandler())

	for range 2 {
		rec := hit(h, "10.0.0.1:1000", "/")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := hit(h, "10.0.0.1:1001", "/")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.InDelta(t, float64(429), body["code"], 0)
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimiter_PerClient(t *testing.T) {
	t.Parallel()
	h := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}).Handler(okHandler())

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", "/").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2", "/").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1", "/").Code)
}

func TestRateLimiter_Exempt(t *testing.T) {
	t.Parallel()
	h := NewRateLimiter(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		Exempt:            func(r *http.Request) bool { return strings.HasSuffix(r.URL.Path, "/events") },
	}).Handler(okHandler())

	for range 3 {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", "/api/v1/queries/x/events").Code)
	}
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1", "/").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1", "/").Code)
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, IdleTTL: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	h := l.Handler(okHandler())

	hit(h, "10.0.0.1:1", "/")
	now = now.Add(30 * time.Second)
	hit(h, "10.0.0.2:1", "/")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, l.evictIdle())
	l.mu.Lock()
	_, kept := l.clients["10.0.0.2"]
	l.mu.Unlock()
	assert.True(t, kept)
}

func TestRateLimiter_RunStopsWithContext(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		remoteAddr string
		xff        string
		want       string
	}{
		{"192.168.1.1:12345", "", "192.168.1.1"},
		{"[::1]:12345", "", "::1"},
		{"10.0.0.1:1234", "203.0.113.50", "10.0.0.1"},
		{"unix-socket", "", "unix-socket"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remoteAddr
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		assert.Equal(t, tt.want, clientIP(req), tt.remoteAddr)
	}
}
