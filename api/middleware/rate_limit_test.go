package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kentramx/kentramx-sub001/pkg/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int64, time.Duration) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimitBlocksAfterLimitPerUser(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(100, time.Minute)
	policy := NewRateLimitPolicy("change-plan", time.Minute, 2)
	handler := RateLimit(policy, limiter, nil)(okHandler())

	call := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscription/change-plan", nil)
		req = req.WithContext(WithUserID(req.Context(), userID))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp
	}

	for i := 0; i < 2; i++ {
		if resp := call("user-a"); resp.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i+1, resp.Code)
		}
	}
	resp := call("user-a")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if resp := call("user-b"); resp.Code != http.StatusOK {
		t.Fatalf("other users keep their own budget, got %d", resp.Code)
	}
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(100, time.Minute)
	handler := RateLimit(NewRateLimitPolicy("trial", time.Minute, 1), limiter, nil)(okHandler())

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}
	if code := call("203.0.113.7"); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if code := call("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", code)
	}
	if code := call("203.0.113.8"); code != http.StatusOK {
		t.Fatalf("expected 200 for another ip got %d", code)
	}
}

func TestRateLimitLimiterErrorIsDependencyFailure(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("cancel", time.Minute, 1), failingLimiter{}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code == http.StatusOK || resp.Code == http.StatusTooManyRequests {
		t.Fatalf("expected dependency failure, got %d", resp.Code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := RateLimit(NewRateLimitPolicy("off", 0, 0), failingLimiter{}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected pass through, got %d", resp.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	if got := ClientIP(req); got != "198.51.100.4" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Real-IP", "198.51.100.9")
	if got := ClientIP(req); got != "198.51.100.9" {
		t.Fatalf("expected real ip, got %q", got)
	}
}
