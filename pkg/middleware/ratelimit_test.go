package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/myinner/pkg/auth"
)

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	allowedCount := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		if ok, _ := limiter.Allow(ctx, "user:1"); ok {
			allowedCount++
		}
	}
	if expected := config.RequestsPerWindow + config.BurstSize; allowedCount != expected {
		t.Errorf("Allowed %d requests, want %d", allowedCount, expected)
	}
	if remaining := limiter.Remaining("user:1"); remaining != 0 {
		t.Errorf("Remaining() = %d, want 0", remaining)
	}

	// Other keys have their own bucket
	if ok, _ := limiter.Allow(ctx, "user:2"); !ok {
		t.Error("a different key should be allowed")
	}

	// Half a window refills half the rate
	now = now.Add(500 * time.Millisecond)
	refilled := 0
	for i := 0; i < 10; i++ {
		if ok, _ := limiter.Allow(ctx, "user:1"); ok {
			refilled++
		}
	}
	if refilled != 5 {
		t.Errorf("refilled %d tokens, want 5", refilled)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.Allow(context.Background(), "ip:1.2.3.4")
	if limiter.Remaining("ip:1.2.3.4") != 4 {
		t.Fatalf("Remaining() = %d, want 4", limiter.Remaining("ip:1.2.3.4"))
	}

	now = now.Add(3 * time.Minute)
	limiter.Cleanup()
	if limiter.Remaining("ip:1.2.3.4") != 5 {
		t.Error("idle bucket should have been removed")
	}
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRedisRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute, BurstSize: 1}, "test")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		ok, err := limiter.Allow(ctx, "user:1")
		if err != nil || !ok {
			t.Fatalf("request %d: Allow() = %v, %v", i+1, ok, err)
		}
	}
	if ok, _ := limiter.Allow(ctx, "user:1"); ok {
		t.Error("fifth request should be limited")
	}
	if ttl := mr.TTL("test:user:1"); ttl != time.Minute {
		t.Errorf("window TTL = %v, want 1m", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := limiter.Allow(ctx, "user:1"); !ok {
		t.Error("a new window should allow requests")
	}

	if err := limiter.Reset(ctx, "user:1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if mr.Exists("test:user:1") {
		t.Error("Reset() should remove the counter")
	}
}

func TestRedisRateLimiter_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	limiter := NewRedisRateLimiter(client, nil, "")
	if _, err := limiter.Allow(context.Background(), "ip:1"); err == nil {
		t.Error("expected an error with Redis down")
	}
}

func TestRateLimitMiddleware_Handler(t *testing.T) {
	userLimiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Hour})
	anonLimiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour})
	m := NewRateLimitMiddleware(userLimiter, anonLimiter, logrus.New())

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(user *auth.User, forwardedFor string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/notes/", nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		if user != nil {
			req = req.WithContext(auth.WithUser(req.Context(), user))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	alice := &auth.User{ID: 1, Username: "alice"}
	for i := 0; i < 2; i++ {
		if w := serve(alice, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
	}
	w := serve(alice, "10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "3600" {
		t.Errorf("Retry-After = %q, want 3600", w.Header().Get("Retry-After"))
	}

	// Anonymous callers are limited by client IP, independent of users
	if w := serve(nil, "10.0.0.1"); w.Code != http.StatusOK {
		t.Errorf("anonymous status = %d, want 200", w.Code)
	}
	if w := serve(nil, "10.0.0.1, 172.16.0.1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("same client IP status = %d, want 429", w.Code)
	}
	if w := serve(nil, "10.0.0.2"); w.Code != http.StatusOK {
		t.Errorf("other client IP status = %d, want 200", w.Code)
	}
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	limiter := NewRedisRateLimiter(client, nil, "")
	m := NewRateLimitMiddleware(limiter, limiter, logrus.New())

	w := httptest.NewRecorder()
	m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when Redis is down", w.Code)
	}
}
