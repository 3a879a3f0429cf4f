package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter(t *testing.T) {
	l := NewLimiter(60, time.Minute, 3)
	defer l.Close()

	for i := range 3 {
		if r := l.Allow("a"); !r.Allowed {
			t.Fatalf("request %d denied", i)
		}
	}
	r := l.Allow("a")
	if r.Allowed {
		t.Fatal("fourth request should be denied")
	}
	if r.RetryAfter < time.Second {
		t.Errorf("RetryAfter = %v", r.RetryAfter)
	}
	if r.Limit != 60 {
		t.Errorf("Limit = %d, want 60", r.Limit)
	}
	if r := l.Allow("b"); !r.Allowed {
		t.Error("keys must not share buckets")
	}
}

func TestLimiterNil(t *testing.T) {
	l := NewLimiter(0, time.Minute, 1)
	if l != nil {
		t.Fatal("NewLimiter(0) should return nil")
	}
	for range 100 {
		if !l.Allow("x").Allowed {
			t.Fatal("nil limiter denied a request")
		}
	}
	l.Close()
}

func TestLimiterCleanup(t *testing.T) {
	l := NewLimiter(600, time.Minute, 1)
	defer l.Close()
	l.Allow("stale")
	l.cleanup(time.Now().Add(time.Hour))
	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("got %d buckets after cleanup, want 0", n)
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewResponseWriter(rec, Result{Allowed: false, Limit: 10, Remaining: 0, ResetAt: time.Unix(1000, 0), RetryAfter: 2 * time.Second})
	w.WriteHeader(http.StatusTooManyRequests)
	for k, want := range map[string]string{
		"X-RateLimit-Limit":     "10",
		"X-RateLimit-Remaining": "0",
		"X-RateLimit-Reset":     "1000",
		"Retry-After":           "2",
	} {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}
