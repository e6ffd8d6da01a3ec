package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func fakeClock(l *Limiter) *time.Time {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	return &now
}

func TestAllow_WithinBurst(t *testing.T) {
	l := NewLimiter(1.0, 3)
	fakeClock(l)

	for i := 0; i < 3; i++ {
		if !l.Allow("key1") {
			t.Errorf("request %d should be allowed (within burst)", i+1)
		}
	}
	if l.Allow("key1") {
		t.Error("request 4 should be rate limited")
	}
}

func TestAllow_Refill(t *testing.T) {
	l := NewLimiter(2.0, 2)
	now := fakeClock(l)

	l.Allow("k")
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("bucket should be empty")
	}

	*now = now.Add(500 * time.Millisecond)
	if !l.Allow("k") {
		t.Error("one token should have refilled after 500ms at 2/s")
	}
	if l.Allow("k") {
		t.Error("only one token should have refilled")
	}

	*now = now.Add(time.Hour)
	for i := 0; i < 2; i++ {
		if !l.Allow("k") {
			t.Errorf("request %d after long idle should be allowed", i+1)
		}
	}
	if l.Allow("k") {
		t.Error("refill should cap at burst")
	}
}

func TestAllow_KeysIndependent(t *testing.T) {
	l := NewLimiter(1.0, 1)
	fakeClock(l)

	if !l.Allow("a") || !l.Allow("b") {
		t.Fatal("first request per key should be allowed")
	}
	if l.Allow("a") {
		t.Error("key a should be limited")
	}
}

func TestRetryAfter(t *testing.T) {
	l := NewLimiter(4.0, 1)
	fakeClock(l)

	if d := l.RetryAfter("k"); d != 0 {
		t.Errorf("RetryAfter unknown key = %v, want 0", d)
	}
	l.Allow("k")
	if d := l.RetryAfter("k"); d != 250*time.Millisecond {
		t.Errorf("RetryAfter = %v, want 250ms", d)
	}
}

func TestSweep_EvictsIdleBuckets(t *testing.T) {
	l := NewLimiter(1.0, 1)
	now := fakeClock(l)

	l.Allow("old")
	*now = now.Add(idleAfter + time.Second)
	l.Allow("new")

	if n := l.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1 after sweep", n)
	}
}

func TestAllow_Concurrent(t *testing.T) {
	l := NewLimiter(0, 50)
	fakeClock(l)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want exactly 50", allowed)
	}
}

func TestMiddleware(t *testing.T) {
	l := NewLimiter(1.0, 2)
	fakeClock(l)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("10.0.0.1:5000"); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d code = %d", i+1, rec.Code)
		}
	}

	// Same host from another port shares the bucket.
	rec := do("10.0.0.1:6000")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("code = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", rec.Header().Get("Retry-After"))
	}

	if rec := do("10.0.0.2:5000"); rec.Code != http.StatusNoContent {
		t.Errorf("other host code = %d, want 204", rec.Code)
	}
}
