package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowUnderLimit(t *testing.T) {
	l := New(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
}

func TestDenyOverLimit(t *testing.T) {
	l := New(3, time.Hour)

	for i := 0; i < 3; i++ {
		l.Allow("1.2.3.4")
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("4th request should be denied")
	}
}

func TestDifferentKeysIndependent(t *testing.T) {
	l := New(2, time.Hour)

	l.Allow("1.1.1.1")
	l.Allow("1.1.1.1")

	if l.Allow("1.1.1.1") {
		t.Fatal("1.1.1.1 should be denied")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatal("2.2.2.2 should be allowed")
	}
}

func TestExpiredEntriesPruned(t *testing.T) {
	l := New(2, 50*time.Millisecond)

	l.Allow("1.2.3.4")
	l.Allow("1.2.3.4")

	if l.Allow("1.2.3.4") {
		t.Fatal("should be denied before window expires")
	}

	time.Sleep(60 * time.Millisecond)

	if !l.Allow("1.2.3.4") {
		t.Fatal("should be allowed after window expires")
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l := New(1, time.Minute)
	l.now = func() time.Time { return now }

	if d := l.RetryAfter("k"); d != 0 {
		t.Fatalf("expected no wait for fresh key, got %v", d)
	}
	l.Allow("k")
	now = now.Add(20 * time.Second)
	if d := l.RetryAfter("k"); d != 40*time.Second {
		t.Fatalf("expected 40s wait, got %v", d)
	}
}

func TestSweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l := New(5, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(45 * time.Second)
	l.Allow("new")
	now = now.Add(30 * time.Second)

	l.Sweep()
	if l.Len() != 1 {
		t.Fatalf("expected 1 tracked key after sweep, got %d", l.Len())
	}
}

func TestMiddleware(t *testing.T) {
	l := New(1, time.Hour)
	calls := 0
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/messages", nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := send("10.0.0.1:1111"); w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", w.Code)
	}
	w := send("10.0.0.1:2222")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if w := send("10.0.0.2:1111"); w.Code != http.StatusCreated {
		t.Fatalf("other clients should pass, got %d", w.Code)
	}
	if calls != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:5000"
	if ip := ClientIP(req); ip != "::1" {
		t.Errorf("expected ::1, got %s", ip)
	}
	req.RemoteAddr = "no-port"
	if ip := ClientIP(req); ip != "no-port" {
		t.Errorf("expected raw remote addr, got %s", ip)
	}
}
