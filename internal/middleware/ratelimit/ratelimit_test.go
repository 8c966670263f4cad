package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	rl.now = clk.Now
	t.Cleanup(rl.Stop)
	return rl, clk
}

func TestLimiter_Allow(t *testing.T) {
	rl, clk := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("fourth request within the window should be denied")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("other clients are limited independently")
	}

	clk.Advance(61 * time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Error("window should reset after a minute")
	}

	if got := rl.GetMetrics(); got.TotalHits != 1 || got.ClientCount != 2 {
		t.Errorf("GetMetrics() = %+v", got)
	}
}

func TestLimiter_FixedWindow(t *testing.T) {
	rl, clk := newTestLimiter(t, 2)
	rl.Allow("a")
	rl.Allow("a")

	clk.Advance(20 * time.Second)
	if rl.Allow("a") {
		t.Fatal("third request should be denied")
	}
	if got := rl.RetryAfter("a"); got != 40 {
		t.Errorf("RetryAfter() = %d, want 40", got)
	}

	// Denied requests do not extend the window.
	clk.Advance(40 * time.Second)
	if !rl.Allow("a") {
		t.Error("new window should start one minute after the first request")
	}
	if got := rl.RetryAfter("unknown"); got != 0 {
		t.Errorf("RetryAfter(unknown) = %d, want 0", got)
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, clk := newTestLimiter(t, 5)
	rl.Allow("a")
	clk.Advance(11 * time.Minute)
	rl.Allow("b")

	rl.cleanupStaleEntries()
	if rl.ActiveClients() != 1 {
		t.Errorf("ActiveClients() = %d, want 1", rl.ActiveClients())
	}
}

func TestLimiter_Middleware(t *testing.T) {
	rl, clk := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("first request status = %d", rr.Code)
	}

	clk.Advance(15 * time.Second)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "45" {
		t.Errorf("Retry-After = %q, want 45", got)
	}
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewLimiter(Config{})
	rl.Stop()
	rl.Stop()
}
