package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *time.Time) {
	t.Helper()
	l := NewLimiter(cfg)
	t.Cleanup(l.Stop)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLimiter_Allow(t *testing.T) {
	l, now := newTestLimiter(t, Config{RequestsPerMinute: 3})

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("1.2.3.4", Read); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if ok, wait := l.Allow("1.2.3.4", Read); ok || wait != time.Minute {
		t.Fatalf("fourth request: ok=%v wait=%v, want rejected with 1m", ok, wait)
	}
	if ok, _ := l.Allow("5.6.7.8", Read); !ok {
		t.Fatal("other clients have their own window")
	}

	*now = now.Add(time.Minute)
	if ok, _ := l.Allow("1.2.3.4", Read); !ok {
		t.Fatal("a new window should allow requests again")
	}

	m := l.GetMetrics()
	if m.RejectedReads != 1 || m.Rejected() != 1 || m.Clients != 2 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestLimiter_WindowDoesNotSlide(t *testing.T) {
	l, now := newTestLimiter(t, Config{RequestsPerMinute: 2})
	l.Allow("ip", Read)
	*now = now.Add(50 * time.Second)
	l.Allow("ip", Read)
	if ok, wait := l.Allow("ip", Read); ok || wait != 10*time.Second {
		t.Fatalf("ok=%v wait=%v, want rejected with 10s left", ok, wait)
	}
	*now = now.Add(10 * time.Second)
	if ok, _ := l.Allow("ip", Read); !ok {
		t.Fatal("window should reset a minute after it started")
	}
}

func TestLimiter_WriteBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{RequestsPerMinute: 10, WritesPerMinute: 2})

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("ip", Write); !ok {
			t.Fatalf("write %d should be allowed", i+1)
		}
	}
	if ok, _ := l.Allow("ip", Write); ok {
		t.Fatal("third write should exceed the write budget")
	}
	if ok, _ := l.Allow("ip", Read); !ok {
		t.Fatal("reads keep their own budget")
	}
	if m := l.GetMetrics(); m.RejectedWrites != 1 || m.RejectedReads != 0 {
		t.Fatalf("metrics = %+v", m)
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l, now := newTestLimiter(t, Config{RequestsPerMinute: 10})
	l.Allow("old", Read)
	*now = now.Add(11 * time.Minute)
	l.Allow("new", Read)
	l.sweep()
	if m := l.GetMetrics(); m.Clients != 1 {
		t.Fatalf("Clients = %d, want 1", m.Clients)
	}
}

func TestClassOf(t *testing.T) {
	for method, want := range map[string]Class{
		http.MethodGet: Read, http.MethodHead: Read, http.MethodPost: Write,
		http.MethodPatch: Write, http.MethodDelete: Write, http.MethodPut: Write,
	} {
		if got := ClassOf(httptest.NewRequest(method, "/", nil)); got != want {
			t.Errorf("ClassOf(%s) = %v, want %v", method, got, want)
		}
	}
}

func TestLimiter_Middleware(t *testing.T) {
	l, _ := newTestLimiter(t, Config{RequestsPerMinute: 1})
	h := l.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}

	l.Stop()
	l.Stop()
}
