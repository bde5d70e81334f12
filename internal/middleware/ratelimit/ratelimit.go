// Package ratelimit implements fixed-window per-client request limits
// with a separate, usually tighter, budget for writes.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const window = time.Minute

// Class separates reads from writes. Writes count against both budgets.
type Class int

const (
	Read Class = iota
	Write
)

// ClassOf treats safe methods as reads and everything else as writes.
func ClassOf(r *http.Request) Class {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return Read
	default:
		return Write
	}
}

// Config holds rate limiter configuration. Zero values select defaults;
// WritesPerMinute defaults to RequestsPerMinute.
type Config struct {
	RequestsPerMinute int
	WritesPerMinute   int
	CleanupInterval   time.Duration
	// IdleTTL is how long a silent client is remembered.
	IdleTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
		IdleTTL:           10 * time.Minute,
	}
}

type counter struct {
	start time.Time
	n     int
}

// room resets an expired window and reports whether one more request fits,
// or how long until the window reopens.
func (c *counter) room(now time.Time, limit int) (bool, time.Duration) {
	if now.Sub(c.start) >= window {
		c.start, c.n = now, 0
	}
	if c.n >= limit {
		return false, window - now.Sub(c.start)
	}
	return true, 0
}

type client struct {
	all, writes counter
	lastSeen    time.Time
}

// Limiter tracks request counts per client key.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	cfg     Config
	now     func() time.Time

	rejectedReads  atomic.Int64
	rejectedWrites atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter starts a limiter and its cleanup goroutine. Call Stop when done.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.WritesPerMinute <= 0 {
		cfg.WritesPerMinute = cfg.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}

	l := &Limiter{
		clients: make(map[string]*client),
		cfg:     cfg,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Allow records a request from key. When it is rejected, retryAfter is
// the time left in the exhausted window. Rejected requests are not counted.
func (l *Limiter) Allow(key string, class Class) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, exists := l.clients[key]
	if !exists {
		c = &client{all: counter{start: now}, writes: counter{start: now}}
		l.clients[key] = c
	}
	c.lastSeen = now

	if ok, wait := c.all.room(now, l.cfg.RequestsPerMinute); !ok {
		l.reject(class)
		return false, wait
	}
	if class == Write {
		if ok, wait := c.writes.room(now, l.cfg.WritesPerMinute); !ok {
			l.reject(class)
			return false, wait
		}
		c.writes.n++
	}
	c.all.n++
	return true, 0
}

func (l *Limiter) reject(class Class) {
	if class == Write {
		l.rejectedWrites.Add(1)
	} else {
		l.rejectedReads.Add(1)
	}
}

func (l *Limiter) run() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep forgets clients idle for longer than IdleTTL.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.cfg.IdleTTL)
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// Stop shuts down the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

type Metrics struct {
	RejectedReads  int64
	RejectedWrites int64
	Clients        int
}

// Rejected is the total number of refused requests.
func (m Metrics) Rejected() int64 { return m.RejectedReads + m.RejectedWrites }

func (l *Limiter) GetMetrics() Metrics {
	l.mu.Lock()
	n := len(l.clients)
	l.mu.Unlock()
	return Metrics{
		RejectedReads:  l.rejectedReads.Load(),
		RejectedWrites: l.rejectedWrites.Load(),
		Clients:        n,
	}
}

// Middleware limits requests per clientKey. onLimit writes the rejection;
// when nil a plain 429 is sent. Retry-After is always set.
func (l *Limiter) Middleware(clientKey func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Allow(clientKey(r), ClassOf(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			secs := int(wait.Round(time.Second).Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
		})
	}
}
