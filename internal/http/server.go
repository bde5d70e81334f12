package http

import (
	"context"
	"net/http"
	"time"

	"pockets/internal/cache"
	"pockets/internal/core"
	"pockets/internal/ledger"
	"pockets/internal/log"
	"pockets/internal/middleware/ratelimit"
	"pockets/internal/middleware/security"
	"pockets/internal/middleware/trace"
	"pockets/internal/notify"
)

// Ledger is the part of *ledger.Store the API uses.
type Ledger interface {
	Loading() bool
	Version() uint64
	Pockets() []core.Pocket
	Pocket(id string) (core.Pocket, error)
	Snapshot() ([]core.Pocket, uint64)
	Add(ctx context.Context, d ledger.PocketDraft) (core.Pocket, error)
	Update(ctx context.Context, id string, patch ledger.PocketPatch) (core.Pocket, error)
	Remove(ctx context.Context, id string) error
	AddTransaction(ctx context.Context, pocketID string, d ledger.TransactionDraft) (core.Transaction, error)
	TransferForBillPayment(ctx context.Context, billID, sourceID string) (ledger.BillPayment, error)
	Reset(ctx context.Context) error
}

// SettingsStore reads and writes reminder settings. *notify.Service implements it.
// Initialize reloads them from storage.
type SettingsStore interface {
	Initialize(ctx context.Context) error
	Settings() (notify.Settings, error)
	UpdateSettings(ctx context.Context, s notify.Settings) error
}

var (
	_ Ledger        = (*ledger.Store)(nil)
	_ SettingsStore = (*notify.Service)(nil)
)

// Options configures NewServer. Zero values select defaults;
// WriteRateLimit falls back to RateLimit.
type Options struct {
	Currency        string
	RateLimit       int
	WriteRateLimit  int
	UpcomingDays    int
	ReportCacheSize int
	Logger          *log.Logger
	// Ready reports whether backing services are reachable.
	Ready func(ctx context.Context) error
	// Settings enables the reminder settings endpoints.
	Settings SettingsStore
	Now      func() time.Time
}

type Server struct {
	http.Server
	ledger       Ledger
	settings     SettingsStore
	currency     string
	upcomingDays int
	now          func() time.Time
	ready        func(ctx context.Context) error
	logger       *log.Logger
	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	detector     *security.Detector
	reportCache  *cache.LRU[any]
	reports      *cache.Versioned[any]
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, l Ledger, opts Options) *Server {
	if opts.Currency == "" {
		opts.Currency = core.DefaultCurrency
	}
	if opts.UpcomingDays <= 0 {
		opts.UpcomingDays = 7
	}
	if opts.ReportCacheSize <= 0 {
		opts.ReportCacheSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	detector := security.NewDetector()
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: opts.RateLimit,
		WritesPerMinute:   opts.WriteRateLimit,
	})
	s := &Server{
		ledger:       l,
		settings:     opts.Settings,
		currency:     opts.Currency,
		upcomingDays: opts.UpcomingDays,
		now:          opts.Now,
		ready:        opts.Ready,
		logger:       opts.Logger.WithComponent(log.ComponentHTTP),
		limiter:      limiter,
		tracer:       trace.NewMiddleware(detector.ClientIP),
		detector:     detector,
		reportCache:  cache.NewLRU[any](opts.ReportCacheSize, 0),
	}
	s.reports = cache.NewVersioned[any](s.reportCache, l.Version)

	api := http.NewServeMux()
	api.HandleFunc("GET /pockets", s.handleListPockets)
	api.HandleFunc("POST /pockets", s.handleCreatePocket)
	api.HandleFunc("DELETE /pockets", s.handleReset)
	api.HandleFunc("GET /pockets/{id}", s.handleGetPocket)
	api.HandleFunc("PATCH /pockets/{id}", s.handleUpdatePocket)
	api.HandleFunc("DELETE /pockets/{id}", s.handleDeletePocket)
	api.HandleFunc("POST /pockets/{id}/transactions", s.handleAddTransaction)
	api.HandleFunc("POST /bills/{id}/pay", s.handlePayBill)
	api.HandleFunc("GET /transactions", s.handleListTransactions)
	api.HandleFunc("GET /reports/summary", s.handleSummary)
	api.HandleFunc("GET /reports/spending", s.handleSpending)
	api.HandleFunc("GET /reports/upcoming-bills", s.handleUpcomingBills)
	api.HandleFunc("GET /reports/month", s.handleMonth)
	if s.settings != nil {
		api.HandleFunc("GET /notifications/settings", s.handleGetSettings)
		api.HandleFunc("PUT /notifications/settings", s.handleUpdateSettings)
	}
	api.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(badRequest(http.StatusNotFound, "no route for %s %s", r.Method, r.URL.Path)).Write(w)
	})

	limited := s.limiter.Middleware(detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ClientIP(r), log.FieldPath, r.URL.Path)
		ErrorResponse(badRequest(http.StatusTooManyRequests, "rate limit exceeded, try again later")).Write(w)
	})(withNotices(api))

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)
	root.Handle("/", limited)

	var h http.Handler = security.Headers(security.APIHeadersConfig())(root)
	h = detector.Middleware(func(r *http.Request, reason string) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
			log.FieldClientIP, detector.ClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			"reason", reason)
	})(h)
	h = s.tracer.Middleware(h)
	h = log.Middleware(s.logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops background work and gracefully shuts the listener down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	hits, misses := s.reportCache.Stats()
	m := s.tracer.GetMetrics()
	s.logger.InfoContext(ctx, "HTTP server shutting down",
		"requests", m.TotalRequests, "server_errors", m.ServerErrors,
		"report_cache_hits", hits, "report_cache_misses", misses,
		"report_cache_entries", s.reportCache.Len(),
		"rate_limited", s.limiter.GetMetrics().Rejected(),
		"suspicious_requests", s.detector.GetMetrics().SuspiciousRequests)
	return s.Server.Shutdown(ctx)
}

func withNotices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := withNoticeSink(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// respond writes b, using the last ledger notice raised during the request
// as the toast when there is one.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, b *JSONResponseBuilder) {
	if sink, ok := r.Context().Value(noticeKey{}).(*noticeSink); ok {
		if n, ok := sink.last(); ok {
			b.Notice(n)
		}
	}
	b.Write(w)
}

// logMutation records a committed change with the pocket it touched.
func (s *Server) logMutation(r *http.Request, op string, p core.Pocket, extra log.LogFields) {
	fields := log.NewFields().WithPocket(p.ID, p.Name, p.Category)
	for k, v := range extra {
		fields[k] = v
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogMutation(r.Context(), op, fields, s.ledger.Version(), nil)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	sl := log.NewStructuredLogger(log.FromContext(r.Context()))
	switch {
	case StatusFor(err) >= http.StatusInternalServerError:
		sl.LogError(r.Context(), "Request failed", err, op, nil)
	case r.Method != http.MethodGet:
		sl.LogMutation(r.Context(), op, log.NewFields().WithPocket(r.PathValue("id"), "", ""), s.ledger.Version(), err)
	}
	s.respond(w, r, ErrorResponse(err))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ledger.Loading() {
		NewJSONResponse().Status(http.StatusServiceUnavailable).
			Data(map[string]string{"status": "loading"}).Write(w)
		return
	}
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			NewJSONResponse().Status(http.StatusServiceUnavailable).
				Data(map[string]string{"status": "unavailable"}).Write(w)
			return
		}
	}
	NewJSONResponse().Data(map[string]any{"status": "ready", "version": s.ledger.Version()}).Write(w)
}
