// Package http serves the dashboard page, its JSON API and the live event
// stream.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"fundboard/internal/cache"
	"fundboard/internal/change"
	"fundboard/internal/log"
	"fundboard/internal/middleware/ratelimit"
	"fundboard/internal/middleware/security"
	"fundboard/internal/middleware/trace"
	"fundboard/internal/refresh"
	appweb "fundboard/web"
)

const (
	refreshTimeout    = 30 * time.Second
	readyCheckTimeout = 5 * time.Second
	streamKeepAlive   = 25 * time.Second
	historyCacheTTL   = 5 * time.Minute
	maxHistoryLimit   = 1000
)

// Refresher exposes the refresh cycle to handlers.
type Refresher interface {
	Refresh(ctx context.Context) (*refresh.Outcome, error)
	Latest() (refresh.Outcome, bool)
	SourceName() string
}

// Store is the persistence the handlers read and write directly.
type Store interface {
	ListHistory(ctx context.Context, limit int) ([]change.Record, error)
	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, theme string) error
	Ping(ctx context.Context) error
}

type Options struct {
	Addr         string
	Location     *time.Location
	HistoryLimit int
	RateLimit    ratelimit.Config
	Logger       *log.Logger
}

type Server struct {
	http.Server
	refresher Refresher
	store     Store
	templates *template.Template
	loc       *time.Location

	historyLimit int
	historyCache *cache.LRUCache[[]change.Record]
	cacheManager *cache.Manager

	hub         *Hub
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	logger    *log.Logger
	events    *log.StructuredLogger
	startedAt time.Time

	shutdownOnce sync.Once
}

var _ refresh.Listener = (*Server)(nil)

// NewServer wires routes and middleware. Subscribe the returned server to the
// orchestrator so the stream and history cache follow each cycle.
func NewServer(r Refresher, store Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		refresher:    r,
		store:        store,
		loc:          opts.Location,
		historyLimit: min(opts.HistoryLimit, maxHistoryLimit),
		historyCache: cache.NewLRUCache[[]change.Record](32, historyCacheTTL),
		cacheManager: cache.NewManager(opts.Logger),
		hub:          NewHub(),
		rateLimiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector:     security.NewDetector(opts.Logger),
		logger:       logger,
		events:       log.NewStructuredLogger(logger),
		startedAt:    time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, opts.Logger)

	s.cacheManager.Register(s.historyCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	limited := s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("GET /api/state", security.NoStore(http.HandlerFunc(s.handleState)))
	mux.Handle("GET /api/history", security.NoStore(http.HandlerFunc(s.handleHistory)))
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.Handle("POST /api/refresh", limited(http.HandlerFunc(s.handleRefresh)))
	mux.HandleFunc("GET /api/theme", s.handleGetTheme)
	mux.Handle("PUT /api/theme", limited(http.HandlerFunc(s.handleSetTheme)))

	var handler http.Handler = mux
	handler = s.detector.Middleware(handler)
	handler = log.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// OnRefresh invalidates cached history on a change and pushes the outcome to
// stream subscribers.
func (s *Server) OnRefresh(ctx context.Context, out refresh.Outcome) {
	if out.Changed {
		s.historyCache.Clear()
	}
	s.hub.Broadcast(Event{Type: eventType(out), State: s.stateFrom(out)})
}

// Shutdown ends open streams, stops background cleanup and shuts the
// listener down.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.hub.Close()
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
}
