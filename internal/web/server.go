// Package web provides the JSON HTTP API over the user service.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/JonMunkholm/sheetusers/internal/alert"
	"github.com/JonMunkholm/sheetusers/internal/audit"
	"github.com/JonMunkholm/sheetusers/internal/auth"
	"github.com/JonMunkholm/sheetusers/internal/config"
	"github.com/JonMunkholm/sheetusers/internal/importer"
	"github.com/JonMunkholm/sheetusers/internal/logging"
	"github.com/JonMunkholm/sheetusers/internal/user"
	mw "github.com/JonMunkholm/sheetusers/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// UserService is the business API the handlers call. *user.Service implements it.
type UserService interface {
	ListAll(ctx context.Context) ([]user.Row, error)
	FindByID(ctx context.Context, id string) (*user.Profile, error)
	Save(ctx context.Context, document, name, password, role string) (alert.Result, error)
	Update(ctx context.Context, id, document, name, password, role, active string) (alert.Result, error)
	Delete(ctx context.Context, id string) (alert.Result, error)
	Authenticate(ctx context.Context, document, password string) (alert.Result, error)
}

// AuditLog lists audit entries. *audit.Logger implements it.
type AuditLog interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Entry, error)
}

// Server is the HTTP server for the user API.
type Server struct {
	cfg    *config.Config
	users  UserService
	audit  AuditLog
	issuer *auth.Issuer
	router *chi.Mux
	server *http.Server

	importer    *importer.Importer
	importSlots *importer.Limiter
	limiters    []*rateLimiter
}

// NewServer creates a Server. auditLog may be nil when auditing is disabled.
func NewServer(cfg *config.Config, users UserService, auditLog AuditLog, issuer *auth.Issuer) *Server {
	s := &Server{
		cfg:    cfg,
		users:  users,
		audit:  auditLog,
		issuer: issuer,
		router: chi.NewRouter(),

		importer:    importer.New(users, cfg.Import.MaxRows),
		importSlots: importer.NewLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWait),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
	s.router.Use(requestMetadata)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
	}
}

// setupRoutes configures all HTTP routes. Every route runs under
// SERVER_REQUEST_TIMEOUT except the CSV import, which hashes one password
// per row and gets IMPORT_TIMEOUT instead.
func (s *Server) setupRoutes() {
	s.router.With(s.requestTimeout).Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requestTimeout)
			if s.cfg.Rate.Enabled {
				r.Use(s.newLimiter(s.cfg.Rate.LoginLimit).middleware)
			}
			r.Post("/auth/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireBearer(s.issuer, s.cfg.Auth.RequireToken))

			r.Group(func(r chi.Router) {
				r.Use(s.requestTimeout)

				r.Get("/users", s.handleListUsers)
				r.Get("/users/export", s.handleExportUsers)
				r.Get("/users/{id}", s.handleGetUser)
				r.Post("/users", s.handleCreateUser)
				r.Put("/users/{id}", s.handleUpdateUser)
				r.Delete("/users/{id}", s.handleDeleteUser)

				r.Get("/audit", s.handleListAudit)
			})

			r.With(s.importDeadline).Post("/users/import", s.handleImportUsers)
		})
	})
}

// requestTimeout applies SERVER_REQUEST_TIMEOUT; zero disables it.
func (s *Server) requestTimeout(next http.Handler) http.Handler {
	t := s.cfg.Server.RequestTimeout
	if t <= 0 {
		return next
	}
	return middleware.Timeout(t)(next)
}

// importDeadline gives the import route IMPORT_TIMEOUT for its context and
// moves the connection's read and write deadlines out to match, since the
// server-wide ones are sized for ordinary requests.
func (s *Server) importDeadline(next http.Handler) http.Handler {
	t := s.cfg.Import.Timeout
	if t <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline := time.Now().Add(t + importDeadlineSlack)
		rc := http.NewResponseController(w)
		if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logging.FromContext(r.Context()).Warnw("import read deadline not extended", "error", err)
		}
		if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logging.FromContext(r.Context()).Warnw("import write deadline not extended", "error", err)
		}

		ctx, cancel := context.WithTimeout(r.Context(), t)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// importDeadlineSlack leaves room to write the report after the import
// context expires.
const importDeadlineSlack = 10 * time.Second

func (s *Server) newLimiter(perMinute int) *rateLimiter {
	rl := newRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	zap.S().Infow("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its background cleanup, then
// waits for running imports to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.stop()
	}
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if n := s.importSlots.Active(); n > 0 {
		zap.S().Infow("waiting for imports to finish", "active", n)
	}
	return s.importSlots.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		// JSON only; nothing here should ever be rendered as a document.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every window until stop is called.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if rl.now().Sub(v.lastReset) > rl.window*2 {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: now}
		return true
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by client IP.
// RemoteAddr has already been resolved by TrustedRealIP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(mw.ClientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			respondErrorJSON(w, rateLimited, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Warnw("json encode error", "error", err)
	}
}
