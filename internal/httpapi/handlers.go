package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"rollcall.app/internal/auth"
	"rollcall.app/internal/members"
	"rollcall.app/internal/obs"
)

const serviceName = "rollcall"

// Pinger is a dependency probed by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe pings every named dependency.
type ReadyProbe map[string]Pinger

func (rp ReadyProbe) Check(ctx context.Context) error {
	names := make([]string, 0, len(rp))
	for name := range rp {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if rp[name] == nil {
			continue
		}
		if err := rp[name].Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Config carries the transport settings of the API. SecureCookies sets the
// Secure flag on auth cookies. RefreshInBody also returns the refresh token
// in JSON responses. RateLimitRPS and RateLimitBurst bound login and refresh
// per client IP; X-Forwarded-For is honoured only from TrustedProxies.
type Config struct {
	Version        string
	SecureCookies  bool
	RefreshInBody  bool
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
	TrustedProxies []netip.Prefix
}

// API is the HTTP layer over the auth service and the member repository.
type API struct {
	router  chi.Router
	service *auth.Service
	members members.Repository
	metrics *obs.Metrics
	logger  *slog.Logger
	ready   ReadyProbe
	cfg     Config
	limiter *rateLimiter
	now     func() time.Time
}

// New builds the router. metrics and ready may be nil.
func New(service *auth.Service, repo members.Repository, metrics *obs.Metrics, logger *slog.Logger, ready ReadyProbe, cfg Config) *API {
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 5
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	a := &API{
		service: service,
		members: repo,
		metrics: metrics,
		logger:  obs.ResolveLogger(logger),
		ready:   ready,
		cfg:     cfg,
		now:     time.Now,
	}
	a.limiter = newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.TrustedProxies, a.now)
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, Recover(a.logger), Logging(a.logger), SecurityHeaders)
	if a.metrics != nil {
		r.Use(a.metrics.Instrument)
	}
	if len(a.cfg.AllowedOrigins) > 0 {
		r.Use(CORS(a.cfg.AllowedOrigins))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, codeNotFound, "resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed", nil)
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.Route("/v1/auth", func(r chi.Router) {
		r.With(a.limiter.Middleware).Post("/login", a.handleLogin)
		r.With(a.limiter.Middleware).Post("/refresh", a.handleRefresh)
		r.Post("/logout", a.handleLogout)
		r.Get("/verify", a.handleVerify)
	})
	r.Route("/v1/members", func(r chi.Router) {
		r.Use(a.Authenticate)
		r.With(a.RequirePermission(auth.OpMemberCreate)).Post("/", a.handleCreateMember)
		r.With(a.RequirePermission(auth.OpMemberRead)).Get("/", a.handleListMembers)
	})
	return r
}

// Handler returns the root handler for the HTTP server.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	respondOK(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.cfg.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		a.logger.WarnContext(ctx, "readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, codeUnavailable, "service not ready", nil)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"status": "ready"})
}
