// Package http serves the hisab JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"hisab/internal/auth"
	"hisab/internal/log"
	"hisab/internal/middleware/ratelimit"
	"hisab/internal/middleware/security"
	"hisab/internal/middleware/trace"
	"hisab/internal/services"
)

// Services are the application services behind the API.
type Services struct {
	Users     *services.UserService
	Expenses  *services.ExpenseService
	Budgets   *services.BudgetService
	Groups    *services.MembershipService
	Parents   *services.ParentService
	Analytics *services.AnalyticsService
}

// Options tunes the server. Zero values pick defaults.
type Options struct {
	// Ready backs /readyz; typically the repository ping.
	Ready     func(context.Context) error
	RateLimit ratelimit.Config
	Logger    *log.Logger
	// Now is the clock used for default expense dates.
	Now func() time.Time
}

// Server is the API server. Shutdown stops the rate limiter as well as the
// listener.
type Server struct {
	http.Server

	svc      Services
	issuer   *auth.Issuer
	ready    func(context.Context) error
	now      func() time.Time
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services, issuer *auth.Issuer, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Component(log.ComponentHTTP)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	detector := security.NewDetector()
	s := &Server{
		svc:      svc,
		issuer:   issuer,
		ready:    opts.Ready,
		now:      opts.Now,
		logger:   opts.Logger,
		limiter:  ratelimit.NewLimiter(opts.RateLimit),
		detector: detector,
		tracer:   trace.NewMiddleware(opts.Logger, detector.ClientIP),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limitWrites(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/me", s.authed(s.handleMe))

	mux.HandleFunc("GET /api/summary", s.authed(s.handleSummary))
	mux.HandleFunc("GET /api/groups/{id}/summary", s.authed(s.handleGroupSummary))
	mux.HandleFunc("GET /api/groups/{id}/compare", s.authed(s.handleCompare))

	mux.HandleFunc("GET /api/expenses", s.authed(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.authed(s.handleCreateExpense))
	mux.HandleFunc("PUT /api/expenses/{id}", s.authed(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.authed(s.handleDeleteExpense))

	mux.HandleFunc("GET /api/budget", s.authed(s.handleGetBudget))
	mux.HandleFunc("PUT /api/budget", s.authed(s.handleSetBudget))
	mux.HandleFunc("GET /api/groups/{id}/budget", s.authed(s.handleGetGroupBudget))
	mux.HandleFunc("PUT /api/groups/{id}/budget", s.authed(s.handleSetGroupBudget))

	mux.HandleFunc("GET /api/groups", s.authed(s.handleListGroups))
	mux.HandleFunc("POST /api/groups", s.authed(s.handleCreateGroup))
	mux.HandleFunc("GET /api/groups/{id}/members", s.authed(s.handleListMembers))
	mux.HandleFunc("POST /api/groups/{id}/members", s.authed(s.handleAddMember))
	mux.HandleFunc("DELETE /api/groups/{id}/members/{userId}", s.authed(s.handleRemoveMember))
	mux.HandleFunc("POST /api/groups/{id}/leave", s.authed(s.handleLeaveGroup))
	mux.HandleFunc("POST /api/groups/{id}/invites", s.authed(s.handleSendGroupInvite))

	mux.HandleFunc("GET /api/invites/group", s.authed(s.handleListGroupInvites))
	mux.HandleFunc("POST /api/invites/group/{id}/accept", s.authed(s.handleResolveGroupInvite(true)))
	mux.HandleFunc("POST /api/invites/group/{id}/decline", s.authed(s.handleResolveGroupInvite(false)))

	mux.HandleFunc("POST /api/parent/invites", s.authed(s.handleSendParentInvite))
	mux.HandleFunc("GET /api/parent/invites", s.authed(s.handleListSentParentInvites))
	mux.HandleFunc("GET /api/invites/parent", s.authed(s.handleListParentInvites))
	mux.HandleFunc("POST /api/invites/parent/{id}/accept", s.authed(s.handleResolveParentInvite(true)))
	mux.HandleFunc("POST /api/invites/parent/{id}/decline", s.authed(s.handleResolveParentInvite(false)))

	mux.HandleFunc("GET /api/children", s.authed(s.handleListChildren))
	mux.HandleFunc("GET /api/children/{id}/summary", s.authed(s.handleChildSummary))
	mux.HandleFunc("GET /api/parents", s.authed(s.handleListParents))

	mux.HandleFunc("GET /api/alerts", s.authed(s.handleListAlerts))
	mux.HandleFunc("POST /api/alerts", s.authed(s.handleSendAlert))
	mux.HandleFunc("POST /api/alerts/{id}/read", s.authed(s.handleMarkAlertRead))
	mux.HandleFunc("DELETE /api/alerts/{id}", s.authed(s.handleDeleteAlert))
}

// limitWrites rate limits mutating requests per client address. Reads are
// not limited.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ClientIP(r), log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

// Metrics returns the request counters of the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
