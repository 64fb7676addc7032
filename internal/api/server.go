// Package api wires the HTTP surface: thin gin handlers that parse and
// validate a request, delegate to the component packages, and
// translate the result or error into a response.
package api

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mallardmetrics/mallard/internal/auth"
	"github.com/mallardmetrics/mallard/internal/config"
	"github.com/mallardmetrics/mallard/internal/ingestbuf"
	"github.com/mallardmetrics/mallard/internal/lockout"
	"github.com/mallardmetrics/mallard/internal/middleware"
	"github.com/mallardmetrics/mallard/internal/query"
	"github.com/mallardmetrics/mallard/internal/ratelimit"
)

// Store is the subset of *store.Store the HTTP layer itself touches
// directly (everything else goes through Buffer or Querier).
type Store interface {
	query.EventSource
}

// Orchestrator is the subset of *orchestrator.Orchestrator the HTTP
// layer touches: bumping the ingest counter on every accepted event,
// and reporting it back through /health and /metrics.
type Orchestrator interface {
	IncrementIngested()
	EventsIngestedTotal() uint64
}

// Server holds every dependency a handler might need. Handlers are
// methods on *Server so they share this without any package-level
// mutable state beyond what each component already protects itself.
type Server struct {
	cfg config.Config

	store   Store
	buffer  *ingestbuf.Buffer
	querier *query.Querier

	siteLimiter *ratelimit.Limiter
	ipLimiter   *ratelimit.Limiter
	lockout     *lockout.Tracker

	sessions *auth.SessionStore
	apiKeys  *auth.APIKeyStore
	guard    *auth.Guard

	orch Orchestrator

	startedAt time.Time

	mu                sync.Mutex
	adminPasswordHash string // set-once; subsequent setup calls are rejected
}

// Deps bundles every constructor argument Server needs, so wiring in
// cmd/main.go stays a single call.
type Deps struct {
	Config  config.Config
	Store   Store
	Buffer  *ingestbuf.Buffer
	Querier *query.Querier

	SiteLimiter *ratelimit.Limiter
	IPLimiter   *ratelimit.Limiter
	Lockout     *lockout.Tracker

	Sessions *auth.SessionStore
	APIKeys  *auth.APIKeyStore

	Orchestrator Orchestrator
}

// New builds a Server. If cfg.AdminPassword is set, it is hashed once
// here and becomes the initial admin_password_hash (bootstrapping auth
// at startup without requiring a call to /api/auth/setup).
func New(deps Deps) (*Server, error) {
	s := &Server{
		cfg:         deps.Config,
		store:       deps.Store,
		buffer:      deps.Buffer,
		querier:     deps.Querier,
		siteLimiter: deps.SiteLimiter,
		ipLimiter:   deps.IPLimiter,
		lockout:     deps.Lockout,
		sessions:    deps.Sessions,
		apiKeys:     deps.APIKeys,
		orch:        deps.Orchestrator,
		startedAt:   time.Now(),
	}

	if deps.Config.AdminPassword != "" {
		hash, err := auth.HashPassword(deps.Config.AdminPassword)
		if err != nil {
			return nil, err
		}
		s.adminPasswordHash = hash
	}

	s.guard = auth.NewGuard(s.sessions, s.apiKeys, s.adminConfigured(), deps.Config.DashboardOrigin)
	return s, nil
}

func (s *Server) adminConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminPasswordHash != ""
}

// Router builds the gin.Engine with the full middleware chain and
// route table, grouped one subrouter per concern.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))

	r.GET("/health", s.handleHealth)
	r.GET("/health/detailed", s.handleHealthDetailed)
	r.GET("/metrics", s.handleMetrics)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/event", middleware.EventBodyLimiter(), s.handleEvent)

		authGroup := apiGroup.Group("/auth")
		{
			authGroup.GET("/status", s.handleAuthStatus)
			authGroup.POST("/setup", middleware.DefaultSizeLimiter(), s.handleAuthSetup)
			authGroup.POST("/login", middleware.DefaultSizeLimiter(), s.handleAuthLogin)
			authGroup.POST("/logout", s.handleAuthLogout)
		}

		stats := apiGroup.Group("/stats")
		stats.Use(s.guard.RequireAuth())
		{
			stats.GET("/main", s.handleStatsMain)
			stats.GET("/timeseries", s.handleStatsTimeseries)
			stats.GET("/breakdown/:dimension", s.handleStatsBreakdown)
			stats.GET("/sessions", s.handleStatsSessions)
			stats.GET("/funnel", s.handleStatsFunnel)
			stats.GET("/retention", s.handleStatsRetention)
			stats.GET("/sequences", s.handleStatsSequences)
			stats.GET("/flow", s.handleStatsFlow)
			stats.GET("/revenue", s.handleStatsRevenue)
			stats.GET("/export", s.handleStatsExport)
		}

		keys := apiGroup.Group("/keys")
		keys.Use(s.guard.RequireAdminAuth())
		{
			keys.POST("", middleware.DefaultSizeLimiter(), s.handleCreateKey)
			keys.GET("", s.handleListKeys)
			keys.DELETE("/:hash", s.handleRevokeKey)
		}
	}

	return r
}
