package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/get-hunter/hero365-app-sub007/internal/config"
	"github.com/get-hunter/hero365-app-sub007/internal/domain"
	"github.com/get-hunter/hero365-app-sub007/internal/infra/token"
	"github.com/get-hunter/hero365-app-sub007/internal/usecase"
)

type Server struct {
	cfg config.Config
	r   *gin.Engine
	log *zap.Logger

	pipeline *Pipeline

	provider  domain.IdentityProvider
	verifier  domain.CredentialVerifier
	evaluator domain.AccessEvaluator
	limiter   domain.RateLimiter
	sessions  *usecase.SessionService
	tokens    *token.Codec
	db        *gorm.DB
}

type ServerDeps struct {
	Logger      *zap.Logger
	Provider    domain.IdentityProvider
	Verifier    domain.CredentialVerifier
	Evaluator   domain.AccessEvaluator
	RateLimiter domain.RateLimiter
	Sessions    *usecase.SessionService
	Tokens      *token.Codec
	DB          *gorm.DB
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:       cfg,
		r:         r,
		log:       deps.Logger,
		provider:  deps.Provider,
		verifier:  deps.Verifier,
		evaluator: deps.Evaluator,
		limiter:   deps.RateLimiter,
		sessions:  deps.Sessions,
		tokens:    deps.Tokens,
		db:        deps.DB,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.pipeline = s.buildPipeline()
	r.Use(s.pipeline.Middleware())
	s.routes()
	return s
}

// Pipeline exposes the interceptor chain for introspection and for tests
// that reshape it.
func (s *Server) Pipeline() *Pipeline {
	return s.pipeline
}

// buildPipeline assembles the default chain. Rate limiting runs first so the
// verification stages never see throttled traffic; access control shares the
// public bypass set with authentication because its decisions presuppose an
// authenticated caller.
func (s *Server) buildPipeline() *Pipeline {
	p := NewPipeline(s.log)
	if s.limiter != nil && s.cfg.RateLimitRequests > 0 {
		window := time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
		p.Use(RateLimit(s.limiter, s.cfg.RateLimitRequests, window, s.cfg.RateLimitFailClosed, []string{"/healthz"}))
	}
	p.Use(Authenticate(s.verifier, s.cfg.AuthBypassPaths))
	p.Use(BusinessContext(s.cfg.ContextBypassPaths))
	p.Use(AccessControl(s.evaluator, s.cfg.AuthBypassPaths))
	return p
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealthz)

	v1 := s.r.Group("/api/v1")
	{
		v1.POST("/auth/signin", s.handleSignin)
		v1.POST("/auth/refresh", s.handleRefresh)
		v1.POST("/auth/switch-business", s.handleSwitchBusiness)

		v1.GET("/users/me", s.handleMe)
		v1.GET("/business-context/current", s.handleCurrentBusinessContext)

		v1.GET("/estimates", s.handleListEstimates)
		v1.POST("/estimates", s.handleCreateEstimate)
		v1.GET("/jobs", s.handleListJobs)
		v1.POST("/jobs", s.handleCreateJob)
		v1.GET("/activities", s.handleListActivities)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Run() error {
	return s.r.Run(s.cfg.HTTPAddr)
}

// Handler returns the underlying handler for tests and for embedding the
// server behind a custom listener.
func (s *Server) Handler() http.Handler {
	return s.r
}
