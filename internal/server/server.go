package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/waitlist/internal/audit/domain"
	billingdomain "github.com/smallbiznis/waitlist/internal/billing/domain"
	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/config"
	feedbackdomain "github.com/smallbiznis/waitlist/internal/feedback/domain"
	notificationdomain "github.com/smallbiznis/waitlist/internal/notification/domain"
	"github.com/smallbiznis/waitlist/internal/observability"
	obsmiddleware "github.com/smallbiznis/waitlist/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/waitlist/internal/observability/metrics"
	obstracing "github.com/smallbiznis/waitlist/internal/observability/tracing"
	projectdomain "github.com/smallbiznis/waitlist/internal/project/domain"
	"github.com/smallbiznis/waitlist/internal/ratelimit"
	reportingdomain "github.com/smallbiznis/waitlist/internal/reporting/domain"
	signupdomain "github.com/smallbiznis/waitlist/internal/signup/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the HTTP surface. Domain modules are composed by the binary.
var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	log     *zap.Logger
	clock   clock.Clock
	limiter ratelimit.Limiter
	metrics *obsmetrics.Metrics

	projectSvc      projectdomain.Service
	signupSvc       signupdomain.Service
	reportingSvc    reportingdomain.Service
	billingSvc      billingdomain.Service
	notificationSvc notificationdomain.Service
	feedbackSvc     feedbackdomain.Service
	auditSvc        auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin     *gin.Engine
	Cfg     config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Limiter ratelimit.Limiter   `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`

	ProjectSvc      projectdomain.Service
	SignupSvc       signupdomain.Service
	ReportingSvc    reportingdomain.Service
	BillingSvc      billingdomain.Service
	NotificationSvc notificationdomain.Service
	FeedbackSvc     feedbackdomain.Service
	AuditSvc        auditdomain.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		clock:           p.Clock,
		limiter:         p.Limiter,
		metrics:         p.Metrics,
		projectSvc:      p.ProjectSvc,
		signupSvc:       p.SignupSvc,
		reportingSvc:    p.ReportingSvc,
		billingSvc:      p.BillingSvc,
		notificationSvc: p.NotificationSvc,
		feedbackSvc:     p.FeedbackSvc,
		auditSvc:        p.AuditSvc,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// RegisterRoutes mounts the public API, the admin API and the operational
// endpoints under /api.
func (s *Server) RegisterRoutes() {
	s.registerPublicRoutes()
	s.registerAdminRoutes()
	s.registerBillingRoutes()
	s.registerCronRoutes()
	s.registerFallback()
}

func (s *Server) registerPublicRoutes() {
	api := s.engine.Group("/api", CORS("*"))

	api.POST("/project", s.rateLimit("project_create", s.cfg.RateLimit.ProjectCreate), s.CreateProject)
	api.GET("/project/:slug", s.GetProject)
	api.POST("/signup", s.rateLimit("signup", s.cfg.RateLimit.Signup), s.Signup)
	api.GET("/stats", s.GetStats)
	api.GET("/plans", s.ListPlans)
	api.POST("/feedback", s.rateLimit("feedback", s.cfg.RateLimit.Feedback), s.SubmitFeedback)

	// Preflight for the embeddable widget; CORS aborts before the handler.
	api.OPTIONS("/*path", func(c *gin.Context) {})
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin/:projectId")

	admin.GET("", s.GetAdminView)
	admin.GET("/signups", s.ListSignups)
	admin.GET("/export", s.ExportSignups)
	admin.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerBillingRoutes() {
	api := s.engine.Group("/api")

	api.POST("/checkout", s.rateLimit("checkout", s.cfg.RateLimit.Checkout), s.CreateCheckout)
	api.POST("/customer-portal", s.rateLimit("customer_portal", s.cfg.RateLimit.Checkout), s.CreateCustomerPortal)
	api.POST("/webhooks/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerCronRoutes() {
	cron := s.engine.Group("/api/cron", s.CronAuthRequired())

	cron.GET("/drip-emails", s.RunDripEmails)
	cron.POST("/drip-emails", s.RunDripEmails)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

func (s *Server) rateLimit(endpoint string, limit int) gin.HandlerFunc {
	if !s.cfg.RateLimit.Enabled || s.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	window := s.cfg.RateLimit.Window
	if window <= 0 {
		window = time.Minute
	}
	return ratelimit.Middleware(s.limiter, ratelimit.Rule{
		Endpoint: endpoint,
		Limit:    limit,
		Window:   window,
	}, s.log, s.metrics)
}
