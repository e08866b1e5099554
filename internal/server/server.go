package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	answerdomain "github.com/lorekeep/lorekeep/internal/answer/domain"
	apikeydomain "github.com/lorekeep/lorekeep/internal/apikey/domain"
	billingdomain "github.com/lorekeep/lorekeep/internal/billing/domain"
	"github.com/lorekeep/lorekeep/internal/config"
	documentdomain "github.com/lorekeep/lorekeep/internal/document/domain"
	"github.com/lorekeep/lorekeep/internal/observability"
	obslogger "github.com/lorekeep/lorekeep/internal/observability/logger"
	obsmetrics "github.com/lorekeep/lorekeep/internal/observability/metrics"
	obstracing "github.com/lorekeep/lorekeep/internal/observability/tracing"
	"github.com/lorekeep/lorekeep/internal/ratelimit"
	tenantdomain "github.com/lorekeep/lorekeep/internal/tenant/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type ServerParams struct {
	fx.In

	Engine     *gin.Engine
	Config     config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	TenantSvc  tenantdomain.Service
	DocSvc     documentdomain.Service
	APIKeySvc  apikeydomain.Service
	BillingSvc billingdomain.Service
	AnswerSvc  answerdomain.Service
	Limiter    *ratelimit.QueryLimiter
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	tenantSvc  tenantdomain.Service
	docSvc     documentdomain.Service
	apiKeySvc  apikeydomain.Service
	billingSvc billingdomain.Service
	answerSvc  answerdomain.Service
	limiter    *ratelimit.QueryLimiter
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Engine,
		cfg:        p.Config,
		db:         p.DB,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		tenantSvc:  p.TenantSvc,
		docSvc:     p.DocSvc,
		apiKeySvc:  p.APIKeySvc,
		billingSvc: p.BillingSvc,
		answerSvc:  p.AnswerSvc,
		limiter:    p.Limiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	// Key-authenticated query surface.
	query := v1.Group("")
	query.Use(s.APIKeyRequired())
	query.POST("/query", s.Query)

	// Management surface; tenant identity comes from the request
	// header, falling back to the configured default tenant.
	admin := v1.Group("")
	admin.Use(s.TenantContext())
	{
		admin.POST("/tenants", s.CreateTenant)
		admin.GET("/tenants/:id", s.GetTenant)

		admin.POST("/documents", s.CreateDocument)
		admin.GET("/documents", s.ListDocuments)
		admin.GET("/documents/:id", s.GetDocument)
		admin.PATCH("/documents/:id", s.UpdateDocument)
		admin.DELETE("/documents/:id", s.DeleteDocument)

		admin.POST("/documents/:id/versions", s.CreateVersion)
		admin.GET("/documents/:id/versions", s.ListVersions)
		admin.POST("/documents/:id/versions/:version_id/approve", s.ApproveVersion)
		admin.POST("/documents/:id/versions/:version_id/reject", s.RejectVersion)
		admin.POST("/documents/:id/versions/:version_id/activate", s.ActivateVersion)

		admin.POST("/tags", s.CreateTag)
		admin.GET("/tags", s.ListTags)
		admin.DELETE("/tags/:id", s.DeleteTag)
		admin.POST("/users/:user_id/tags/:tag_id", s.GrantUserTag)
		admin.DELETE("/users/:user_id/tags/:tag_id", s.RevokeUserTag)

		admin.GET("/api-keys", s.ListAPIKeys)
		admin.POST("/api-keys", s.CreateAPIKey)
		admin.DELETE("/api-keys/:key_id", s.RevokeAPIKey)

		admin.GET("/billing/balance", s.GetBalance)
		admin.GET("/billing/transactions", s.ListTransactions)
		admin.GET("/billing/usage", s.UsageReport)
	}

	v1.POST("/webhooks/payment", s.PaymentWebhook)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
