package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/openutility/wattshare/internal/analytics"
	analyticsdomain "github.com/openutility/wattshare/internal/analytics/domain"
	"github.com/openutility/wattshare/internal/balance"
	balancedomain "github.com/openutility/wattshare/internal/balance/domain"
	"github.com/openutility/wattshare/internal/config"
	"github.com/openutility/wattshare/internal/observability"
	obsmiddleware "github.com/openutility/wattshare/internal/observability/logger"
	obsmetrics "github.com/openutility/wattshare/internal/observability/metrics"
	obstracing "github.com/openutility/wattshare/internal/observability/tracing"
	"github.com/openutility/wattshare/internal/purchase"
	purchasedomain "github.com/openutility/wattshare/internal/purchase/domain"
	"github.com/openutility/wattshare/internal/reading"
	readingdomain "github.com/openutility/wattshare/internal/reading/domain"
	"github.com/openutility/wattshare/internal/receipt"
	receiptdomain "github.com/openutility/wattshare/internal/receipt/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	purchase.Module,
	reading.Module,
	receipt.Module,
	balance.Module,
	analytics.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	genID        *snowflake.Node
	purchaseSvc  purchasedomain.Service
	readingSvc   readingdomain.Service
	receiptSvc   receiptdomain.Service
	balanceSvc   balancedomain.Service
	analyticsSvc analyticsdomain.Service
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	GenID        *snowflake.Node
	PurchaseSvc  purchasedomain.Service
	ReadingSvc   readingdomain.Service
	ReceiptSvc   receiptdomain.Service
	BalanceSvc   balancedomain.Service
	AnalyticsSvc analyticsdomain.Service
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		genID:        p.GenID,
		purchaseSvc:  p.PurchaseSvc,
		readingSvc:   p.ReadingSvc,
		receiptSvc:   p.ReceiptSvc,
		balanceSvc:   p.BalanceSvc,
		analyticsSvc: p.AnalyticsSvc,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	api.POST("/purchases", s.CreatePurchase)
	api.GET("/purchases", s.ListPurchases)
	api.GET("/purchases/:id", s.GetPurchase)
	api.DELETE("/purchases/:id", s.DeletePurchase)
	api.POST("/purchases/:id/contribution", s.RecordContribution)
	api.PUT("/purchases/:id/contribution", s.UpdateContribution)

	api.POST("/readings", s.RecordReading)
	api.POST("/readings/validate", s.ValidateReading)
	api.GET("/readings", s.ListReadings)

	api.POST("/receipts", s.CreateReceipt)
	api.GET("/receipts", s.ListReceipts)
	api.GET("/receipts/:id", s.GetReceipt)
	api.POST("/receipts/match", s.MatchReceipts)

	api.GET("/balances/:userId", s.GetBalance)

	api.GET("/analytics/history", s.AnalyzeHistory)
}
