package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/firmbill/internal/billing"
	billingdomain "github.com/smallbiznis/firmbill/internal/billing/domain"
	"github.com/smallbiznis/firmbill/internal/charge"
	chargedomain "github.com/smallbiznis/firmbill/internal/charge/domain"
	"github.com/smallbiznis/firmbill/internal/clock"
	"github.com/smallbiznis/firmbill/internal/config"
	"github.com/smallbiznis/firmbill/internal/entitlement"
	"github.com/smallbiznis/firmbill/internal/invoicing"
	invoicingdomain "github.com/smallbiznis/firmbill/internal/invoicing/domain"
	"github.com/smallbiznis/firmbill/internal/locking"
	"github.com/smallbiznis/firmbill/internal/observability"
	"github.com/smallbiznis/firmbill/internal/splitbilling"
	splitdomain "github.com/smallbiznis/firmbill/internal/splitbilling/domain"
	"github.com/smallbiznis/firmbill/internal/usage"
	usagedomain "github.com/smallbiznis/firmbill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	clock.Module,
	observability.Module,
	locking.Module,
	entitlement.Module,
	usage.Module,
	splitbilling.Module,
	charge.Module,
	invoicing.Module,
	billing.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
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

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	billingSvc billingdomain.Service
	usageSvc   usagedomain.Service
	splitSvc   splitdomain.Service
	chargeSvc  chargedomain.Service
	invoiceSvc invoicingdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	BillingSvc billingdomain.Service
	UsageSvc   usagedomain.Service
	SplitSvc   splitdomain.Service
	ChargeSvc  chargedomain.Service
	InvoiceSvc invoicingdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		log:    p.Log.Named("http"),

		billingSvc: p.BillingSvc,
		usageSvc:   p.UsageSvc,
		splitSvc:   p.SplitSvc,
		chargeSvc:  p.ChargeSvc,
		invoiceSvc: p.InvoiceSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", FirmContext())

	usage := api.Group("/usage")
	{
		usage.POST("/events", s.RecordUsage)
		usage.POST("/corrections", s.CorrectUsage)
		usage.GET("/overview", s.UsageOverview)
		usage.GET("/alerts", s.UsageAlerts)
	}

	charges := api.Group("/charges")
	{
		charges.POST("", s.RequestGrowthCharge)
		charges.GET("", s.ListCharges)
		charges.GET("/:chargeId", s.GetCharge)
		charges.POST("/:chargeId/approve", s.ApproveCharge)
		charges.POST("/:chargeId/cancel", s.CancelCharge)
		charges.POST("/:chargeId/bill", s.MarkChargeBilled)
		charges.POST("/:chargeId/pay", s.MarkChargePaid)
	}

	rules := api.Group("/billing-rules")
	{
		rules.GET("", s.GetBillingRule)
		rules.PUT("", s.UpdateBillingRule)
	}

	split := api.Group("/split-billing")
	{
		split.GET("", s.GetSplitConfig)
		split.PUT("", s.UpdateSplitConfig)
		split.POST("/allocate", s.Allocate)
	}

	invoices := api.Group("/invoices")
	{
		invoices.POST("/close", s.CloseBillingPeriod)
		invoices.GET("/:invoiceId", s.GetInvoice)
		invoices.POST("/:invoiceId/pay", s.MarkInvoicePaid)
	}
}
