package handler

import (
	"net/http"

	"github.com/GoPolymarket/dexgate/internal/config"
	"github.com/GoPolymarket/dexgate/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Trades *TradeHandler
	Status *StatusHandler
	Alerts *AlertHandler
}

// NewRouter mounts the API. Mutating routes sit behind the admin key.
func NewRouter(cfg *config.Config, h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.AccessLogMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "dexgate"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.RateLimitMiddleware(middleware.NewLimiter(cfg.Server.RateLimitQPS, cfg.Server.RateLimitBurst)))
	{
		v1.GET("/status", h.Status.GetStatus)
		v1.GET("/risk-profile", h.Status.GetRiskProfile)
		v1.GET("/inflight", h.Status.GetInFlight)
		v1.GET("/alerts", h.Alerts.ListAlerts)
		v1.GET("/alerts/stream", h.Alerts.StreamAlerts)
		v1.GET("/trades", h.Trades.ListTrades)
	}

	admin := v1.Group("")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.POST("/trades", h.Trades.SubmitTrade)
		admin.PUT("/trading", h.Status.SetTrading)
	}
	return r
}
