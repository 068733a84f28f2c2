package handler

import (
	"context"
	"net/http"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

type StatusProvider interface {
	Status(ctx context.Context) model.StatusReport
	RiskProfile() *model.RiskProfile
	InFlightTokens() []model.TokenID
	SetTradingEnabled(enabled bool)
}

type StatusHandler struct {
	svc StatusProvider
}

func NewStatusHandler(svc StatusProvider) *StatusHandler {
	return &StatusHandler{svc: svc}
}

func (h *StatusHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status(c.Request.Context()))
}

func (h *StatusHandler) GetRiskProfile(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.RiskProfile().Summary())
}

func (h *StatusHandler) GetInFlight(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"in_flight": h.svc.InFlightTokens()})
}

type tradingToggle struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetTrading is the operator kill switch. In-flight orders are not cancelled.
func (h *StatusHandler) SetTrading(c *gin.Context) {
	var body tradingToggle
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	h.svc.SetTradingEnabled(*body.Enabled)
	logger.Warn("trading toggled", "enabled", *body.Enabled, "client_ip", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"trading_enabled": *body.Enabled})
}
