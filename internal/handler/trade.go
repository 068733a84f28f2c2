package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/GoPolymarket/dexgate/internal/middleware"
	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type TradeSubmitter interface {
	SubmitManualTrade(ctx context.Context, req model.TradeRequest) (*model.AuthorizedOrder, error)
}

type TradeHistory interface {
	List(ctx context.Context, limit int) ([]model.TradeRecord, error)
}

type TradeHandler struct {
	trades  TradeSubmitter
	history TradeHistory
}

func NewTradeHandler(trades TradeSubmitter, history TradeHistory) *TradeHandler {
	return &TradeHandler{trades: trades, history: history}
}

type TradeRequestBody struct {
	Token       string          `json:"token" binding:"required"` // chain:address
	Side        string          `json:"side" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedBy string          `json:"requested_by"`
}

// SubmitTrade runs a manual trade through the gate and returns the authorized order.
func (h *TradeHandler) SubmitTrade(c *gin.Context) {
	var body TradeRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	id, err := model.ParseTokenID(body.Token)
	if err != nil {
		_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	side, err := model.ParseSide(body.Side)
	if err != nil {
		_ = c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	requestedBy := body.RequestedBy
	if requestedBy == "" {
		requestedBy = "api:" + c.ClientIP()
	}

	order, err := h.trades.SubmitManualTrade(c.Request.Context(), model.TradeRequest{
		RequestID:   middleware.RequestID(c),
		TokenID:     id,
		Side:        side,
		Amount:      body.Amount,
		RequestedBy: requestedBy,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *TradeHandler) ListTrades(c *gin.Context) {
	if h.history == nil {
		_ = c.Error(apperrors.New(apperrors.ErrNotFound, "trade history not configured", nil))
		return
	}
	limit, err := parseLimit(c, 50, 500)
	if err != nil {
		_ = c.Error(err)
		return
	}
	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInternal, "list trades", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": records})
}

func parseLimit(c *gin.Context, def, maxLimit int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, apperrors.NewInvalidRequest("limit must be a positive integer")
	}
	return min(limit, maxLimit), nil
}
