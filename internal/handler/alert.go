package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type AlertFeed interface {
	List(ctx context.Context, limit int) ([]*model.Alert, error)
	Subscribe(buffer int) (<-chan *model.Alert, func())
}

type AlertHandler struct {
	feed     AlertFeed
	upgrader websocket.Upgrader
}

func NewAlertHandler(feed AlertFeed) *AlertHandler {
	return &AlertHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *AlertHandler) ListAlerts(c *gin.Context) {
	limit, err := parseLimit(c, 50, 500)
	if err != nil {
		_ = c.Error(err)
		return
	}
	alerts, err := h.feed.List(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInternal, "list alerts", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// StreamAlerts upgrades to a websocket and pushes every alert as a JSON text frame.
func (h *AlertHandler) StreamAlerts(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logger.Warn("alert stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	alerts, unsubscribe := h.feed.Subscribe(128)
	defer unsubscribe()

	// reader goroutine only services control frames and detects disconnects
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case alert, ok := <-alerts:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "alert service closed"))
				return
			}
			if err := conn.WriteJSON(alert); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
