package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/dexgate/internal/config"
	"github.com/GoPolymarket/dexgate/internal/middleware"
	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminKey = "test-admin"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTrades struct {
	mu   sync.Mutex
	reqs []model.TradeRequest
	err  error
}

func (f *fakeTrades) SubmitManualTrade(_ context.Context, req model.TradeRequest) (*model.AuthorizedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &model.AuthorizedOrder{
		RequestID: req.RequestID,
		TokenID:   req.TokenID,
		Side:      req.Side,
		Amount:    req.Amount,
		Receipt:   model.ExecutionReceipt{OrderID: "ord-1"},
	}, nil
}

type fakeHistory struct {
	records []model.TradeRecord
}

func (f *fakeHistory) List(_ context.Context, limit int) ([]model.TradeRecord, error) {
	return f.records[:min(limit, len(f.records))], nil
}

type fakeStatus struct {
	mu      sync.Mutex
	enabled bool
	profile *model.RiskProfile
}

func (f *fakeStatus) Status(context.Context) model.StatusReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.StatusReport{TradingEnabled: f.enabled, RiskProfile: f.profile.Summary()}
}

func (f *fakeStatus) RiskProfile() *model.RiskProfile { return f.profile }

func (f *fakeStatus) InFlightTokens() []model.TokenID {
	return []model.TokenID{model.NewTokenID("ethereum", "0xaa")}
}

func (f *fakeStatus) SetTradingEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enabled
}

type fakeFeed struct {
	alerts []*model.Alert
	live   chan *model.Alert
}

func (f *fakeFeed) List(_ context.Context, limit int) ([]*model.Alert, error) {
	return f.alerts[:min(limit, len(f.alerts))], nil
}

func (f *fakeFeed) Subscribe(int) (<-chan *model.Alert, func()) {
	return f.live, func() {}
}

type testAPI struct {
	router *gin.Engine
	trades *fakeTrades
	status *fakeStatus
	feed   *fakeFeed
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	cfg := &config.Config{Auth: config.AuthConfig{AdminKey: testAdminKey}}
	profile := model.NewRiskProfile(model.RiskProfileData{
		Tokens: []model.TokenID{model.NewTokenID("bsc", "0xbad")},
	}, model.Thresholds{MinLiquidity: decimal.NewFromInt(5000)}, "config", time.Now())

	api := &testAPI{
		trades: &fakeTrades{},
		status: &fakeStatus{enabled: true, profile: profile},
		feed:   &fakeFeed{live: make(chan *model.Alert, 4)},
	}
	history := &fakeHistory{records: []model.TradeRecord{
		{RequestID: "r1", Decision: model.DecisionAuthorized},
		{RequestID: "r2", Decision: model.DecisionRejected},
	}}
	api.router = NewRouter(cfg, Handlers{
		Trades: NewTradeHandler(api.trades, history),
		Status: NewStatusHandler(api.status),
		Alerts: NewAlertHandler(api.feed),
	})
	return api
}

func (a *testAPI) do(method, path, body string, admin bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if admin {
		req.Header.Set(middleware.HeaderAdminKey, testAdminKey)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestSubmitTradeAuthorized(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/v1/trades", `{"token":"Ethereum:0xABC","side":"BUY","amount":"0.25","requested_by":"ops"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Len(t, api.trades.reqs, 1)
	req := api.trades.reqs[0]
	assert.Equal(t, model.NewTokenID("ethereum", "0xabc"), req.TokenID)
	assert.Equal(t, model.SideBuy, req.Side)
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, "ops", req.RequestedBy)
	assert.Equal(t, w.Header().Get(middleware.HeaderRequestID), req.RequestID)

	var order model.AuthorizedOrder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, "ord-1", order.Receipt.OrderID)
}

func TestSubmitTradeRequiresAdminKey(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/v1/trades", `{"token":"ethereum:0xabc","side":"buy","amount":"1"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, api.trades.reqs)
}

func TestSubmitTradeRejectsMalformedInput(t *testing.T) {
	api := newTestAPI(t)

	for _, body := range []string{
		`{"token":"0xabc","side":"buy","amount":"1"}`,
		`{"token":"ethereum:0xabc","side":"hold","amount":"1"}`,
		`{"side":"buy","amount":"1"}`,
		`not json`,
	} {
		w := api.do(http.MethodPost, "/v1/trades", body, true)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), string(apperrors.ErrInvalidRequest), body)
	}
	assert.Empty(t, api.trades.reqs)
}

func TestSubmitTradeMapsGateErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperrors.New(apperrors.ErrScreeningFailed, "token failed screening", nil).WithReasons("Blacklist"), http.StatusUnprocessableEntity},
		{apperrors.New(apperrors.ErrAlreadyInFlight, "token already in flight", nil), http.StatusConflict},
		{apperrors.New(apperrors.ErrTradingDisabled, "trading disabled", nil), http.StatusServiceUnavailable},
		{apperrors.New(apperrors.ErrExecutionFailed, "executor failed", nil), http.StatusBadGateway},
	}
	for _, tc := range cases {
		api := newTestAPI(t)
		api.trades.err = tc.err

		w := api.do(http.MethodPost, "/v1/trades", `{"token":"ethereum:0xabc","side":"buy","amount":"1"}`, true)
		assert.Equal(t, tc.code, w.Code)

		var body apperrors.AppError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, apperrors.TypeOf(tc.err), body.Type)
	}
}

func TestScreeningFailureCarriesReasons(t *testing.T) {
	api := newTestAPI(t)
	api.trades.err = apperrors.New(apperrors.ErrScreeningFailed, "token failed screening", nil).WithReasons("Blacklist", "Liquidity")

	w := api.do(http.MethodPost, "/v1/trades", `{"token":"bsc:0xbad","side":"buy","amount":"1"}`, true)
	var body apperrors.AppError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"Blacklist", "Liquidity"}, body.Reasons)
}

func TestListTrades(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/v1/trades?limit=1", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Trades []model.TradeRecord `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Trades, 1)
	assert.Equal(t, "r1", body.Trades[0].RequestID)

	w = api.do(http.MethodGet, "/v1/trades?limit=zero", "", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/v1/status", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var report model.StatusReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.TradingEnabled)
	assert.Equal(t, "config", report.RiskProfile.Source)

	w = api.do(http.MethodGet, "/v1/risk-profile", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "0xbad")

	w = api.do(http.MethodGet, "/v1/inflight", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "0xaa")
}

func TestSetTrading(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPut, "/v1/trading", `{"enabled":false}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, api.status.Status(context.Background()).TradingEnabled)

	w = api.do(http.MethodPut, "/v1/trading", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPut, "/v1/trading", `{"enabled":true}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, api.status.Status(context.Background()).TradingEnabled)
}

func TestListAlerts(t *testing.T) {
	api := newTestAPI(t)
	api.feed.alerts = []*model.Alert{
		{ID: "a2", Kind: model.AlertDecision},
		{ID: "a1", Kind: model.AlertVerdict},
	}

	w := api.do(http.MethodGet, "/v1/alerts?limit=5", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Alerts []*model.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Alerts, 2)
	assert.Equal(t, "a2", body.Alerts[0].ID)
}

func TestStreamAlerts(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/alerts/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	api.feed.live <- &model.Alert{ID: "live-1", Kind: model.AlertVerdict, Message: "ethereum:0x1 passed screening"}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got model.Alert
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "live-1", got.ID)

	close(api.feed.live)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dexgate")
}
