package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/dexgate/internal/poller"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChainSource struct {
	tokens []model.Token
	calls  atomic.Int32
}

func (s *staticChainSource) FetchCandidates(context.Context, model.ChainID) ([]model.Token, error) {
	s.calls.Add(1)
	return s.tokens, nil
}

func newTestPipeline(t *testing.T, autoBuy decimal.Decimal) (*Pipeline, *fakeExecutor, *AlertService) {
	t.Helper()
	profile := testProfile(model.RiskProfileData{})
	store := NewRiskProfileStore(profile, StaticRiskSource{}, "static", time.Second)
	alerts, err := NewAlertService("", nil)
	require.NoError(t, err)
	t.Cleanup(alerts.Close)

	exec := &fakeExecutor{}
	engine := cleanEngine()
	ledger := NewMemoryLedger(10)
	gate := NewTradeGate(GateConfig{Enabled: true, ExecutorTimeout: time.Second}, engine, store, exec, nil, ledger, alerts)
	p := NewPipeline(PipelineConfig{
		AutoBuyAmount:   autoBuy,
		RefreshInterval: time.Hour,
		Policy:          poller.PolicyRestart,
		RestartDelay:    10 * time.Millisecond,
	}, store, engine, gate, alerts, ledger)
	return p, exec, alerts
}

func TestWatchOnlyObservationAlertsWithoutTrading(t *testing.T) {
	p, exec, alerts := newTestPipeline(t, decimal.Zero)

	p.HandleObservation(context.Background(), model.TokenObserved{Token: cleanToken("0xaaa"), Trigger: model.TriggerPoller})

	assert.Zero(t, exec.calls.Load())
	recent := alerts.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, model.AlertVerdict, recent[0].Kind)
	require.NotNil(t, recent[0].Passed)
	assert.True(t, *recent[0].Passed)
}

func TestPollerObservationsFlowThroughGate(t *testing.T) {
	p, exec, _ := newTestPipeline(t, decimal.NewFromFloat(0.1))
	src := &staticChainSource{tokens: []model.Token{cleanToken("0xaaa"), cleanToken("0xbbb")}}
	p.AddPoller(poller.Config{Chain: "ethereum", Interval: time.Hour}, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return exec.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	status := p.Status(ctx)
	assert.True(t, status.TradingEnabled)
	require.Len(t, status.Pollers, 1)
	assert.EqualValues(t, 2, status.Pollers[0].Emitted)

	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	require.NoError(t, p.Shutdown(shutdownCtx))
	require.NoError(t, <-runErr)
}

func TestSubmitManualTradeThroughWorker(t *testing.T) {
	p, exec, _ := newTestPipeline(t, decimal.Zero)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	tok := cleanToken("0xaaa")
	order, err := p.SubmitManualTrade(context.Background(), model.TradeRequest{
		TokenID:     tok.ID,
		Side:        model.SideBuy,
		Amount:      decimal.NewFromInt(1),
		RequestedBy: "operator",
		Observed:    &tok,
	})
	require.NoError(t, err)
	assert.Equal(t, tok.ID, order.TokenID)
	assert.EqualValues(t, 1, exec.calls.Load())

	p.SetTradingEnabled(false)
	_, err = p.SubmitManualTrade(context.Background(), model.TradeRequest{
		TokenID: tok.ID, Side: model.SideSell, Amount: decimal.NewFromInt(1), Observed: &tok,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrTradingDisabled))

	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	require.NoError(t, p.Shutdown(shutdownCtx))

	_, err = p.SubmitManualTrade(context.Background(), model.TradeRequest{TokenID: tok.ID})
	assert.True(t, apperrors.Is(err, apperrors.ErrTradingDisabled))
}

func TestStatusSummarizesLedger(t *testing.T) {
	p, _, _ := newTestPipeline(t, decimal.Zero)
	ctx := context.Background()
	held := cleanToken("0xaaa")

	for range 2 {
		_, err := p.gate.Authorize(ctx, buyRequest(held))
		require.NoError(t, err)
	}
	sell := buyRequest(held)
	sell.Side = model.SideSell
	sell.Amount = decimal.NewFromFloat(0.2)
	_, err := p.gate.Authorize(ctx, sell)
	require.NoError(t, err)

	thin := cleanToken("0xbbb")
	thin.Metrics.LiquidityUSD = model.Dec(10)
	_, err = p.gate.Authorize(ctx, buyRequest(thin))
	require.True(t, apperrors.Is(err, apperrors.ErrScreeningFailed))

	report := p.Status(ctx)
	require.Len(t, report.Portfolio, 1)
	pos := report.Portfolio[0]
	assert.Equal(t, held.ID, pos.TokenID)
	assert.True(t, decimal.NewFromFloat(0.8).Equal(pos.Net), pos.Net.String())
	assert.Equal(t, 2, pos.Buys)
	assert.Equal(t, 1, pos.Sells)

	assert.Equal(t, 4, report.Performance.Window)
	assert.Equal(t, 3, report.Performance.Decisions[model.DecisionAuthorized])
	assert.Equal(t, 1, report.Performance.Decisions[model.DecisionRejected])
	assert.Equal(t, 1, report.Performance.ErrorCodes[string(apperrors.ErrScreeningFailed)])
}

func TestConcurrentShutdown(t *testing.T) {
	p, _, _ := newTestPipeline(t, decimal.Zero)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.cancel != nil
	}, time.Second, time.Millisecond)

	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Shutdown(shutdownCtx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	require.NoError(t, <-runErr)

	_, err := p.SubmitManualTrade(context.Background(), buyRequest(cleanToken("0xccc")))
	assert.True(t, apperrors.Is(err, apperrors.ErrTradingDisabled))
}
