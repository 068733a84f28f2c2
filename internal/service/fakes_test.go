package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/shopspring/decimal"
)

type fakeExecutor struct {
	calls   atomic.Int32
	block   chan struct{} // when set, Execute waits for it to close
	started chan struct{} // signalled on entry when set
	err     error
	ctxErr  atomic.Value  // ctx.Err() seen after unblocking
}

func (f *fakeExecutor) Execute(ctx context.Context, side model.Side, id model.TokenID, amount decimal.Decimal) (model.ExecutionReceipt, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return model.ExecutionReceipt{}, ctx.Err()
		}
	}
	f.ctxErr.Store(errString(ctx.Err()))
	if f.err != nil {
		return model.ExecutionReceipt{}, f.err
	}
	return model.ExecutionReceipt{OrderID: "ord-" + id.Address, ExecutedAt: time.Now()}, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type fakeVerifier struct {
	report model.ContractReport
	err    error
}

func (f fakeVerifier) Inspect(context.Context, model.TokenID) (model.ContractReport, error) {
	return f.report, f.err
}

type fakeScorer struct {
	score float64
	err   error
}

func (f fakeScorer) QualityScore(model.TokenMetrics) (float64, error) {
	return f.score, f.err
}

type funcEnricher struct {
	name     string
	provides []model.Metric
	fn       func(ctx context.Context, t model.Token) (model.Token, error)
}

func (f funcEnricher) Name() string             { return f.name }
func (f funcEnricher) Provides() []model.Metric { return f.provides }
func (f funcEnricher) Enrich(ctx context.Context, t model.Token) (model.Token, error) {
	return f.fn(ctx, t)
}

type fakeLookup struct {
	token model.Token
	err   error
}

func (f fakeLookup) LookupToken(context.Context, model.TokenID) (model.Token, error) {
	return f.token, f.err
}

type countingScreener struct {
	inner Screener
	calls atomic.Int32
}

func (c *countingScreener) Evaluate(ctx context.Context, token model.Token, profile *model.RiskProfile) model.ScreeningVerdict {
	c.calls.Add(1)
	return c.inner.Evaluate(ctx, token, profile)
}

type recordingSink struct {
	mu     sync.Mutex
	alerts []*model.Alert
}

func (r *recordingSink) Notify(a *model.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingSink) kinds() []model.AlertKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.AlertKind, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Kind
	}
	return out
}

type fixedProfile struct{ p *model.RiskProfile }

func (f fixedProfile) Current() *model.RiskProfile { return f.p }

func testThresholds() model.Thresholds {
	return model.Thresholds{
		MinLiquidity:          decimal.NewFromInt(25000),
		MinVolumeQualityScore: 0.35,
		MaxBundledSupplyPct:   decimal.NewFromInt(30),
	}
}

func testProfile(data model.RiskProfileData) *model.RiskProfile {
	return model.NewRiskProfile(data, testThresholds(), "test", time.Now())
}

func cleanToken(addr string) model.Token {
	return model.Token{
		ID:       model.NewTokenID("ethereum", addr),
		Symbol:   "GOOD",
		Deployer: "0xdeployer",
		Metrics: model.TokenMetrics{
			LiquidityUSD: model.Dec(50_000),
			Volume24hUSD: model.Dec(80_000),
			TopHolderPct: model.Dec(12.5),
			Txns:         &model.TradeCounts{M5: 10, H1: 120, H6: 700, H24: 2800, Buys24h: 1400, Sells24h: 1400},
		},
	}
}

func cleanEngine(opts ...ScreeningOption) *ScreeningEngine {
	base := []ScreeningOption{
		WithVerifier(fakeVerifier{report: model.ContractReport{Renounced: true, Source: "fake"}}),
		WithQualityScorer(fakeScorer{score: 0.8}),
		WithEnrichTimeout(50 * time.Millisecond),
	}
	return NewScreeningEngine(append(base, opts...)...)
}
