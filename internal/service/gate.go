package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/GoPolymarket/dexgate/internal/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderExecutor places an order on-chain. Signing and broadcast live behind it.
type OrderExecutor interface {
	Execute(ctx context.Context, side model.Side, id model.TokenID, amount decimal.Decimal) (model.ExecutionReceipt, error)
}

// TokenLookup resolves current metrics for requests that carry no observation.
type TokenLookup interface {
	LookupToken(ctx context.Context, id model.TokenID) (model.Token, error)
}

type ProfileProvider interface {
	Current() *model.RiskProfile
}

type GateConfig struct {
	Enabled         bool
	ExecutorTimeout time.Duration
	LookupTimeout   time.Duration
	MaxTradeSize    decimal.Decimal // zero means unlimited
}

// TradeGate is the single authorization point for automated and manual trades.
// At most one authorization per token is in flight at any time.
type TradeGate struct {
	screener Screener
	profiles ProfileProvider
	executor OrderExecutor
	lookup   TokenLookup
	ledger   Ledger
	alerts   AlertSink
	cfg      GateConfig
	enabled  atomic.Bool
	log      *slog.Logger

	mu       sync.Mutex
	inflight map[model.TokenID]string
	draining bool
	wg       sync.WaitGroup
}

func NewTradeGate(cfg GateConfig, screener Screener, profiles ProfileProvider, executor OrderExecutor, lookup TokenLookup, ledger Ledger, alerts AlertSink) *TradeGate {
	if cfg.ExecutorTimeout <= 0 {
		cfg.ExecutorTimeout = 30 * time.Second
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 5 * time.Second
	}
	g := &TradeGate{
		screener: screener,
		profiles: profiles,
		executor: executor,
		lookup:   lookup,
		ledger:   ledger,
		alerts:   alerts,
		cfg:      cfg,
		inflight: make(map[model.TokenID]string),
		log:      logger.Component("gate"),
	}
	g.enabled.Store(cfg.Enabled)
	return g
}

func (g *TradeGate) SetTradingEnabled(enabled bool) {
	if g.enabled.Swap(enabled) != enabled {
		g.log.Warn("Trading toggled", "enabled", enabled)
	}
}

func (g *TradeGate) TradingEnabled() bool {
	return g.enabled.Load()
}

// InFlightTokens lists tokens currently holding the lock, sorted.
func (g *TradeGate) InFlightTokens() []model.TokenID {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]model.TokenID, 0, len(g.inflight))
	for id := range g.inflight {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Authorize screens the token and, if it passes, places the order. The returned error is
// always an *apperrors.AppError.
func (g *TradeGate) Authorize(ctx context.Context, req model.TradeRequest) (*model.AuthorizedOrder, error) {
	start := time.Now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if !g.enabled.Load() {
		return nil, g.reject(ctx, req, start, model.DecisionRejected,
			apperrors.New(apperrors.ErrTradingDisabled, "trading is disabled", nil))
	}
	if err := g.validate(&req); err != nil {
		return nil, g.reject(ctx, req, start, model.DecisionRejected, err)
	}

	if err := g.acquire(req); err != nil {
		decision := model.DecisionRejected
		if apperrors.Is(err, apperrors.ErrAlreadyInFlight) {
			decision = model.DecisionSuperseded
		}
		return nil, g.reject(ctx, req, start, decision, err)
	}
	defer g.release(req.TokenID)

	profile := g.profiles.Current()
	token := g.resolve(ctx, req)
	verdict := g.screener.Evaluate(ctx, token, profile)
	g.alerts.Notify(model.NewVerdictAlert(verdict, req.Trigger, req.RequestID))

	if !verdict.Passed {
		err := apperrors.New(apperrors.ErrScreeningFailed,
			fmt.Sprintf("%s failed screening", req.TokenID), nil).
			WithReasons(verdict.FailedCheckNames()...)
		g.record(ctx, req, start, model.DecisionRejected, err, verdict.Reasons(), nil)
		return nil, err
	}

	receipt, err := g.execute(ctx, req)
	if err != nil {
		appErr := apperrors.New(apperrors.ErrExecutionFailed, "order execution failed", err)
		g.record(ctx, req, start, model.DecisionRejected, appErr, []string{err.Error()}, nil)
		return nil, appErr
	}

	order := &model.AuthorizedOrder{
		RequestID:    req.RequestID,
		TokenID:      req.TokenID,
		Side:         req.Side,
		Amount:       req.Amount,
		Verdict:      verdict,
		Receipt:      receipt,
		AuthorizedAt: time.Now().UTC(),
	}
	g.record(ctx, req, start, model.DecisionAuthorized, nil, nil, &receipt)
	return order, nil
}

func (g *TradeGate) validate(req *model.TradeRequest) error {
	req.TokenID = model.NewTokenID(string(req.TokenID.Chain), req.TokenID.Address)
	if !req.TokenID.Valid() {
		return apperrors.NewInvalidRequest("token id requires chain and address")
	}
	if _, err := model.ParseSide(string(req.Side)); err != nil {
		return apperrors.NewInvalidRequest(err.Error())
	}
	if !req.Amount.IsPositive() {
		return apperrors.NewInvalidRequest("amount must be positive")
	}
	if g.cfg.MaxTradeSize.IsPositive() && req.Amount.GreaterThan(g.cfg.MaxTradeSize) {
		return apperrors.NewInvalidRequest(fmt.Sprintf("amount %s exceeds max trade size %s",
			req.Amount.String(), g.cfg.MaxTradeSize.String()))
	}
	return nil
}

// acquire is the test-and-set on the in-flight map; it never waits.
func (g *TradeGate) acquire(req model.TradeRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining {
		return apperrors.New(apperrors.ErrTradingDisabled, "gate is shutting down", nil)
	}
	if holder, ok := g.inflight[req.TokenID]; ok {
		return apperrors.New(apperrors.ErrAlreadyInFlight,
			fmt.Sprintf("%s already has request %s in flight", req.TokenID, holder), nil)
	}
	g.inflight[req.TokenID] = req.RequestID
	g.wg.Add(1)
	metrics.InFlightOrders.Inc()
	return nil
}

func (g *TradeGate) release(id model.TokenID) {
	g.mu.Lock()
	delete(g.inflight, id)
	g.mu.Unlock()
	metrics.InFlightOrders.Dec()
	g.wg.Done()
}

func (g *TradeGate) resolve(ctx context.Context, req model.TradeRequest) model.Token {
	if req.Observed != nil && req.Observed.ID == req.TokenID {
		return *req.Observed
	}
	if g.lookup == nil {
		return model.Token{ID: req.TokenID}
	}
	lctx, cancel := context.WithTimeout(ctx, g.cfg.LookupTimeout)
	defer cancel()
	token, err := g.lookup.LookupToken(lctx, req.TokenID)
	if err != nil {
		// metrics stay unknown and the dependent checks fail
		g.log.Warn("Token lookup failed", "token", req.TokenID.String(), "error", err)
		return model.Token{ID: req.TokenID}
	}
	token.ID = req.TokenID
	return token
}

// execute runs the executor detached from the caller so a cancelled request never abandons
// an order mid-flight, but still bounded by the executor timeout.
func (g *TradeGate) execute(ctx context.Context, req model.TradeRequest) (model.ExecutionReceipt, error) {
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.ExecutorTimeout)
	defer cancel()

	type result struct {
		receipt model.ExecutionReceipt
		err     error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		receipt, err := g.executor.Execute(ectx, req.Side, req.TokenID, req.Amount)
		done <- result{receipt, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ectx.Done():
		res.err = fmt.Errorf("executor timed out after %s: %w", g.cfg.ExecutorTimeout, ectx.Err())
	}

	label := "success"
	if res.err != nil {
		label = "failure"
		if errors.Is(res.err, context.DeadlineExceeded) {
			label = "timeout"
		}
	}
	metrics.ExecutorLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
	return res.receipt, res.err
}

func (g *TradeGate) reject(ctx context.Context, req model.TradeRequest, start time.Time, decision model.Decision, err error) error {
	appErr := apperrors.Wrap(err)
	g.record(ctx, req, start, decision, appErr, appErr.Reasons, nil)
	return appErr
}

func (g *TradeGate) record(ctx context.Context, req model.TradeRequest, start time.Time, decision model.Decision, appErr *apperrors.AppError, reasons []string, receipt *model.ExecutionReceipt) {
	rec := model.TradeRecord{
		RequestID:   req.RequestID,
		TokenID:     req.TokenID,
		Side:        req.Side,
		Amount:      req.Amount,
		RequestedBy: req.RequestedBy,
		Trigger:     req.Trigger,
		Decision:    decision,
		Reasons:     reasons,
		DecidedAt:   time.Now().UTC(),
		LatencyMs:   time.Since(start).Milliseconds(),
	}
	code := ""
	if appErr != nil {
		code = string(appErr.Type)
		rec.ErrorCode = code
		if len(rec.Reasons) == 0 {
			rec.Reasons = []string{appErr.Message}
		}
	}
	if receipt != nil {
		rec.OrderID = receipt.OrderID
		rec.TxHash = receipt.TxHash
	}
	metrics.GateDecisions.WithLabelValues(string(decision), code, string(req.Trigger)).Inc()

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := g.ledger.Record(lctx, rec); err != nil {
		logger.LogError(ctx, err, "Failed to record trade decision", "request_id", rec.RequestID)
	}
	g.alerts.Notify(model.NewDecisionAlert(rec))

	attrs := []any{
		"request_id", rec.RequestID,
		"token", rec.TokenID.String(),
		"side", rec.Side,
		"amount", rec.Amount.String(),
		"trigger", rec.Trigger,
		"decision", rec.Decision,
		"latency_ms", rec.LatencyMs,
	}
	if code != "" {
		attrs = append(attrs, "code", code, "reasons", rec.Reasons)
	}
	g.log.Info("Trade decision", attrs...)
}

// Drain stops admitting new requests and waits for in-flight authorizations to finish.
func (g *TradeGate) Drain(ctx context.Context) error {
	g.mu.Lock()
	g.draining = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
