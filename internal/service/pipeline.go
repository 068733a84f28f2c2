package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/GoPolymarket/dexgate/internal/poller"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type PipelineConfig struct {
	AutoBuyAmount   decimal.Decimal // zero means watch-only
	RefreshInterval time.Duration
	ManualQueue     int
	Policy          poller.Policy
	RestartDelay    time.Duration
}

// statusWindow bounds how many ledger records feed the status portfolio.
const statusWindow = 1000

type manualJob struct {
	ctx   context.Context
	req   model.TradeRequest
	reply chan manualResult
}

type manualResult struct {
	order *model.AuthorizedOrder
	err   error
}

// Pipeline wires chain pollers, the screening engine and the trade gate. Both automated
// observations and manual requests reach the executor only through the gate.
type Pipeline struct {
	cfg      PipelineConfig
	store    *RiskProfileStore
	screener Screener
	gate     *TradeGate
	alerts   *AlertService
	history  LedgerReader
	pollers  []*poller.Poller
	manual   chan manualJob
	log      *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPipeline builds the pipeline. history may be nil, in which case Status carries no
// portfolio.
func NewPipeline(cfg PipelineConfig, store *RiskProfileStore, screener Screener, gate *TradeGate, alerts *AlertService, history LedgerReader) *Pipeline {
	if cfg.ManualQueue <= 0 {
		cfg.ManualQueue = 64
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 10 * time.Second
	}
	return &Pipeline{
		cfg:      cfg,
		store:    store,
		screener: screener,
		gate:     gate,
		alerts:   alerts,
		history:  history,
		manual:   make(chan manualJob, cfg.ManualQueue),
		log:      logger.Component("pipeline"),
		closed:   make(chan struct{}),
	}
}

// AddPoller builds a poller for one chain that feeds HandleObservation.
func (p *Pipeline) AddPoller(cfg poller.Config, source poller.ChainDataSource) *poller.Poller {
	pl := poller.New(cfg, source, p.HandleObservation)
	p.pollers = append(p.pollers, pl)
	return pl
}

// HandleObservation screens an observed token. With auto-buy configured the observation
// becomes a gate request; otherwise only the verdict is reported.
func (p *Pipeline) HandleObservation(ctx context.Context, obs model.TokenObserved) {
	token := obs.Token
	if p.cfg.AutoBuyAmount.IsPositive() {
		_, err := p.gate.Authorize(ctx, model.TradeRequest{
			RequestID:   uuid.NewString(),
			TokenID:     token.ID,
			Side:        model.SideBuy,
			Amount:      p.cfg.AutoBuyAmount,
			RequestedBy: string(obs.Trigger) + ":" + string(obs.Chain),
			Trigger:     obs.Trigger,
			Observed:    &token,
		})
		if err != nil && !apperrors.Is(err, apperrors.ErrScreeningFailed) {
			p.log.Debug("Auto-buy not authorized", "token", token.ID.String(), "code", apperrors.TypeOf(err))
		}
		return
	}

	verdict := p.screener.Evaluate(ctx, token, p.store.Current())
	p.alerts.Notify(model.NewVerdictAlert(verdict, obs.Trigger, ""))
}

// SubmitManualTrade hands the request to the manual worker and waits for its decision.
func (p *Pipeline) SubmitManualTrade(ctx context.Context, req model.TradeRequest) (*model.AuthorizedOrder, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.Trigger = model.TriggerManual
	job := manualJob{ctx: ctx, req: req, reply: make(chan manualResult, 1)}

	select {
	case <-p.closed:
		return nil, apperrors.New(apperrors.ErrTradingDisabled, "pipeline is shut down", nil)
	default:
	}
	select {
	case p.manual <- job:
	case <-p.closed:
		return nil, apperrors.New(apperrors.ErrTradingDisabled, "pipeline is shut down", nil)
	case <-ctx.Done():
		return nil, apperrors.New(apperrors.ErrInternal, "manual trade not accepted", ctx.Err())
	}

	select {
	case res := <-job.reply:
		return res.order, res.err
	case <-ctx.Done():
		// the worker still finishes the authorization and records it
		return nil, apperrors.New(apperrors.ErrInternal, "manual trade result not awaited", ctx.Err())
	}
}

func (p *Pipeline) manualWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.rejectQueued()
			return nil
		case job := <-p.manual:
			order, err := p.gate.Authorize(job.ctx, job.req)
			job.reply <- manualResult{order: order, err: err}
		}
	}
}

func (p *Pipeline) rejectQueued() {
	for {
		select {
		case job := <-p.manual:
			job.reply <- manualResult{err: apperrors.New(apperrors.ErrTradingDisabled, "pipeline is shut down", nil)}
		default:
			return
		}
	}
}

// Run starts the refresh loop, the manual worker and the supervised pollers, and blocks
// until ctx is cancelled, Shutdown is called, or a poller fails under PolicyPropagate.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return errors.New("pipeline already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopped = make(chan struct{})
	stopped := p.stopped
	p.mu.Unlock()
	defer close(stopped)
	defer cancel()

	runners := make([]poller.Runner, 0, len(p.pollers))
	for _, pl := range p.pollers {
		runners = append(runners, pl)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		p.store.RefreshLoop(gctx, p.cfg.RefreshInterval)
		return nil
	})
	g.Go(func() error { return p.manualWorker(gctx) })
	g.Go(func() error {
		return poller.Supervise(gctx, p.cfg.Policy, p.cfg.RestartDelay, runners...)
	})

	p.log.Info("Pipeline running", "pollers", len(p.pollers), "auto_buy", p.cfg.AutoBuyAmount.String())
	return g.Wait()
}

// Shutdown drains the gate first so no order is abandoned, then stops pollers.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.closed) })
	drainErr := p.gate.Drain(ctx)

	p.mu.Lock()
	cancel, stopped := p.cancel, p.stopped
	p.mu.Unlock()
	if cancel == nil {
		return drainErr
	}
	cancel()
	select {
	case <-stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	return drainErr
}

func (p *Pipeline) RiskProfile() *model.RiskProfile {
	return p.store.Current()
}

func (p *Pipeline) InFlightTokens() []model.TokenID {
	return p.gate.InFlightTokens()
}

func (p *Pipeline) SetTradingEnabled(enabled bool) {
	p.gate.SetTradingEnabled(enabled)
}

func (p *Pipeline) Status(ctx context.Context) model.StatusReport {
	pollers := make([]model.PollerStatus, 0, len(p.pollers))
	for _, pl := range p.pollers {
		pollers = append(pollers, pl.Status())
	}
	report := model.StatusReport{
		TradingEnabled: p.gate.TradingEnabled(),
		RiskProfile:    p.store.Current().Summary(),
		InFlight:       p.gate.InFlightTokens(),
		Pollers:        pollers,
		RecentAlerts:   p.alerts.Recent(20),
		Portfolio:      []model.Position{},
	}
	if p.history == nil {
		return report
	}
	records, err := p.history.List(ctx, statusWindow)
	if err != nil {
		p.log.Warn("Ledger unavailable, status without portfolio", "error", err)
		return report
	}
	report.Portfolio, report.Performance = model.SummarizeTrades(records)
	return report
}
