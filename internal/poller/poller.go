package poller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/GoPolymarket/dexgate/internal/pkg/metrics"
)

// ChainDataSource lists candidate tokens for one chain.
type ChainDataSource interface {
	FetchCandidates(ctx context.Context, chain model.ChainID) ([]model.Token, error)
}

// Handler consumes observations. It runs on the poller goroutine.
type Handler func(ctx context.Context, obs model.TokenObserved)

type State int32

const (
	StateIdle State = iota
	StatePolling
	StateEmitting
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateEmitting:
		return "emitting"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Config struct {
	Chain          model.ChainID
	Interval       time.Duration
	FetchTimeout   time.Duration
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
}

type Poller struct {
	cfg     Config
	source  ChainDataSource
	handler Handler
	log     *slog.Logger

	state       atomic.Int32
	failures    atomic.Int64
	emitted     atomic.Int64
	lastSuccess atomic.Int64 // unix nanos

	// owned by the Run goroutine
	seen map[model.TokenID]string
}

func New(cfg Config, source ChainDataSource, handler Handler) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 300 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 20 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}
	if cfg.BackoffCeiling < cfg.BackoffBase {
		cfg.BackoffCeiling = cfg.BackoffBase
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		handler: handler,
		log:     logger.Component("poller").With("chain", string(cfg.Chain)),
		seen:    make(map[model.TokenID]string),
	}
}

func (p *Poller) Name() string { return "poller:" + string(p.cfg.Chain) }

func (p *Poller) Chain() model.ChainID { return p.cfg.Chain }

// Run polls immediately and then every interval, or after a backoff delay when the last
// fetch failed. Only ctx cancellation ends it.
func (p *Poller) Run(ctx context.Context) error {
	defer p.setState(StateStopped)
	p.log.Info("Poller started", "interval", p.cfg.Interval.String())

	for {
		delay := p.cfg.Interval
		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			n := p.failures.Add(1)
			metrics.PollerFailures.WithLabelValues(string(p.cfg.Chain)).Set(float64(n))
			delay = Backoff(p.cfg.BackoffBase, p.cfg.BackoffCeiling, n)
			p.setState(StateBackoff)
			p.log.Warn("Fetch failed, backing off",
				"error", err, "consecutive_failures", n, "retry_in", delay.String())
		} else {
			p.setState(StateIdle)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Info("Poller stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	p.setState(StatePolling)
	fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	tokens, err := p.source.FetchCandidates(fctx, p.cfg.Chain)
	cancel()
	if err != nil {
		return err
	}

	if p.failures.Swap(0) > 0 {
		metrics.PollerFailures.WithLabelValues(string(p.cfg.Chain)).Set(0)
		p.log.Info("Fetch recovered")
	}
	p.lastSuccess.Store(time.Now().UnixNano())

	p.setState(StateEmitting)
	next := make(map[model.TokenID]string, len(tokens))
	for _, t := range tokens {
		if t.ID.Chain != p.cfg.Chain {
			continue
		}
		fp := t.Fingerprint()
		next[t.ID] = fp
		if p.seen[t.ID] == fp {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		p.emitted.Add(1)
		metrics.TokensObserved.WithLabelValues(string(p.cfg.Chain)).Inc()
		p.handler(ctx, model.TokenObserved{
			Token:      t,
			Trigger:    model.TriggerPoller,
			Chain:      p.cfg.Chain,
			ObservedAt: time.Now().UTC(),
		})
	}
	p.seen = next
	return nil
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
	metrics.PollerState.WithLabelValues(string(p.cfg.Chain)).Set(float64(s))
}

func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) Status() model.PollerStatus {
	st := model.PollerStatus{
		Chain:               p.cfg.Chain,
		State:               p.State().String(),
		ConsecutiveFailures: p.failures.Load(),
		Emitted:             p.emitted.Load(),
	}
	if ns := p.lastSuccess.Load(); ns > 0 {
		st.LastSuccess = time.Unix(0, ns).UTC()
	}
	return st
}

// Backoff is base doubled per consecutive failure, capped at ceiling.
func Backoff(base, ceiling time.Duration, failures int64) time.Duration {
	if failures <= 1 {
		return min(base, ceiling)
	}
	delay := base
	for i := int64(1); i < failures; i++ {
		delay *= 2
		if delay >= ceiling || delay <= 0 {
			return ceiling
		}
	}
	return delay
}
