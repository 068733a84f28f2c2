package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	mu     sync.Mutex
	script []func() ([]model.Token, error)
	calls  int
}

func (s *scriptedSource) FetchCandidates(ctx context.Context, chain model.ChainID) ([]model.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i]()
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type collector struct {
	mu  sync.Mutex
	obs []model.TokenObserved
}

func (c *collector) handle(_ context.Context, o model.TokenObserved) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = append(c.obs, o)
}

func (c *collector) addresses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.obs))
	for i, o := range c.obs {
		out[i] = o.Token.ID.Address
	}
	return out
}

func tok(addr string, liq float64) model.Token {
	return model.Token{ID: model.NewTokenID("bsc", addr), Metrics: model.TokenMetrics{LiquidityUSD: model.Dec(liq)}}
}

func ok(tokens ...model.Token) func() ([]model.Token, error) {
	return func() ([]model.Token, error) { return tokens, nil }
}

func fail() ([]model.Token, error) { return nil, errors.New("upstream 502") }

func TestPollOnceEmitsNewAndChangedTokens(t *testing.T) {
	src := &scriptedSource{script: []func() ([]model.Token, error){
		ok(tok("0x1", 100), tok("0x2", 100)),
		ok(tok("0x1", 100), tok("0x2", 250), model.Token{ID: model.NewTokenID("eth", "0x9")}),
		ok(tok("0x1", 100)),
		ok(tok("0x1", 100), tok("0x2", 250)),
	}}
	c := &collector{}
	p := New(Config{Chain: "bsc", Interval: time.Hour}, src, c.handle)

	for i := 0; i < 4; i++ {
		require.NoError(t, p.pollOnce(context.Background()))
	}
	// 0x2 re-emitted after it dropped out of the listing
	assert.Equal(t, []string{"0x1", "0x2", "0x2", "0x2"}, c.addresses())
	assert.EqualValues(t, 4, p.Status().Emitted)
	assert.Equal(t, model.TriggerPoller, c.obs[0].Trigger)
}

func TestRunSurvivesTransientFailures(t *testing.T) {
	src := &scriptedSource{script: []func() ([]model.Token, error){
		fail, fail, ok(tok("0x1", 1)),
	}}
	c := &collector{}
	p := New(Config{
		Chain:          "bsc",
		Interval:       time.Hour,
		BackoffBase:    time.Millisecond,
		BackoffCeiling: 5 * time.Millisecond,
	}, src, c.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(c.addresses()) == 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 0, p.Status().ConsecutiveFailures)
	assert.False(t, p.Status().LastSuccess.IsZero())
	assert.Equal(t, 3, src.Calls())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, p.State())
}

func TestRunReportsBackoffState(t *testing.T) {
	src := &scriptedSource{script: []func() ([]model.Token, error){fail}}
	p := New(Config{Chain: "bsc", BackoffBase: time.Hour, BackoffCeiling: time.Hour}, src, func(context.Context, model.TokenObserved) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.State() == StateBackoff }, time.Second, time.Millisecond)
	st := p.Status()
	assert.EqualValues(t, 1, st.ConsecutiveFailures)
	assert.Equal(t, "backoff", st.State)
}

func TestBackoff(t *testing.T) {
	base, ceiling := 5*time.Second, time.Minute
	cases := []struct {
		failures int64
		want     time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, time.Minute},
		{60, time.Minute},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Backoff(base, ceiling, tc.failures), "failures=%d", tc.failures)
	}
}

type panicky struct {
	runs atomic.Int32
}

func (p *panicky) Name() string { return "panicky" }

func (p *panicky) Run(ctx context.Context) error {
	if p.runs.Add(1) < 3 {
		panic("boom")
	}
	<-ctx.Done()
	return nil
}

func TestSuperviseRestartsAfterPanic(t *testing.T) {
	r := &panicky{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Supervise(ctx, PolicyRestart, time.Millisecond, r) }()

	require.Eventually(t, func() bool { return r.runs.Load() == 3 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestSupervisePropagatesAndStopsSiblings(t *testing.T) {
	sibling := &scriptedSource{script: []func() ([]model.Token, error){ok()}}
	healthy := New(Config{Chain: "eth", Interval: time.Hour}, sibling, func(context.Context, model.TokenObserved) {})

	err := Supervise(context.Background(), PolicyPropagate, time.Millisecond, &panicky{}, healthy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, StateStopped, healthy.State())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("Propagate")
	require.NoError(t, err)
	assert.Equal(t, PolicyPropagate, p)
	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}

type hangingSource struct {
	entered chan struct{}
	once    sync.Once
}

func (h *hangingSource) FetchCandidates(ctx context.Context, _ model.ChainID) ([]model.Token, error) {
	h.once.Do(func() { close(h.entered) })
	<-ctx.Done()
	return nil, ctx.Err()
}

type growingSource struct {
	calls atomic.Int64
}

func (g *growingSource) FetchCandidates(context.Context, model.ChainID) ([]model.Token, error) {
	n := g.calls.Add(1)
	return []model.Token{{
		ID:      model.NewTokenID("ethereum", "0xe1"),
		Metrics: model.TokenMetrics{LiquidityUSD: model.Dec(float64(1000 * n))},
	}}, nil
}

func TestSupervisedPollersAreIndependent(t *testing.T) {
	hung := &hangingSource{entered: make(chan struct{})}
	failing := &scriptedSource{script: []func() ([]model.Token, error){fail}}
	healthy := &growingSource{}
	var bscSeen, ethSeen collector

	stuck := New(Config{Chain: "bsc", Interval: 10 * time.Millisecond, FetchTimeout: time.Hour,
		BackoffBase: time.Millisecond, BackoffCeiling: time.Millisecond}, hung, bscSeen.handle)
	broken := New(Config{Chain: "base", Interval: 10 * time.Millisecond, FetchTimeout: time.Second,
		BackoffBase: time.Millisecond, BackoffCeiling: 5 * time.Millisecond}, failing, func(context.Context, model.TokenObserved) {})
	working := New(Config{Chain: "ethereum", Interval: 5 * time.Millisecond, FetchTimeout: time.Second,
		BackoffBase: time.Millisecond, BackoffCeiling: time.Millisecond}, healthy, ethSeen.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Supervise(ctx, PolicyRestart, time.Millisecond, stuck, broken, working) }()

	<-hung.entered
	require.Eventually(t, func() bool { return len(ethSeen.addresses()) >= 3 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return failing.Calls() >= 3 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, StatePolling, stuck.State())
	assert.Empty(t, bscSeen.addresses())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, stuck.State())
	assert.Equal(t, StateStopped, working.State())
}
