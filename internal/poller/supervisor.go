package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Policy decides what happens when a supervised runner panics or returns an error.
type Policy int

const (
	// PolicyRestart recovers, logs and restarts the runner after a delay.
	PolicyRestart Policy = iota
	// PolicyPropagate stops every runner and returns the failure.
	PolicyPropagate
)

func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "restart":
		return PolicyRestart, nil
	case "propagate":
		return PolicyPropagate, nil
	default:
		return PolicyRestart, fmt.Errorf("unknown supervision policy %q", raw)
	}
}

type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Supervise runs each runner independently until ctx is cancelled. A clean return after
// cancellation is not a failure.
func Supervise(ctx context.Context, policy Policy, restartDelay time.Duration, runners ...Runner) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		g.Go(func() error {
			return supervise(gctx, policy, restartDelay, r)
		})
	}
	return g.Wait()
}

func supervise(ctx context.Context, policy Policy, restartDelay time.Duration, r Runner) error {
	log := logger.Component("supervisor").With("runner", r.Name())
	for {
		err := runSafe(ctx, r)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("%s exited unexpectedly", r.Name())
		}
		if policy == PolicyPropagate {
			log.Error("Runner failed, stopping all", "error", err)
			return err
		}
		log.Error("Runner failed, restarting", "error", err, "delay", restartDelay.String())

		timer := time.NewTimer(restartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func runSafe(ctx context.Context, r Runner) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s panicked: %v", r.Name(), rec)
		}
	}()
	return r.Run(ctx)
}
