package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/dexgate/internal/config"
	"github.com/GoPolymarket/dexgate/internal/executor"
	"github.com/GoPolymarket/dexgate/internal/handler"
	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/GoPolymarket/dexgate/internal/poller"
	"github.com/GoPolymarket/dexgate/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 45 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chain pollers, trade gate and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comp := &components{cfg: cfg}
	defer func() {
		if err := comp.Close(); err != nil {
			logger.Warn("Close failed", "error", err)
		}
	}()
	if err := comp.connectStores(); err != nil {
		return err
	}
	if err := comp.buildAlerts(); err != nil {
		return fmt.Errorf("alert service: %w", err)
	}
	comp.pruneAlerts(ctx)
	if err := comp.buildLedger(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := comp.buildStore(ctx); err != nil {
		return fmt.Errorf("risk profile: %w", err)
	}
	engine, err := comp.buildEngine()
	if err != nil {
		return err
	}

	policy, err := poller.ParsePolicy(cfg.Monitoring.Supervision)
	if err != nil {
		return err
	}

	exec, err := buildExecutor(cfg)
	if err != nil {
		return err
	}

	gate := service.NewTradeGate(service.GateConfig{
		Enabled:         cfg.Trading.Enabled,
		ExecutorTimeout: cfg.Trading.ExecutorTimeout,
		LookupTimeout:   cfg.Trading.LookupTimeout,
		MaxTradeSize:    decimal.NewFromFloat(cfg.Trading.MaxTradeSize),
	}, engine, comp.store, exec, comp.tokenLookup(), comp.ledger, comp.alerts)

	pipeline := service.NewPipeline(service.PipelineConfig{
		AutoBuyAmount:   decimal.NewFromFloat(cfg.Trading.AutoBuyAmount),
		RefreshInterval: cfg.Security.BlacklistUpdateInterval,
		ManualQueue:     cfg.Trading.ManualQueue,
		Policy:          policy,
		RestartDelay:    cfg.Monitoring.RestartDelay,
	}, comp.store, engine, gate, comp.alerts, comp.ledger)

	if comp.market != nil {
		for _, ch := range cfg.Monitoring.Chains {
			pipeline.AddPoller(poller.Config{
				Chain:          model.NormalizeChain(ch.ID),
				Interval:       cfg.PollInterval(ch),
				FetchTimeout:   cfg.Monitoring.FetchTimeout,
				BackoffBase:    cfg.Monitoring.BackoffBase,
				BackoffCeiling: cfg.Monitoring.BackoffCeiling,
			}, comp.market)
		}
	} else if len(cfg.Monitoring.Chains) > 0 {
		logger.Warn("DexScreener disabled, chains are not polled", "chains", len(cfg.Monitoring.Chains))
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(cfg, handler.Handlers{
		Trades: handler.NewTradeHandler(pipeline, comp.ledger),
		Status: handler.NewStatusHandler(pipeline),
		Alerts: handler.NewAlertHandler(comp.alerts),
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	pipelineErr := make(chan error, 1)
	go func() { pipelineErr <- pipeline.Run(ctx) }()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("dexgate started", "port", cfg.Server.Port, "chains", len(cfg.Monitoring.Chains),
			"trading_enabled", cfg.Trading.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-pipelineErr:
		runErr = err
		if runErr != nil {
			logger.Error("Pipeline stopped", "error", runErr)
		}
	case err := <-serverErr:
		runErr = fmt.Errorf("server listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// stop intake first so no order is abandoned mid-flight
	if err := pipeline.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Pipeline shutdown incomplete", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exiting")
	return runErr
}

func buildExecutor(cfg *config.Config) (*executor.DryRunExecutor, error) {
	var opts []executor.Option
	if addr := cfg.Trading.WalletAddress; addr != "" {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("trading.wallet_address %q is not a hex address", addr)
		}
		tracker := executor.NewNonceTracker(common.HexToAddress(addr))
		for _, ch := range cfg.Monitoring.Chains {
			if ch.RPCURL == "" {
				continue
			}
			if err := tracker.Dial(model.NormalizeChain(ch.ID), ch.RPCURL); err != nil {
				return nil, err
			}
		}
		opts = append(opts, executor.WithNonces(tracker))
	}
	return executor.NewDryRunExecutor(cfg.Trading.Slippage, opts...), nil
}
