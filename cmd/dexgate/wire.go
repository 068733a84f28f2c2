package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/dexgate/internal/chain"
	"github.com/GoPolymarket/dexgate/internal/config"
	"github.com/GoPolymarket/dexgate/internal/datasource"
	"github.com/GoPolymarket/dexgate/internal/datasource/dexscreener"
	"github.com/GoPolymarket/dexgate/internal/datasource/goplus"
	"github.com/GoPolymarket/dexgate/internal/handler"
	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/GoPolymarket/dexgate/internal/quality"
	"github.com/GoPolymarket/dexgate/internal/repository"
	"github.com/GoPolymarket/dexgate/internal/service"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type tradeLedger interface {
	service.Ledger
	handler.TradeHistory
}

// components holds everything shared by serve and screen.
type components struct {
	cfg      *config.Config
	db       *sqlx.DB
	rdb      *redis.Client
	riskRepo *repository.PostgresRiskRepo
	alertPG  *repository.PostgresAlertRepo
	alerts   *service.AlertService
	store    *service.RiskProfileStore
	engine   *service.ScreeningEngine
	market   *dexscreener.Source
	ledger   tradeLedger
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}

// connectStores opens Postgres and Redis when configured. A configured store that cannot be
// reached is a startup error: silently dropping a blacklist source would weaken screening.
func (c *components) connectStores() error {
	if c.cfg.Database.DSN != "" {
		db, err := repository.NewDB(c.cfg)
		if err != nil {
			return err
		}
		c.db = db
		c.riskRepo = repository.NewPostgresRiskRepo(db)
		c.alertPG = repository.NewPostgresAlertRepo(db)
		logger.Info("Connected to PostgreSQL")
	}
	if c.cfg.Redis.Addr != "" {
		rdb, err := repository.NewRedisClient(c.cfg)
		if err != nil {
			return err
		}
		c.rdb = rdb
		logger.Info("Connected to Redis")
	}
	return nil
}

func (c *components) riskSources() (*service.MergedRiskSource, error) {
	static, err := service.ConfiguredRiskData(c.cfg.Security)
	if err != nil {
		return nil, err
	}
	sources := []service.NamedRiskSource{{Name: "config", Source: service.StaticRiskSource{Data: static}}}
	if c.riskRepo != nil {
		sources = append(sources, service.NamedRiskSource{Name: "postgres", Source: c.riskRepo})
	}
	if c.rdb != nil {
		sources = append(sources, service.NamedRiskSource{Name: "redis", Source: repository.NewRedisRiskRepo(c.rdb, c.cfg.Redis)})
	}
	return service.NewMergedRiskSource(sources...), nil
}

func (c *components) buildStore(ctx context.Context) error {
	seed, err := service.SeedProfile(c.cfg.Security)
	if err != nil {
		return err
	}
	merged, err := c.riskSources()
	if err != nil {
		return err
	}
	c.store = service.NewRiskProfileStore(seed, merged, merged.Name(), c.cfg.Security.LoadTimeout)
	if _, err := c.store.Refresh(ctx); err != nil {
		logger.Warn("Initial risk profile load failed, serving configured profile", "error", err)
	}
	return nil
}

func (c *components) buildAlerts() error {
	var repo service.AlertRepo
	switch {
	case c.alertPG != nil:
		repo = c.alertPG
	case c.rdb != nil:
		repo = repository.NewRedisAlertRepo(c.rdb, c.cfg.Redis.AlertListKey, c.cfg.Redis.AlertListMax)
	}
	alerts, err := service.NewAlertService(c.cfg.Log.Alerts, repo)
	if err != nil {
		return err
	}
	c.alerts = alerts
	return nil
}

func (c *components) buildLedger() error {
	if c.db == nil {
		c.ledger = service.NewMemoryLedger(1000)
		return nil
	}
	gdb, err := repository.NewGormDB(c.db)
	if err != nil {
		return err
	}
	ledger, err := repository.NewGormLedger(gdb)
	if err != nil {
		return err
	}
	c.ledger = ledger
	return nil
}

func (c *components) buildEngine() (*service.ScreeningEngine, error) {
	var enrichers []service.MetricsEnricher
	if c.cfg.DataSource.DexScreener.Enabled {
		client := datasource.NewClient("dexscreener", c.cfg.DataSource.DexScreener, nil)
		c.market = dexscreener.New(client)
		enrichers = append(enrichers, c.market)
	}

	verifiers := service.NewChainVerifiers()
	var gp *goplus.Source
	if c.cfg.DataSource.GoPlus.Enabled {
		chainIDs := make(map[model.ChainID]string)
		for _, ch := range c.cfg.Monitoring.Chains {
			if ch.GoPlusChainID != "" {
				chainIDs[model.NormalizeChain(ch.ID)] = ch.GoPlusChainID
			}
		}
		client := datasource.NewClient("goplus", c.cfg.DataSource.GoPlus, nil)
		gp = goplus.New(client, chainIDs, c.cfg.Security.TopHolders, c.cfg.DataSource.GoPlus.CacheTTL)
		enrichers = append(enrichers, gp)
	}
	vc := c.cfg.Security.Verifier
	for _, ch := range c.cfg.Monitoring.Chains {
		id := model.NormalizeChain(ch.ID)
		if ch.RPCURL != "" {
			verifiers.Register(id, chain.NewEVMVerifier(id, ch.RPCURL, vc.CacheTTL, vc.Timeout, vc.Retries))
		}
		if gp != nil && gp.Supports(id) {
			verifiers.Register(id, gp)
		}
	}

	scorer, err := quality.NewScorer(c.cfg.Quality)
	if err != nil {
		return nil, fmt.Errorf("quality model: %w", err)
	}

	c.engine = service.NewScreeningEngine(
		service.WithEnrichers(enrichers...),
		service.WithVerifier(verifiers),
		service.WithQualityScorer(scorer),
		service.WithEnrichTimeout(c.cfg.Security.EnrichTimeout),
		service.AllowUnverifiedContracts(c.cfg.Security.AllowUnverifiedContracts),
	)
	return c.engine, nil
}

// tokenLookup keeps the interface nil when DexScreener is disabled.
func (c *components) tokenLookup() service.TokenLookup {
	if c.market == nil {
		return nil
	}
	return c.market
}

func (c *components) pruneAlerts(ctx context.Context) {
	if c.alertPG == nil || c.cfg.Log.AlertRetention <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.alertPG.Cleanup(ctx, c.cfg.Log.AlertRetention); err != nil {
		logger.Warn("Alert cleanup failed", "error", err)
	}
}

func (c *components) Close() error {
	var errs []error
	if c.alerts != nil {
		c.alerts.Close()
	}
	if c.rdb != nil {
		errs = append(errs, c.rdb.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}
