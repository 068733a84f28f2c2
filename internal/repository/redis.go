package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/GoPolymarket/dexgate/internal/config"
	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// RedisRiskRepo reads blacklists from two sets ("chain:address" members and deployer
// addresses) and thresholds from a hash.
type RedisRiskRepo struct {
	client        redis.UniversalClient
	tokensKey     string
	devsKey       string
	thresholdsKey string
}

func NewRedisRiskRepo(client redis.UniversalClient, cfg config.RedisConfig) *RedisRiskRepo {
	return &RedisRiskRepo{
		client:        client,
		tokensKey:     cfg.BlacklistTokensKey,
		devsKey:       cfg.BlacklistDevsKey,
		thresholdsKey: cfg.ThresholdsKey,
	}
}

func (r *RedisRiskRepo) Snapshot(ctx context.Context) (model.RiskProfileData, error) {
	var data model.RiskProfileData

	pipe := r.client.Pipeline()
	tokensCmd := pipe.SMembers(ctx, r.tokensKey)
	devsCmd := pipe.SMembers(ctx, r.devsKey)
	thCmd := pipe.HGetAll(ctx, r.thresholdsKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return data, fmt.Errorf("redis risk snapshot: %w", err)
	}

	for _, raw := range tokensCmd.Val() {
		id, err := model.ParseTokenID(raw)
		if err != nil {
			logger.Warn("Skipping malformed blacklist entry", "key", r.tokensKey, "entry", raw)
			continue
		}
		data.Tokens = append(data.Tokens, id)
	}
	data.Devs = devsCmd.Val()

	th, err := parseThresholds(thCmd.Val())
	if err != nil {
		return data, fmt.Errorf("redis thresholds %s: %w", r.thresholdsKey, err)
	}
	data.Thresholds = th
	return data, nil
}

func parseThresholds(fields map[string]string) (*model.Thresholds, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	minLiq, err := decimal.NewFromString(fields["min_liquidity"])
	if err != nil {
		return nil, fmt.Errorf("min_liquidity: %w", err)
	}
	minScore, err := strconv.ParseFloat(fields["min_volume_quality_score"], 64)
	if err != nil {
		return nil, fmt.Errorf("min_volume_quality_score: %w", err)
	}
	maxPct, err := decimal.NewFromString(fields["max_bundled_supply_pct"])
	if err != nil {
		return nil, fmt.Errorf("max_bundled_supply_pct: %w", err)
	}
	return &model.Thresholds{
		MinLiquidity:          minLiq,
		MinVolumeQualityScore: minScore,
		MaxBundledSupplyPct:   maxPct,
	}, nil
}
