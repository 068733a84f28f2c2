package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Security   SecurityConfig   `mapstructure:"security"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	DataSource DataSourceConfig `mapstructure:"datasource"`
	Quality    QualityConfig    `mapstructure:"quality"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port           string  `mapstructure:"port"`
	RateLimitQPS   float64 `mapstructure:"rate_limit_qps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type LogConfig struct {
	Level          string        `mapstructure:"level"`
	Alerts         string        `mapstructure:"alerts_dir"` // JSONL alert journal; empty disables
	AlertRetention time.Duration `mapstructure:"alert_retention"`
}

type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr               string `mapstructure:"addr"`
	Password           string `mapstructure:"password"`
	DB                 int    `mapstructure:"db"`
	BlacklistTokensKey string `mapstructure:"blacklist_tokens_key"`
	BlacklistDevsKey   string `mapstructure:"blacklist_devs_key"`
	ThresholdsKey      string `mapstructure:"thresholds_key"`
	AlertListKey       string `mapstructure:"alert_list_key"`
	AlertListMax       int    `mapstructure:"alert_list_max"`
}

type TradingConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxTradeSize    float64       `mapstructure:"max_trade_size"`  // e.g. 5.0 (native units)
	Slippage        float64       `mapstructure:"slippage"`        // percent, e.g. 1.5
	AutoBuyAmount   float64       `mapstructure:"auto_buy_amount"` // 0 = watch-only
	ExecutorTimeout time.Duration `mapstructure:"executor_timeout"`
	LookupTimeout   time.Duration `mapstructure:"lookup_timeout"`
	ManualQueue     int           `mapstructure:"manual_queue"`
	WalletAddress   string        `mapstructure:"wallet_address"` // sender used for nonce reservation
}

type SecurityConfig struct {
	MinLiquidity             float64        `mapstructure:"min_liquidity"`
	MinVolumeQualityScore    float64        `mapstructure:"min_volume_quality_score"`
	MaxBundledSupplyPct      float64        `mapstructure:"max_bundled_supply_pct"`
	TopHolders               int            `mapstructure:"top_holders"`
	BlacklistedTokens        []string       `mapstructure:"blacklisted_tokens"` // "chain:address"
	BlacklistedDevs          []string       `mapstructure:"blacklisted_devs"`
	BlacklistUpdateInterval  time.Duration  `mapstructure:"blacklist_update_interval"`
	LoadTimeout              time.Duration  `mapstructure:"load_timeout"`
	EnrichTimeout            time.Duration  `mapstructure:"enrich_timeout"`
	AllowUnverifiedContracts bool           `mapstructure:"allow_unverified_contracts"`
	Verifier                 VerifierConfig `mapstructure:"verifier"`
}

type VerifierConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retries  int           `mapstructure:"retries"`
}

type MonitoringConfig struct {
	Chains         []ChainConfig `mapstructure:"chains"`
	Interval       time.Duration `mapstructure:"interval"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffCeiling time.Duration `mapstructure:"backoff_ceiling"`
	RestartDelay   time.Duration `mapstructure:"restart_delay"`
	Supervision    string        `mapstructure:"supervision"` // restart | propagate
}

type ChainConfig struct {
	ID            string        `mapstructure:"id"`             // dexscreener chain id, e.g. "ethereum"
	Interval      time.Duration `mapstructure:"interval"`       // overrides monitoring.interval
	RPCURL        string        `mapstructure:"rpc_url"`        // EVM JSON-RPC for contract inspection
	GoPlusChainID string        `mapstructure:"goplus_chain_id"` // e.g. "1", "56"
}

type DataSourceConfig struct {
	DexScreener HTTPSourceConfig `mapstructure:"dexscreener"`
	GoPlus      HTTPSourceConfig `mapstructure:"goplus"`
}

type HTTPSourceConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BaseURL         string        `mapstructure:"base_url"`
	QPS             float64       `mapstructure:"qps"`
	Burst           int           `mapstructure:"burst"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

type QualityConfig struct {
	Trees        int    `mapstructure:"trees"`
	SampleSize   int    `mapstructure:"sample_size"`
	Seed         uint64 `mapstructure:"seed"`
	BaselinePath string `mapstructure:"baseline_path"` // JSON array of legitimate token metrics
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads config.yaml (or the explicit path) plus DEXGATE_* environment overrides.
func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
	}

	// e.g. DEXGATE_TRADING_ENABLED=false
	viper.SetEnvPrefix("dexgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.Info("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.rate_limit_qps", 20)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.alerts_dir", "./logs")
	v.SetDefault("log.alert_retention", "720h")

	v.SetDefault("redis.blacklist_tokens_key", "dexgate:blacklist:tokens")
	v.SetDefault("redis.blacklist_devs_key", "dexgate:blacklist:devs")
	v.SetDefault("redis.thresholds_key", "dexgate:thresholds")
	v.SetDefault("redis.alert_list_key", "dexgate:alerts")
	v.SetDefault("redis.alert_list_max", 10000)

	v.SetDefault("trading.enabled", true)
	v.SetDefault("trading.max_trade_size", 5.0)
	v.SetDefault("trading.slippage", 1.5)
	v.SetDefault("trading.auto_buy_amount", 0)
	v.SetDefault("trading.executor_timeout", "30s")
	v.SetDefault("trading.lookup_timeout", "5s")
	v.SetDefault("trading.manual_queue", 64)

	v.SetDefault("security.min_liquidity", 25000)
	v.SetDefault("security.min_volume_quality_score", 0.35)
	v.SetDefault("security.max_bundled_supply_pct", 30)
	v.SetDefault("security.top_holders", 10)
	v.SetDefault("security.blacklist_update_interval", "6h")
	v.SetDefault("security.load_timeout", "10s")
	v.SetDefault("security.enrich_timeout", "5s")
	v.SetDefault("security.verifier.cache_ttl", "10m")
	v.SetDefault("security.verifier.timeout", "5s")
	v.SetDefault("security.verifier.retries", 1)

	v.SetDefault("monitoring.interval", "300s")
	v.SetDefault("monitoring.fetch_timeout", "20s")
	v.SetDefault("monitoring.backoff_base", "5s")
	v.SetDefault("monitoring.backoff_ceiling", "5m")
	v.SetDefault("monitoring.restart_delay", "10s")
	v.SetDefault("monitoring.supervision", "restart")

	v.SetDefault("datasource.dexscreener.enabled", true)
	v.SetDefault("datasource.dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("datasource.dexscreener.qps", 4)
	v.SetDefault("datasource.dexscreener.burst", 4)
	v.SetDefault("datasource.dexscreener.timeout", "10s")
	v.SetDefault("datasource.dexscreener.breaker_failures", 5)
	v.SetDefault("datasource.dexscreener.breaker_cooldown", "60s")
	v.SetDefault("datasource.goplus.enabled", true)
	v.SetDefault("datasource.goplus.base_url", "https://api.gopluslabs.io")
	v.SetDefault("datasource.goplus.qps", 1)
	v.SetDefault("datasource.goplus.burst", 2)
	v.SetDefault("datasource.goplus.timeout", "10s")
	v.SetDefault("datasource.goplus.breaker_failures", 5)
	v.SetDefault("datasource.goplus.breaker_cooldown", "60s")
	v.SetDefault("datasource.goplus.cache_ttl", "2m")

	v.SetDefault("quality.trees", 100)
	v.SetDefault("quality.sample_size", 256)
	v.SetDefault("quality.seed", 42)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate rejects configurations that would let the pipeline run unbounded.
func (c *Config) Validate() error {
	if c.Trading.ExecutorTimeout <= 0 {
		return fmt.Errorf("trading.executor_timeout must be positive")
	}
	if c.Monitoring.Interval <= 0 {
		return fmt.Errorf("monitoring.interval must be positive")
	}
	if c.Monitoring.BackoffCeiling < c.Monitoring.BackoffBase {
		return fmt.Errorf("monitoring.backoff_ceiling must be >= monitoring.backoff_base")
	}
	if c.Security.MinLiquidity < 0 || c.Security.MaxBundledSupplyPct < 0 {
		return fmt.Errorf("security thresholds must not be negative")
	}
	seen := make(map[string]bool, len(c.Monitoring.Chains))
	for _, ch := range c.Monitoring.Chains {
		id := strings.ToLower(strings.TrimSpace(ch.ID))
		if id == "" {
			return fmt.Errorf("monitoring.chains: chain id is required")
		}
		if seen[id] {
			return fmt.Errorf("monitoring.chains: duplicate chain %q", id)
		}
		seen[id] = true
	}
	return nil
}

// PollInterval returns the chain's own interval or the global default.
func (c *Config) PollInterval(ch ChainConfig) time.Duration {
	if ch.Interval > 0 {
		return ch.Interval
	}
	return c.Monitoring.Interval
}

func (c *Config) Chain(id string) (ChainConfig, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, ch := range c.Monitoring.Chains {
		if strings.ToLower(strings.TrimSpace(ch.ID)) == id {
			return ch, true
		}
	}
	return ChainConfig{}, false
}
