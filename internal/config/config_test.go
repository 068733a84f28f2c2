package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dexgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
trading:
  enabled: false
  executor_timeout: 12s
security:
  min_liquidity: 50000
  blacklisted_tokens: ["ethereum:0xabc"]
monitoring:
  chains:
    - id: ethereum
      rpc_url: http://localhost:8545
      goplus_chain_id: "1"
    - id: bsc
      interval: 60s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Trading.Enabled)
	assert.Equal(t, 12*time.Second, cfg.Trading.ExecutorTimeout)
	assert.Equal(t, 50000.0, cfg.Security.MinLiquidity)
	assert.Equal(t, []string{"ethereum:0xabc"}, cfg.Security.BlacklistedTokens)
	assert.Equal(t, 6*time.Hour, cfg.Security.BlacklistUpdateInterval)
	assert.Equal(t, 300*time.Second, cfg.Monitoring.Interval)
	require.Len(t, cfg.Monitoring.Chains, 2)

	eth, ok := cfg.Chain("ETHEREUM")
	require.True(t, ok)
	assert.Equal(t, 300*time.Second, cfg.PollInterval(eth))
	bsc, _ := cfg.Chain("bsc")
	assert.Equal(t, 60*time.Second, cfg.PollInterval(bsc))
}

func TestValidateRejectsDuplicateChains(t *testing.T) {
	cfg := &Config{
		Trading:    TradingConfig{ExecutorTimeout: time.Second},
		Monitoring: MonitoringConfig{Interval: time.Minute, Chains: []ChainConfig{{ID: "bsc"}, {ID: "BSC"}}},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedBackoff(t *testing.T) {
	cfg := &Config{
		Trading: TradingConfig{ExecutorTimeout: time.Second},
		Monitoring: MonitoringConfig{
			Interval:       time.Minute,
			BackoffBase:    time.Minute,
			BackoffCeiling: time.Second,
		},
	}
	assert.Error(t, cfg.Validate())
}
