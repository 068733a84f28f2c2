package quality

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoPolymarket/dexgate/internal/config"
	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func organic() model.TokenMetrics {
	return model.TokenMetrics{
		LiquidityUSD: model.Dec(100_000),
		Volume24hUSD: model.Dec(150_000),
		Txns:         &model.TradeCounts{M5: 15, H1: 230, H6: 1140, H24: 4800, Buys24h: 2500, Sells24h: 2300},
	}
}

func washTraded() model.TokenMetrics {
	return model.TokenMetrics{
		LiquidityUSD: model.Dec(30_000),
		Volume24hUSD: model.Dec(3_000_000),
		Txns:         &model.TradeCounts{M5: 300, H1: 50, H6: 60, H24: 240, Buys24h: 235, Sells24h: 5},
	}
}

func testConfig() config.QualityConfig {
	return config.QualityConfig{Trees: 100, SampleSize: 256, Seed: 42}
}

func TestScorerSeparatesOrganicFromWashTrading(t *testing.T) {
	s, err := NewScorer(testConfig())
	require.NoError(t, err)

	good, err := s.QualityScore(organic())
	require.NoError(t, err)
	bad, err := s.QualityScore(washTraded())
	require.NoError(t, err)

	assert.Greater(t, good, bad+0.1)
	for _, v := range []float64{good, bad} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestScorerIsDeterministicForSeed(t *testing.T) {
	a, err := NewScorer(testConfig())
	require.NoError(t, err)
	b, err := NewScorer(testConfig())
	require.NoError(t, err)

	sa, _ := a.QualityScore(organic())
	sb, _ := b.QualityScore(organic())
	assert.Equal(t, sa, sb)
}

func TestFeaturesRequireKnownMetrics(t *testing.T) {
	m := organic()
	m.Txns = nil
	_, err := Features(m)
	assert.ErrorIs(t, err, ErrInsufficientData)

	m = organic()
	m.LiquidityUSD = model.Dec(0)
	_, err = Features(m)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestFeaturesSteadyFlow(t *testing.T) {
	x, err := Features(model.TokenMetrics{
		LiquidityUSD: model.Dec(100),
		Volume24hUSD: model.Dec(100),
		Txns:         &model.TradeCounts{M5: 1, H1: 12, H6: 72, H24: 288, Buys24h: 144, Sells24h: 144},
	})
	require.NoError(t, err)
	require.Len(t, x, Dimensions)
	assert.InDelta(t, 0.6931, x[0], 1e-3)
	assert.InDelta(t, 0, x[1], 1e-9)
	assert.InDelta(t, 0, x[2], 1e-9)
}

func TestScorerLoadsBaselineFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	raw, err := json.Marshal(SyntheticBaseline(200, 7))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	cfg := testConfig()
	cfg.BaselinePath = path
	s, err := NewScorer(cfg)
	require.NoError(t, err)
	_, err = s.QualityScore(organic())
	assert.NoError(t, err)
}

func TestTrainRejectsTinyBaseline(t *testing.T) {
	_, err := Train([][]float64{{1, 2, 3}}, 10, 10, 1)
	assert.Error(t, err)
}
