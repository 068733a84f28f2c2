package quality

import (
	"errors"
	"math"

	"github.com/GoPolymarket/dexgate/internal/model"
)

// ErrInsufficientData means a required metric is unknown or degenerate.
var ErrInsufficientData = errors.New("quality: insufficient trade data")

const Dimensions = 3

// Features maps market metrics onto the detector's input space:
//
//	[0] log1p(volume24h / liquidity)
//	[1] coefficient of variation of the hourly trade rate across m5/h1/h6/h24 windows
//	[2] |buys - sells| / (buys + sells) over 24h
func Features(m model.TokenMetrics) ([]float64, error) {
	if m.LiquidityUSD == nil || m.Volume24hUSD == nil || m.Txns == nil {
		return nil, ErrInsufficientData
	}
	liq := m.LiquidityUSD.InexactFloat64()
	vol := m.Volume24hUSD.InexactFloat64()
	if liq <= 0 || vol < 0 {
		return nil, ErrInsufficientData
	}
	tx := m.Txns
	if tx.H24 <= 0 || tx.Buys24h+tx.Sells24h <= 0 {
		return nil, ErrInsufficientData
	}

	rates := []float64{
		float64(tx.M5) * 12,
		float64(tx.H1),
		float64(tx.H6) / 6,
		float64(tx.H24) / 24,
	}
	var mean float64
	for _, r := range rates {
		mean += r
	}
	mean /= float64(len(rates))
	var variance float64
	for _, r := range rates {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rates))
	cv := 0.0
	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	}

	buys, sells := float64(tx.Buys24h), float64(tx.Sells24h)
	return []float64{
		math.Log1p(vol / liq),
		cv,
		math.Abs(buys-sells) / (buys + sells),
	}, nil
}
