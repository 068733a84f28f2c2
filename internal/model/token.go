package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ChainID names a monitored network using DexScreener's identifiers ("ethereum", "bsc", ...).
type ChainID string

func NormalizeChain(raw string) ChainID {
	return ChainID(strings.ToLower(strings.TrimSpace(raw)))
}

// TokenID is the unique identity of a token: chain plus contract address.
type TokenID struct {
	Chain   ChainID `json:"chain"`
	Address string  `json:"address"`
}

// NewTokenID normalizes chain and address so that IDs compare equal regardless of input casing.
func NewTokenID(chain, address string) TokenID {
	return TokenID{
		Chain:   NormalizeChain(chain),
		Address: NormalizeAddress(address),
	}
}

// NormalizeAddress lower-cases hex addresses. Base58 addresses are case-sensitive and kept as-is.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		return strings.ToLower(addr)
	}
	return addr
}

// ParseTokenID parses "chain:address".
func ParseTokenID(raw string) (TokenID, error) {
	chain, addr, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return TokenID{}, fmt.Errorf("token id %q: expected chain:address", raw)
	}
	id := NewTokenID(chain, addr)
	if !id.Valid() {
		return TokenID{}, fmt.Errorf("token id %q: empty chain or address", raw)
	}
	return id, nil
}

func (id TokenID) Valid() bool {
	return id.Chain != "" && id.Address != ""
}

func (id TokenID) String() string {
	return string(id.Chain) + ":" + id.Address
}

// TradeCounts are DexScreener-style transaction counts over rolling windows.
type TradeCounts struct {
	M5       int64 `json:"m5"`
	H1       int64 `json:"h1"`
	H6       int64 `json:"h6"`
	H24      int64 `json:"h24"`
	Buys24h  int64 `json:"buys_24h"`
	Sells24h int64 `json:"sells_24h"`
}

// Metric names one field of TokenMetrics (plus the deployer) for invalidation.
type Metric string

const (
	MetricLiquidity  Metric = "liquidity"
	MetricVolume     Metric = "volume"
	MetricTxns       Metric = "txns"
	MetricTopHolders Metric = "top_holders"
	MetricDeployer   Metric = "deployer"
)

// TokenMetrics holds observed market data. A nil field means the value is unknown.
type TokenMetrics struct {
	LiquidityUSD *decimal.Decimal `json:"liquidity_usd,omitempty"`
	Volume24hUSD *decimal.Decimal `json:"volume_24h_usd,omitempty"`
	Txns         *TradeCounts     `json:"txns,omitempty"`
	TopHolderPct *decimal.Decimal `json:"top_holder_pct,omitempty"` // percent of supply held by the top-N holders
}

// Merge returns m overlaid with every known field of other.
func (m TokenMetrics) Merge(other TokenMetrics) TokenMetrics {
	if other.LiquidityUSD != nil {
		m.LiquidityUSD = other.LiquidityUSD
	}
	if other.Volume24hUSD != nil {
		m.Volume24hUSD = other.Volume24hUSD
	}
	if other.Txns != nil {
		m.Txns = other.Txns
	}
	if other.TopHolderPct != nil {
		m.TopHolderPct = other.TopHolderPct
	}
	return m
}

// Token is a tradable asset with its most recent observation.
type Token struct {
	ID         TokenID      `json:"id"`
	Symbol     string       `json:"symbol,omitempty"`
	Deployer   string       `json:"deployer,omitempty"`
	Metrics    TokenMetrics `json:"metrics"`
	ObservedAt time.Time    `json:"observed_at"`
}

// Forget marks the given metrics unknown.
func (t Token) Forget(metrics ...Metric) Token {
	for _, m := range metrics {
		switch m {
		case MetricLiquidity:
			t.Metrics.LiquidityUSD = nil
		case MetricVolume:
			t.Metrics.Volume24hUSD = nil
		case MetricTxns:
			t.Metrics.Txns = nil
		case MetricTopHolders:
			t.Metrics.TopHolderPct = nil
		case MetricDeployer:
			t.Deployer = ""
		}
	}
	return t
}

// Fingerprint changes whenever an observed metric changes; pollers use it to detect updates.
func (t Token) Fingerprint() string {
	var b strings.Builder
	b.WriteString(t.ID.String())
	b.WriteString("|")
	b.WriteString(t.Deployer)
	writeDec := func(d *decimal.Decimal) {
		b.WriteString("|")
		if d != nil {
			b.WriteString(d.Round(0).String())
		}
	}
	writeDec(t.Metrics.LiquidityUSD)
	writeDec(t.Metrics.Volume24hUSD)
	writeDec(t.Metrics.TopHolderPct)
	if t.Metrics.Txns != nil {
		fmt.Fprintf(&b, "|%d", t.Metrics.Txns.H24)
	}
	return b.String()
}

// Dec is a small helper for building optional decimal metrics.
func Dec(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}
