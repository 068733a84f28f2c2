package dexscreener

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/GoPolymarket/dexgate/internal/datasource"
	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/shopspring/decimal"
)

// maxBatch is the address limit of the /tokens/v1 endpoint.
const maxBatch = 30

// listingScope is the breaker scope of the chain-agnostic listing endpoints. Pair lookups
// use the chain id as their scope.
const listingScope = "listings"

type listing struct {
	ChainID      string `json:"chainId"`
	TokenAddress string `json:"tokenAddress"`
}

type pair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	Txns      map[string]txnCount `json:"txns"`
	Volume    map[string]float64  `json:"volume"`
	Liquidity *struct {
		USD *float64 `json:"usd"`
	} `json:"liquidity"`
}

type txnCount struct {
	Buys  int64 `json:"buys"`
	Sells int64 `json:"sells"`
}

// Source lists fresh tokens from DexScreener and aggregates their pair metrics.
type Source struct {
	client *datasource.Client
	log    *slog.Logger
}

func New(client *datasource.Client) *Source {
	return &Source{client: client, log: logger.Component("dexscreener")}
}

// FetchCandidates returns the chain's latest profiled and boosted tokens with metrics.
// Tokens without any trading pair are skipped.
func (s *Source) FetchCandidates(ctx context.Context, chain model.ChainID) ([]model.Token, error) {
	var profiles, boosts []listing
	profErr := s.client.GetJSON(ctx, listingScope, "/token-profiles/latest/v1", nil, &profiles)
	boostErr := s.client.GetJSON(ctx, listingScope, "/token-boosts/latest/v1", nil, &boosts)
	if profErr != nil && boostErr != nil {
		return nil, apperrors.NewSourceUnavailable("dexscreener listings unavailable", errors.Join(profErr, boostErr))
	}
	if err := errors.Join(profErr, boostErr); err != nil {
		s.log.Warn("Partial listing fetch", "chain", string(chain), "error", err)
	}

	seen := make(map[string]bool)
	var addrs []string
	for _, l := range append(profiles, boosts...) {
		if model.NormalizeChain(l.ChainID) != chain {
			continue
		}
		addr := model.NormalizeAddress(l.TokenAddress)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		addrs = append(addrs, addr)
	}
	if len(addrs) == 0 {
		return nil, nil
	}
	return s.tokens(ctx, chain, addrs)
}

func (s *Source) LookupToken(ctx context.Context, id model.TokenID) (model.Token, error) {
	tokens, err := s.tokens(ctx, id.Chain, []string{id.Address})
	if err != nil {
		return model.Token{}, err
	}
	if len(tokens) == 0 {
		return model.Token{}, apperrors.New(apperrors.ErrNotFound, "no trading pairs for "+id.String(), nil)
	}
	return tokens[0], nil
}

func (s *Source) Name() string { return "dexscreener" }

func (s *Source) Provides() []model.Metric {
	return []model.Metric{model.MetricLiquidity, model.MetricVolume, model.MetricTxns}
}

// Enrich replaces market metrics with a live read.
func (s *Source) Enrich(ctx context.Context, token model.Token) (model.Token, error) {
	fresh, err := s.LookupToken(ctx, token.ID)
	if err != nil {
		return token, err
	}
	token.Metrics.LiquidityUSD = fresh.Metrics.LiquidityUSD
	token.Metrics.Volume24hUSD = fresh.Metrics.Volume24hUSD
	token.Metrics.Txns = fresh.Metrics.Txns
	if token.Symbol == "" {
		token.Symbol = fresh.Symbol
	}
	token.ObservedAt = fresh.ObservedAt
	return token, nil
}

func (s *Source) tokens(ctx context.Context, chain model.ChainID, addrs []string) ([]model.Token, error) {
	var out []model.Token
	for start := 0; start < len(addrs); start += maxBatch {
		end := min(start+maxBatch, len(addrs))
		batch := addrs[start:end]

		var pairs []pair
		path := "/tokens/v1/" + url.PathEscape(string(chain)) + "/" + strings.Join(batch, ",")
		if err := s.client.GetJSON(ctx, string(chain), path, nil, &pairs); err != nil {
			if errors.Is(err, datasource.ErrNotFound) {
				continue
			}
			return nil, apperrors.NewSourceUnavailable("dexscreener pairs unavailable", err)
		}
		out = append(out, aggregate(chain, batch, pairs)...)
	}
	return out, nil
}

// aggregate sums liquidity, volume and trade counts across every pair whose base token is
// one of the requested addresses.
func aggregate(chain model.ChainID, addrs []string, pairs []pair) []model.Token {
	type acc struct {
		symbol    string
		liquidity decimal.Decimal
		hasLiq    bool
		volume    decimal.Decimal
		hasVol    bool
		txns      model.TradeCounts
		hasTxns   bool
	}
	byAddr := make(map[string]*acc, len(addrs))
	for _, a := range addrs {
		byAddr[a] = &acc{}
	}

	for _, p := range pairs {
		if model.NormalizeChain(p.ChainID) != chain {
			continue
		}
		a, ok := byAddr[model.NormalizeAddress(p.BaseToken.Address)]
		if !ok {
			continue
		}
		if a.symbol == "" {
			a.symbol = p.BaseToken.Symbol
		}
		if p.Liquidity != nil && p.Liquidity.USD != nil {
			a.liquidity = a.liquidity.Add(decimal.NewFromFloat(*p.Liquidity.USD))
			a.hasLiq = true
		}
		if v, ok := p.Volume["h24"]; ok {
			a.volume = a.volume.Add(decimal.NewFromFloat(v))
			a.hasVol = true
		}
		if len(p.Txns) > 0 {
			a.hasTxns = true
			a.txns.M5 += p.Txns["m5"].Buys + p.Txns["m5"].Sells
			a.txns.H1 += p.Txns["h1"].Buys + p.Txns["h1"].Sells
			a.txns.H6 += p.Txns["h6"].Buys + p.Txns["h6"].Sells
			a.txns.H24 += p.Txns["h24"].Buys + p.Txns["h24"].Sells
			a.txns.Buys24h += p.Txns["h24"].Buys
			a.txns.Sells24h += p.Txns["h24"].Sells
		}
	}

	now := time.Now().UTC()
	out := make([]model.Token, 0, len(addrs))
	for _, addr := range addrs {
		a := byAddr[addr]
		if !a.hasLiq && !a.hasVol && !a.hasTxns {
			continue
		}
		t := model.Token{
			ID:         model.TokenID{Chain: chain, Address: addr},
			Symbol:     a.symbol,
			ObservedAt: now,
		}
		if a.hasLiq {
			liq := a.liquidity
			t.Metrics.LiquidityUSD = &liq
		}
		if a.hasVol {
			vol := a.volume
			t.Metrics.Volume24hUSD = &vol
		}
		if a.hasTxns {
			tx := a.txns
			t.Metrics.Txns = &tx
		}
		out = append(out, t)
	}
	return out
}
