package goplus

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/dexgate/internal/datasource"
	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/shopspring/decimal"
)

type response struct {
	Code    int                      `json:"code"`
	Message string                   `json:"message"`
	Result  map[string]tokenSecurity `json:"result"`
}

type tokenSecurity struct {
	CreatorAddress       string   `json:"creator_address"`
	OwnerAddress         string   `json:"owner_address"`
	IsMintable           string   `json:"is_mintable"`
	CanTakeBackOwnership string   `json:"can_take_back_ownership"`
	HiddenOwner          string   `json:"hidden_owner"`
	Holders              []holder `json:"holders"`
}

type holder struct {
	Address  string `json:"address"`
	Percent  string `json:"percent"`
	IsLocked int    `json:"is_locked"`
}

type cacheEntry struct {
	sec     tokenSecurity
	expires time.Time
}

// Source reads GoPlus token security. It enriches tokens with holder concentration and
// deployer, and doubles as a contract verifier.
type Source struct {
	client     *datasource.Client
	chainIDs   map[model.ChainID]string
	topHolders int
	cacheTTL   time.Duration

	mu    sync.Mutex
	cache map[model.TokenID]cacheEntry
}

func New(client *datasource.Client, chainIDs map[model.ChainID]string, topHolders int, cacheTTL time.Duration) *Source {
	if topHolders <= 0 {
		topHolders = 10
	}
	return &Source{
		client:     client,
		chainIDs:   chainIDs,
		topHolders: topHolders,
		cacheTTL:   cacheTTL,
		cache:      make(map[model.TokenID]cacheEntry),
	}
}

func (s *Source) Name() string { return "goplus" }

func (s *Source) Provides() []model.Metric {
	return []model.Metric{model.MetricTopHolders, model.MetricDeployer}
}

func (s *Source) Supports(chain model.ChainID) bool {
	_, ok := s.chainIDs[chain]
	return ok
}

// Enrich sets TopHolderPct to the share of supply held by the top-N unlocked holders.
func (s *Source) Enrich(ctx context.Context, token model.Token) (model.Token, error) {
	sec, err := s.security(ctx, token.ID)
	if err != nil {
		return token, err
	}
	if len(sec.Holders) == 0 {
		return token, fmt.Errorf("goplus: no holder data for %s", token.ID)
	}

	var percents []decimal.Decimal
	for _, h := range sec.Holders {
		if h.IsLocked == 1 {
			continue
		}
		p, err := decimal.NewFromString(h.Percent)
		if err != nil {
			return token, fmt.Errorf("goplus: holder percent %q: %w", h.Percent, err)
		}
		percents = append(percents, p)
	}
	sort.Slice(percents, func(i, j int) bool { return percents[i].GreaterThan(percents[j]) })
	total := decimal.Zero
	for i := 0; i < len(percents) && i < s.topHolders; i++ {
		total = total.Add(percents[i])
	}
	pct := total.Mul(decimal.NewFromInt(100)).Round(4)
	token.Metrics.TopHolderPct = &pct
	if creator := model.NormalizeAddress(sec.CreatorAddress); creator != "" {
		token.Deployer = creator
	}
	return token, nil
}

func (s *Source) Inspect(ctx context.Context, id model.TokenID) (model.ContractReport, error) {
	sec, err := s.security(ctx, id)
	if err != nil {
		return model.ContractReport{}, err
	}
	owner := model.NormalizeAddress(sec.OwnerAddress)
	hidden := sec.HiddenOwner == "1"
	return model.ContractReport{
		Owner:                 owner,
		Renounced:             !hidden && renounced(owner),
		Mintable:              sec.IsMintable == "1",
		OwnershipTransferable: sec.CanTakeBackOwnership == "1" || hidden,
		Source:                "goplus",
	}, nil
}

func renounced(owner string) bool {
	if owner == "" {
		return true
	}
	trimmed := strings.TrimLeft(strings.TrimPrefix(owner, "0x"), "0")
	return trimmed == "" || strings.EqualFold(owner, "0x000000000000000000000000000000000000dead")
}

func (s *Source) security(ctx context.Context, id model.TokenID) (tokenSecurity, error) {
	chainID, ok := s.chainIDs[id.Chain]
	if !ok {
		return tokenSecurity{}, fmt.Errorf("goplus: chain %s not supported", id.Chain)
	}
	if sec, ok := s.cacheGet(id); ok {
		return sec, nil
	}

	var resp response
	q := url.Values{"contract_addresses": {id.Address}}
	if err := s.client.GetJSON(ctx, string(id.Chain), "/api/v1/token_security/"+url.PathEscape(chainID), q, &resp); err != nil {
		return tokenSecurity{}, apperrors.NewSourceUnavailable("goplus token security unavailable", err)
	}
	if resp.Code != 1 {
		return tokenSecurity{}, fmt.Errorf("goplus: code %d: %s", resp.Code, resp.Message)
	}
	for addr, sec := range resp.Result {
		if model.NormalizeAddress(addr) == id.Address {
			s.cacheSet(id, sec)
			return sec, nil
		}
	}
	return tokenSecurity{}, fmt.Errorf("goplus: no security data for %s", id)
}

func (s *Source) cacheGet(id model.TokenID) (tokenSecurity, bool) {
	if s.cacheTTL <= 0 {
		return tokenSecurity{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[id]
	if !ok {
		return tokenSecurity{}, false
	}
	if time.Now().After(entry.expires) {
		delete(s.cache, id)
		return tokenSecurity{}, false
	}
	return entry.sec, true
}

func (s *Source) cacheSet(id model.TokenID, sec tokenSecurity) {
	if s.cacheTTL <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[id] = cacheEntry{sec: sec, expires: time.Now().Add(s.cacheTTL)}
}
