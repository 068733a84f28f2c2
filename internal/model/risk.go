package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Thresholds are the mutable screening limits. All bounds are inclusive.
type Thresholds struct {
	MinLiquidity          decimal.Decimal `json:"min_liquidity"`
	MinVolumeQualityScore float64         `json:"min_volume_quality_score"`
	MaxBundledSupplyPct   decimal.Decimal `json:"max_bundled_supply_pct"`
}

// RiskProfileData is what a RiskProfileSource returns. Thresholds is nil when the source
// does not carry thresholds.
type RiskProfileData struct {
	Tokens     []TokenID
	Devs       []string
	Thresholds *Thresholds
}

// RiskProfile is an immutable snapshot of blacklists and thresholds.
// It is published whole and never mutated after construction.
type RiskProfile struct {
	tokens     map[TokenID]struct{}
	devs       map[string]struct{}
	Thresholds Thresholds
	LoadedAt   time.Time
	Source     string
}

func NewRiskProfile(data RiskProfileData, thresholds Thresholds, source string, loadedAt time.Time) *RiskProfile {
	p := &RiskProfile{
		tokens:     make(map[TokenID]struct{}, len(data.Tokens)),
		devs:       make(map[string]struct{}, len(data.Devs)),
		Thresholds: thresholds,
		LoadedAt:   loadedAt,
		Source:     source,
	}
	for _, id := range data.Tokens {
		id = NewTokenID(string(id.Chain), id.Address)
		if id.Valid() {
			p.tokens[id] = struct{}{}
		}
	}
	for _, dev := range data.Devs {
		if dev = NormalizeAddress(dev); dev != "" {
			p.devs[dev] = struct{}{}
		}
	}
	if data.Thresholds != nil {
		p.Thresholds = *data.Thresholds
	}
	return p
}

func (p *RiskProfile) TokenBlacklisted(id TokenID) bool {
	_, ok := p.tokens[id]
	return ok
}

func (p *RiskProfile) DevBlacklisted(addr string) bool {
	_, ok := p.devs[NormalizeAddress(addr)]
	return ok
}

// Tokens returns a sorted copy of the token blacklist.
func (p *RiskProfile) Tokens() []TokenID {
	out := make([]TokenID, 0, len(p.tokens))
	for id := range p.tokens {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Devs returns a sorted copy of the deployer blacklist.
func (p *RiskProfile) Devs() []string {
	out := make([]string, 0, len(p.devs))
	for d := range p.devs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

type RiskProfileSummary struct {
	BlacklistedTokens []TokenID  `json:"blacklisted_tokens"`
	BlacklistedDevs   []string   `json:"blacklisted_devs"`
	Thresholds        Thresholds `json:"thresholds"`
	LoadedAt          time.Time  `json:"loaded_at"`
	Source            string     `json:"source"`
}

func (p *RiskProfile) Summary() RiskProfileSummary {
	return RiskProfileSummary{
		BlacklistedTokens: p.Tokens(),
		BlacklistedDevs:   p.Devs(),
		Thresholds:        p.Thresholds,
		LoadedAt:          p.LoadedAt,
		Source:            p.Source,
	}
}

// ContractReport is the opaque privileged-capability signal from a contract verifier.
type ContractReport struct {
	Owner                 string `json:"owner,omitempty"`
	Renounced             bool   `json:"renounced"`
	Mintable              bool   `json:"mintable"`
	OwnershipTransferable bool   `json:"ownership_transferable"`
	Source                string `json:"source"`
}

// Privileged reports an unrestricted mint or ownership-transfer capability held by a live owner.
func (r ContractReport) Privileged() bool {
	return !r.Renounced && (r.Mintable || r.OwnershipTransferable)
}
