package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/GoPolymarket/dexgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// MetricsEnricher refreshes part of a token's metrics from a live source. Provides names
// the metrics that become unknown when Enrich fails.
type MetricsEnricher interface {
	Name() string
	Provides() []model.Metric
	Enrich(ctx context.Context, token model.Token) (model.Token, error)
}

type ContractVerifier interface {
	Inspect(ctx context.Context, id model.TokenID) (model.ContractReport, error)
}

type QualityScorer interface {
	QualityScore(m model.TokenMetrics) (float64, error)
}

// Screener is the contract the trade gate depends on.
type Screener interface {
	Evaluate(ctx context.Context, token model.Token, profile *model.RiskProfile) model.ScreeningVerdict
}

// ErrNoVerifier is returned by verifiers that have nothing configured for a chain.
var ErrNoVerifier = errors.New("no contract verifier for chain")

type ScreeningEngine struct {
	enrichers       []MetricsEnricher
	verifier        ContractVerifier
	scorer          QualityScorer
	enrichTimeout   time.Duration
	allowUnverified bool
	log             *slog.Logger
}

type ScreeningOption func(*ScreeningEngine)

func WithEnrichers(e ...MetricsEnricher) ScreeningOption {
	return func(s *ScreeningEngine) { s.enrichers = append(s.enrichers, e...) }
}

func WithVerifier(v ContractVerifier) ScreeningOption {
	return func(s *ScreeningEngine) { s.verifier = v }
}

func WithQualityScorer(q QualityScorer) ScreeningOption {
	return func(s *ScreeningEngine) { s.scorer = q }
}

func WithEnrichTimeout(d time.Duration) ScreeningOption {
	return func(s *ScreeningEngine) { s.enrichTimeout = d }
}

// AllowUnverifiedContracts lets RugPull pass on chains without any verifier.
func AllowUnverifiedContracts(allow bool) ScreeningOption {
	return func(s *ScreeningEngine) { s.allowUnverified = allow }
}

func NewScreeningEngine(opts ...ScreeningOption) *ScreeningEngine {
	s := &ScreeningEngine{
		enrichTimeout: 5 * time.Second,
		log:           logger.Component("screening"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate runs every check against the given snapshot. Checks never short-circuit and any
// unknown input fails the check that needs it.
func (e *ScreeningEngine) Evaluate(ctx context.Context, token model.Token, profile *model.RiskProfile) model.ScreeningVerdict {
	token = e.enrich(ctx, token)

	verdict := model.ScreeningVerdict{
		TokenID:         token.ID,
		ProfileLoadedAt: profile.LoadedAt,
	}

	results := []model.CheckResult{
		e.checkBlacklist(token, profile),
		e.checkRugPull(ctx, token, profile),
		e.checkLiquidity(token, profile),
		e.checkVolumeQuality(token, profile, &verdict),
	}
	verdict.Results = results
	verdict.FailedChecks = []model.CheckKind{}
	for _, r := range results {
		if !r.Passed {
			verdict.FailedChecks = append(verdict.FailedChecks, r.Kind)
			metrics.CheckFailures.WithLabelValues(string(r.Kind)).Inc()
		}
	}
	verdict.Passed = len(verdict.FailedChecks) == 0
	verdict.EvaluatedAt = time.Now().UTC()

	result := "pass"
	if !verdict.Passed {
		result = "fail"
	}
	metrics.VerdictsTotal.WithLabelValues(string(token.ID.Chain), result).Inc()
	e.log.Debug("Token screened", "token", token.ID.String(), "passed", verdict.Passed, "failed_checks", verdict.FailedCheckNames())
	return verdict
}

func (e *ScreeningEngine) enrich(ctx context.Context, token model.Token) model.Token {
	for _, en := range e.enrichers {
		ectx, cancel := context.WithTimeout(ctx, e.enrichTimeout)
		updated, err := en.Enrich(ectx, token)
		cancel()
		if err != nil {
			e.log.Warn("Enrichment failed, metrics marked unknown",
				"enricher", en.Name(), "token", token.ID.String(), "error", err)
			token = token.Forget(en.Provides()...)
			continue
		}
		token = updated
	}
	return token
}

func (e *ScreeningEngine) checkBlacklist(token model.Token, profile *model.RiskProfile) model.CheckResult {
	r := model.CheckResult{Kind: model.CheckBlacklist}
	var reasons []string
	if profile.TokenBlacklisted(token.ID) {
		reasons = append(reasons, "token is blacklisted")
	}
	switch {
	case token.Deployer == "":
		reasons = append(reasons, "deployer unknown")
	case profile.DevBlacklisted(token.Deployer):
		reasons = append(reasons, fmt.Sprintf("deployer %s is blacklisted", token.Deployer))
	}
	r.Passed = len(reasons) == 0
	r.Reason = strings.Join(reasons, "; ")
	return r
}

func (e *ScreeningEngine) checkRugPull(ctx context.Context, token model.Token, profile *model.RiskProfile) model.CheckResult {
	r := model.CheckResult{Kind: model.CheckRugPull}
	var reasons []string

	maxPct := profile.Thresholds.MaxBundledSupplyPct
	switch pct := token.Metrics.TopHolderPct; {
	case pct == nil:
		reasons = append(reasons, "holder distribution unknown")
	case pct.GreaterThan(maxPct):
		reasons = append(reasons, fmt.Sprintf("top holders own %s%% of supply, above %s%%",
			pct.StringFixed(2), maxPct.String()))
	}

	if reason := e.inspectContract(ctx, token.ID); reason != "" {
		reasons = append(reasons, reason)
	}

	r.Passed = len(reasons) == 0
	r.Reason = strings.Join(reasons, "; ")
	return r
}

func (e *ScreeningEngine) inspectContract(ctx context.Context, id model.TokenID) string {
	if e.verifier == nil {
		if e.allowUnverified {
			return ""
		}
		return "contract not verifiable"
	}
	vctx, cancel := context.WithTimeout(ctx, e.enrichTimeout)
	defer cancel()
	report, err := e.verifier.Inspect(vctx, id)
	if err != nil {
		if errors.Is(err, ErrNoVerifier) && e.allowUnverified {
			return ""
		}
		return "contract verification failed: " + err.Error()
	}
	if !report.Privileged() {
		return ""
	}
	var caps []string
	if report.Mintable {
		caps = append(caps, "mint")
	}
	if report.OwnershipTransferable {
		caps = append(caps, "ownership transfer")
	}
	return fmt.Sprintf("owner %s retains %s capability", report.Owner, strings.Join(caps, " and "))
}

func (e *ScreeningEngine) checkLiquidity(token model.Token, profile *model.RiskProfile) model.CheckResult {
	r := model.CheckResult{Kind: model.CheckLiquidity}
	minLiq := profile.Thresholds.MinLiquidity
	switch liq := token.Metrics.LiquidityUSD; {
	case liq == nil:
		r.Reason = "liquidity unknown"
	case liq.LessThan(minLiq):
		r.Reason = fmt.Sprintf("liquidity $%s below minimum $%s", liq.StringFixed(2), minLiq.String())
	default:
		r.Passed = true
	}
	return r
}

func (e *ScreeningEngine) checkVolumeQuality(token model.Token, profile *model.RiskProfile, verdict *model.ScreeningVerdict) model.CheckResult {
	r := model.CheckResult{Kind: model.CheckVolumeQuality}
	if e.scorer == nil {
		r.Reason = "no volume quality model"
		return r
	}
	score, err := e.scorer.QualityScore(token.Metrics)
	if err != nil {
		r.Reason = "volume data unknown: " + err.Error()
		return r
	}
	verdict.QualityScore = &score
	minScore := profile.Thresholds.MinVolumeQualityScore
	if score < minScore {
		r.Reason = fmt.Sprintf("volume quality %s below minimum %s",
			decimal.NewFromFloat(score).StringFixed(3), decimal.NewFromFloat(minScore).String())
		return r
	}
	r.Passed = true
	return r
}

// ChainVerifiers routes Inspect to every verifier registered for the token's chain and
// merges their reports. Any single failure fails the inspection.
type ChainVerifiers struct {
	byChain map[model.ChainID][]ContractVerifier
}

func NewChainVerifiers() *ChainVerifiers {
	return &ChainVerifiers{byChain: make(map[model.ChainID][]ContractVerifier)}
}

func (c *ChainVerifiers) Register(chain model.ChainID, v ContractVerifier) {
	c.byChain[chain] = append(c.byChain[chain], v)
}

func (c *ChainVerifiers) Inspect(ctx context.Context, id model.TokenID) (model.ContractReport, error) {
	verifiers := c.byChain[id.Chain]
	if len(verifiers) == 0 {
		return model.ContractReport{}, fmt.Errorf("%w %s", ErrNoVerifier, id.Chain)
	}
	merged := model.ContractReport{Renounced: true}
	sources := make([]string, 0, len(verifiers))
	for _, v := range verifiers {
		report, err := v.Inspect(ctx, id)
		if err != nil {
			return model.ContractReport{}, err
		}
		merged.Mintable = merged.Mintable || report.Mintable
		merged.OwnershipTransferable = merged.OwnershipTransferable || report.OwnershipTransferable
		merged.Renounced = merged.Renounced && report.Renounced
		if merged.Owner == "" {
			merged.Owner = report.Owner
		}
		sources = append(sources, report.Source)
	}
	merged.Source = strings.Join(sources, "+")
	return merged, nil
}
