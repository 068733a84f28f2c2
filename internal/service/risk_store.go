package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/dexgate/internal/config"
	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/GoPolymarket/dexgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// RiskProfileSource is any backing store of blacklists and thresholds.
type RiskProfileSource interface {
	Snapshot(ctx context.Context) (model.RiskProfileData, error)
}

// RiskProfileStore publishes immutable RiskProfile snapshots. Readers never block.
type RiskProfileStore struct {
	source      RiskProfileSource
	sourceName  string
	loadTimeout time.Duration
	current     atomic.Pointer[model.RiskProfile]
	failures    atomic.Int64
	log         *slog.Logger
}

// NewRiskProfileStore starts from seed so that Current never returns nil.
func NewRiskProfileStore(seed *model.RiskProfile, source RiskProfileSource, sourceName string, loadTimeout time.Duration) *RiskProfileStore {
	if loadTimeout <= 0 {
		loadTimeout = 10 * time.Second
	}
	s := &RiskProfileStore{
		source:      source,
		sourceName:  sourceName,
		loadTimeout: loadTimeout,
		log:         logger.Component("risk_store"),
	}
	s.current.Store(seed)
	return s
}

func (s *RiskProfileStore) Current() *model.RiskProfile {
	return s.current.Load()
}

// ConsecutiveFailures counts refreshes failed since the last success.
func (s *RiskProfileStore) ConsecutiveFailures() int64 {
	return s.failures.Load()
}

// Load builds a fresh profile from the source without publishing it. Thresholds the source
// does not carry are inherited from the current snapshot.
func (s *RiskProfileStore) Load(ctx context.Context) (*model.RiskProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	data, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, apperrors.NewSourceUnavailable("risk profile source "+s.sourceName+" failed", err)
	}
	return model.NewRiskProfile(data, s.Current().Thresholds, s.sourceName, time.Now().UTC()), nil
}

// Refresh loads and publishes. On failure the previous snapshot stays in place.
func (s *RiskProfileStore) Refresh(ctx context.Context) (*model.RiskProfile, error) {
	profile, err := s.Load(ctx)
	if err != nil {
		n := s.failures.Add(1)
		metrics.ProfileRefreshes.WithLabelValues("failure").Inc()
		s.log.Warn("Risk profile refresh failed, keeping previous snapshot",
			"error", err, "consecutive_failures", n, "snapshot_loaded_at", s.Current().LoadedAt)
		return nil, err
	}
	s.current.Store(profile)
	s.failures.Store(0)
	metrics.ProfileRefreshes.WithLabelValues("success").Inc()
	s.log.Info("Risk profile refreshed",
		"source", profile.Source,
		"blacklisted_tokens", len(profile.Tokens()),
		"blacklisted_devs", len(profile.Devs()))
	return profile, nil
}

// RefreshLoop refreshes on every tick until ctx is cancelled.
func (s *RiskProfileStore) RefreshLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Refresh(ctx)
		}
	}
}

// StaticRiskSource serves a fixed profile, typically the configured one.
type StaticRiskSource struct {
	Data model.RiskProfileData
}

func (s StaticRiskSource) Snapshot(context.Context) (model.RiskProfileData, error) {
	return s.Data, nil
}

// NamedRiskSource labels a source inside a MergedRiskSource.
type NamedRiskSource struct {
	Name   string
	Source RiskProfileSource
}

// MergedRiskSource unions blacklists across sources and takes thresholds from the first
// source that has them. A failure of any source fails the whole snapshot, so a partial
// view can never silently drop blacklist entries.
type MergedRiskSource struct {
	sources []NamedRiskSource
}

func NewMergedRiskSource(sources ...NamedRiskSource) *MergedRiskSource {
	return &MergedRiskSource{sources: sources}
}

func (m *MergedRiskSource) Name() string {
	names := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		names = append(names, s.Name)
	}
	return strings.Join(names, "+")
}

func (m *MergedRiskSource) Snapshot(ctx context.Context) (model.RiskProfileData, error) {
	var out model.RiskProfileData
	for _, src := range m.sources {
		data, err := src.Source.Snapshot(ctx)
		if err != nil {
			return model.RiskProfileData{}, fmt.Errorf("%s: %w", src.Name, err)
		}
		out.Tokens = append(out.Tokens, data.Tokens...)
		out.Devs = append(out.Devs, data.Devs...)
		if out.Thresholds == nil && data.Thresholds != nil {
			t := *data.Thresholds
			out.Thresholds = &t
		}
	}
	return out, nil
}

// ConfiguredRiskData converts the security section into profile data.
func ConfiguredRiskData(cfg config.SecurityConfig) (model.RiskProfileData, error) {
	data := model.RiskProfileData{
		Devs: append([]string(nil), cfg.BlacklistedDevs...),
		Thresholds: &model.Thresholds{
			MinLiquidity:          decimal.NewFromFloat(cfg.MinLiquidity),
			MinVolumeQualityScore: cfg.MinVolumeQualityScore,
			MaxBundledSupplyPct:   decimal.NewFromFloat(cfg.MaxBundledSupplyPct),
		},
	}
	for _, raw := range cfg.BlacklistedTokens {
		id, err := model.ParseTokenID(raw)
		if err != nil {
			return model.RiskProfileData{}, fmt.Errorf("security.blacklisted_tokens: %w", err)
		}
		data.Tokens = append(data.Tokens, id)
	}
	return data, nil
}

// SeedProfile is the startup snapshot built from configuration alone.
func SeedProfile(cfg config.SecurityConfig) (*model.RiskProfile, error) {
	data, err := ConfiguredRiskData(cfg)
	if err != nil {
		return nil, err
	}
	return model.NewRiskProfile(data, *data.Thresholds, "config", time.Now().UTC()), nil
}
