package model

import "time"

type CheckKind string

const (
	CheckBlacklist     CheckKind = "Blacklist"
	CheckRugPull       CheckKind = "RugPull"
	CheckLiquidity     CheckKind = "Liquidity"
	CheckVolumeQuality CheckKind = "VolumeQuality"
)

type CheckResult struct {
	Kind   CheckKind `json:"kind"`
	Passed bool      `json:"passed"`
	Reason string    `json:"reason,omitempty"`
}

// ScreeningVerdict is immutable once returned by the screening engine.
type ScreeningVerdict struct {
	TokenID         TokenID       `json:"token_id"`
	Passed          bool          `json:"passed"`
	FailedChecks    []CheckKind   `json:"failed_checks"`
	Results         []CheckResult `json:"results"`
	QualityScore    *float64      `json:"quality_score,omitempty"`
	ProfileLoadedAt time.Time     `json:"profile_loaded_at"`
	EvaluatedAt     time.Time     `json:"evaluated_at"`
}

func (v ScreeningVerdict) Failed(kind CheckKind) bool {
	for _, k := range v.FailedChecks {
		if k == kind {
			return true
		}
	}
	return false
}

// Reasons lists "Kind: reason" for each failed check, in evaluation order.
func (v ScreeningVerdict) Reasons() []string {
	out := make([]string, 0, len(v.FailedChecks))
	for _, r := range v.Results {
		if r.Passed {
			continue
		}
		if r.Reason == "" {
			out = append(out, string(r.Kind))
			continue
		}
		out = append(out, string(r.Kind)+": "+r.Reason)
	}
	return out
}

func (v ScreeningVerdict) FailedCheckNames() []string {
	out := make([]string, len(v.FailedChecks))
	for i, k := range v.FailedChecks {
		out[i] = string(k)
	}
	return out
}
