package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AlertKind string

const (
	AlertVerdict  AlertKind = "verdict"
	AlertDecision AlertKind = "decision"
)

// Alert is one auditable notification: a screening verdict or a gate decision.
type Alert struct {
	ID        string    `json:"id"`
	Kind      AlertKind `json:"kind"`
	TokenID   string    `json:"token_id"`
	Trigger   Trigger   `json:"trigger,omitempty"`
	RequestID string    `json:"request_id,omitempty"`

	// verdict alerts
	Passed       *bool    `json:"passed,omitempty"`
	FailedChecks []string `json:"failed_checks,omitempty"`

	// decision alerts
	Decision  Decision `json:"decision,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
	Side      Side     `json:"side,omitempty"`
	Amount    string   `json:"amount,omitempty"`

	Reasons   []string               `json:"reasons,omitempty"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// StatusReport is the operator-facing snapshot of the pipeline.
type StatusReport struct {
	TradingEnabled bool               `json:"trading_enabled"`
	RiskProfile    RiskProfileSummary `json:"risk_profile"`
	InFlight       []TokenID          `json:"in_flight"`
	Pollers        []PollerStatus     `json:"pollers"`
	RecentAlerts   []*Alert           `json:"recent_alerts"`
	Portfolio      []Position         `json:"portfolio"`
	Performance    Performance        `json:"performance"`
}

type PollerStatus struct {
	Chain               ChainID   `json:"chain"`
	State               string    `json:"state"`
	ConsecutiveFailures int64     `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	Emitted             int64     `json:"emitted"`
}

func NewVerdictAlert(v ScreeningVerdict, trigger Trigger, requestID string) *Alert {
	passed := v.Passed
	msg := fmt.Sprintf("%s passed screening", v.TokenID)
	if !passed {
		msg = fmt.Sprintf("%s failed screening: %v", v.TokenID, v.FailedCheckNames())
	}
	a := &Alert{
		ID:           uuid.NewString(),
		Kind:         AlertVerdict,
		TokenID:      v.TokenID.String(),
		Trigger:      trigger,
		RequestID:    requestID,
		Passed:       &passed,
		FailedChecks: v.FailedCheckNames(),
		Reasons:      v.Reasons(),
		Message:      msg,
		CreatedAt:    v.EvaluatedAt,
	}
	if v.QualityScore != nil {
		a.Context = map[string]interface{}{"quality_score": *v.QualityScore}
	}
	return a
}

func NewDecisionAlert(r TradeRecord) *Alert {
	msg := fmt.Sprintf("%s %s %s: %s", r.Side, r.Amount.String(), r.TokenID, r.Decision)
	if r.ErrorCode != "" {
		msg += " (" + r.ErrorCode + ")"
	}
	a := &Alert{
		ID:        uuid.NewString(),
		Kind:      AlertDecision,
		TokenID:   r.TokenID.String(),
		Trigger:   r.Trigger,
		RequestID: r.RequestID,
		Decision:  r.Decision,
		ErrorCode: r.ErrorCode,
		Side:      r.Side,
		Amount:    r.Amount.String(),
		Reasons:   r.Reasons,
		Message:   msg,
		CreatedAt: r.DecidedAt,
	}
	if r.OrderID != "" {
		a.Context = map[string]interface{}{"order_id": r.OrderID, "tx_hash": r.TxHash}
	}
	return a
}
