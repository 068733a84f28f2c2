package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(raw))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("unsupported side %q", raw)
	}
}

// Trigger identifies which entry point produced a request or observation.
type Trigger string

const (
	TriggerPoller Trigger = "poller"
	TriggerManual Trigger = "manual"
)

// TokenObserved is an ephemeral observation emitted by a chain poller or the manual path.
type TokenObserved struct {
	Token      Token     `json:"token"`
	Trigger    Trigger   `json:"trigger"`
	Chain      ChainID   `json:"chain,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// TradeRequest is consumed once by the trade gate. Observed is optional: when nil the gate
// looks the token up itself.
type TradeRequest struct {
	RequestID   string          `json:"request_id"`
	TokenID     TokenID         `json:"token_id"`
	Side        Side            `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedBy string          `json:"requested_by"`
	Trigger     Trigger         `json:"trigger"`
	Observed    *Token          `json:"-"`
}

type ExecutionReceipt struct {
	OrderID    string    `json:"order_id"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Nonce      *uint64   `json:"nonce,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

type AuthorizedOrder struct {
	RequestID    string           `json:"request_id"`
	TokenID      TokenID          `json:"token_id"`
	Side         Side             `json:"side"`
	Amount       decimal.Decimal  `json:"amount"`
	Verdict      ScreeningVerdict `json:"verdict"`
	Receipt      ExecutionReceipt `json:"receipt"`
	AuthorizedAt time.Time        `json:"authorized_at"`
}

type Decision string

const (
	DecisionAuthorized Decision = "authorized"
	DecisionRejected   Decision = "rejected"
	DecisionSuperseded Decision = "superseded"
)

// TradeRecord is the ledger row written for every gate decision.
type TradeRecord struct {
	RequestID   string          `json:"request_id"`
	TokenID     TokenID         `json:"token_id"`
	Side        Side            `json:"side"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedBy string          `json:"requested_by"`
	Trigger     Trigger         `json:"trigger"`
	Decision    Decision        `json:"decision"`
	ErrorCode   string          `json:"error_code,omitempty"`
	Reasons     []string        `json:"reasons,omitempty"`
	OrderID     string          `json:"order_id,omitempty"`
	TxHash      string          `json:"tx_hash,omitempty"`
	DecidedAt   time.Time       `json:"decided_at"`
	LatencyMs   int64           `json:"latency_ms"`
}

// Position is the net authorized amount held in one token.
type Position struct {
	TokenID TokenID         `json:"token_id"`
	Net     decimal.Decimal `json:"net"`
	Buys    int             `json:"buys"`
	Sells   int             `json:"sells"`
}

type Performance struct {
	Window     int              `json:"window"`
	Decisions  map[Decision]int `json:"decisions"`
	ErrorCodes map[string]int   `json:"error_codes"`
}

// SummarizeTrades folds ledger records into per-token positions and decision counts.
// Only authorized records move a position.
func SummarizeTrades(records []TradeRecord) ([]Position, Performance) {
	perf := Performance{
		Window:     len(records),
		Decisions:  make(map[Decision]int),
		ErrorCodes: make(map[string]int),
	}
	byToken := make(map[TokenID]*Position)
	for _, rec := range records {
		perf.Decisions[rec.Decision]++
		if rec.ErrorCode != "" {
			perf.ErrorCodes[rec.ErrorCode]++
		}
		if rec.Decision != DecisionAuthorized {
			continue
		}
		pos, ok := byToken[rec.TokenID]
		if !ok {
			pos = &Position{TokenID: rec.TokenID, Net: decimal.Zero}
			byToken[rec.TokenID] = pos
		}
		switch rec.Side {
		case SideBuy:
			pos.Net = pos.Net.Add(rec.Amount)
			pos.Buys++
		case SideSell:
			pos.Net = pos.Net.Sub(rec.Amount)
			pos.Sells++
		}
	}

	positions := make([]Position, 0, len(byToken))
	for _, pos := range byToken {
		positions = append(positions, *pos)
	}
	slices.SortFunc(positions, func(a, b Position) int {
		return strings.Compare(a.TokenID.String(), b.TokenID.String())
	})
	return positions, perf
}
