package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/GoPolymarket/dexgate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DryRunExecutor stands in for on-chain execution. It logs the order it would have sent
// and returns a synthetic receipt.
type DryRunExecutor struct {
	slippage decimal.Decimal
	nonces   *NonceTracker
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*DryRunExecutor)

// WithNonces reserves a real pending nonce per order on chains the tracker can reach.
func WithNonces(t *NonceTracker) Option {
	return func(e *DryRunExecutor) { e.nonces = t }
}

// NewDryRunExecutor takes slippage as a percentage, e.g. 1.5.
func NewDryRunExecutor(slippagePct float64, opts ...Option) *DryRunExecutor {
	e := &DryRunExecutor{
		slippage: decimal.NewFromFloat(slippagePct),
		now:      time.Now,
		log:      logger.Component("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *DryRunExecutor) Execute(ctx context.Context, side model.Side, id model.TokenID, amount decimal.Decimal) (model.ExecutionReceipt, error) {
	if err := ctx.Err(); err != nil {
		return model.ExecutionReceipt{}, err
	}

	orderID := uuid.NewString()
	receipt := model.ExecutionReceipt{
		OrderID:    orderID,
		TxHash:     syntheticTxHash(orderID, id),
		ExecutedAt: e.now().UTC(),
	}
	if e.nonces != nil && e.nonces.Supports(id.Chain) {
		nonce, err := e.nonces.Reserve(ctx, id.Chain)
		if err != nil {
			return model.ExecutionReceipt{}, err
		}
		receipt.Nonce = &nonce
	}

	e.log.InfoContext(ctx, "dry-run order",
		"order_id", orderID,
		"token", id.String(),
		"side", side,
		"amount", amount.String(),
		"min_out", MinOut(amount, e.slippage).String(),
		"slippage_pct", e.slippage.String(),
		"tx_hash", receipt.TxHash,
		"nonce", receipt.Nonce,
	)
	return receipt, nil
}

// MinOut is the amount accepted after slippage. Slippage is clamped to [0, 100].
func MinOut(amount, slippagePct decimal.Decimal) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	if slippagePct.IsNegative() {
		slippagePct = decimal.Zero
	}
	if slippagePct.GreaterThan(hundred) {
		slippagePct = hundred
	}
	return amount.Mul(hundred.Sub(slippagePct)).Div(hundred)
}

func syntheticTxHash(orderID string, id model.TokenID) string {
	return common.BytesToHash(crypto.Keccak256([]byte(orderID), []byte(id.String()))).Hex()
}
