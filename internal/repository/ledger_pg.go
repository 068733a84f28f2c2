package repository

import (
	"context"
	"strings"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeRecordRow is the gorm mapping of model.TradeRecord.
type TradeRecordRow struct {
	ID          uint            `gorm:"primaryKey"`
	RequestID   string          `gorm:"size:64;index"`
	TokenID     string          `gorm:"size:128;index"`
	Side        string          `gorm:"size:8"`
	Amount      decimal.Decimal `gorm:"type:numeric"`
	RequestedBy string          `gorm:"size:128"`
	Trigger     string          `gorm:"size:16"`
	Decision    string          `gorm:"size:16;index"`
	ErrorCode   string          `gorm:"size:32"`
	Reasons     string          `gorm:"type:text"`
	OrderID     string          `gorm:"size:128"`
	TxHash      string          `gorm:"size:128"`
	DecidedAt   time.Time       `gorm:"index"`
	LatencyMs   int64           `gorm:"not null"`
}

func (TradeRecordRow) TableName() string { return "trade_records" }

type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) (*GormLedger, error) {
	if err := db.AutoMigrate(&TradeRecordRow{}); err != nil {
		return nil, err
	}
	return &GormLedger{db: db}, nil
}

func (l *GormLedger) Record(ctx context.Context, rec model.TradeRecord) error {
	row := TradeRecordRow{
		RequestID:   rec.RequestID,
		TokenID:     rec.TokenID.String(),
		Side:        string(rec.Side),
		Amount:      rec.Amount,
		RequestedBy: rec.RequestedBy,
		Trigger:     string(rec.Trigger),
		Decision:    string(rec.Decision),
		ErrorCode:   rec.ErrorCode,
		Reasons:     strings.Join(rec.Reasons, "; "),
		OrderID:     rec.OrderID,
		TxHash:      rec.TxHash,
		DecidedAt:   rec.DecidedAt,
		LatencyMs:   rec.LatencyMs,
	}
	return l.db.WithContext(ctx).Create(&row).Error
}

// List returns records newest first.
func (l *GormLedger) List(ctx context.Context, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var rows []TradeRecordRow
	if err := l.db.WithContext(ctx).Order("decided_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.TradeRecord, 0, len(rows))
	for _, r := range rows {
		id, _ := model.ParseTokenID(r.TokenID)
		rec := model.TradeRecord{
			RequestID:   r.RequestID,
			TokenID:     id,
			Side:        model.Side(r.Side),
			Amount:      r.Amount,
			RequestedBy: r.RequestedBy,
			Trigger:     model.Trigger(r.Trigger),
			Decision:    model.Decision(r.Decision),
			ErrorCode:   r.ErrorCode,
			OrderID:     r.OrderID,
			TxHash:      r.TxHash,
			DecidedAt:   r.DecidedAt,
			LatencyMs:   r.LatencyMs,
		}
		if r.Reasons != "" {
			rec.Reasons = strings.Split(r.Reasons, "; ")
		}
		out = append(out, rec)
	}
	return out, nil
}
