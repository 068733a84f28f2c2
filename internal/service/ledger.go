package service

import (
	"context"
	"sync"

	"github.com/GoPolymarket/dexgate/internal/model"
)

// Ledger is the persistent trade history.
type Ledger interface {
	Record(ctx context.Context, rec model.TradeRecord) error
}

// LedgerReader lists recorded decisions, newest first.
type LedgerReader interface {
	List(ctx context.Context, limit int) ([]model.TradeRecord, error)
}

// MemoryLedger keeps the most recent records in a ring. Used when no database is configured.
type MemoryLedger struct {
	mu      sync.Mutex
	max     int
	records []model.TradeRecord
	next    int
}

func NewMemoryLedger(max int) *MemoryLedger {
	if max <= 0 {
		max = 1000
	}
	return &MemoryLedger{max: max, records: make([]model.TradeRecord, 0, max)}
}

func (l *MemoryLedger) Record(_ context.Context, rec model.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) < l.max {
		l.records = append(l.records, rec)
		return nil
	}
	l.records[l.next] = rec
	l.next = (l.next + 1) % l.max
	return nil
}

// List returns records newest first.
func (l *MemoryLedger) List(_ context.Context, limit int) ([]model.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := len(l.records)
	if limit <= 0 || limit > total {
		limit = total
	}
	start := l.next
	if total < l.max {
		start = total
	}
	out := make([]model.TradeRecord, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, l.records[(start-1-i+total)%total])
	}
	return out, nil
}
