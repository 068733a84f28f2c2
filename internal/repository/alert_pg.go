package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/jmoiron/sqlx"
)

type PostgresAlertRepo struct {
	db *sqlx.DB
}

func NewPostgresAlertRepo(db *sqlx.DB) *PostgresAlertRepo {
	repo := &PostgresAlertRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresAlertRepo) Insert(ctx context.Context, alert *model.Alert) error {
	if alert == nil {
		return nil
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, kind, token_id, request_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, alert.ID, string(alert.Kind), alert.TokenID, alert.RequestID, payload, alert.CreatedAt)
	return err
}

func (r *PostgresAlertRepo) List(ctx context.Context, limit int) ([]*model.Alert, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var payloads [][]byte
	if err := r.db.SelectContext(ctx, &payloads,
		`SELECT payload FROM alerts ORDER BY created_at DESC LIMIT $1`, limit); err != nil {
		return nil, err
	}
	return decodeAlerts(payloads), nil
}

func (r *PostgresAlertRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < $1`, time.Now().UTC().Add(-olderThan))
	return err
}

func (r *PostgresAlertRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			token_id TEXT NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS alerts_created_at_idx ON alerts (created_at DESC)`)
	return nil
}

func decodeAlerts(payloads [][]byte) []*model.Alert {
	out := make([]*model.Alert, 0, len(payloads))
	for _, p := range payloads {
		var a model.Alert
		if err := json.Unmarshal(p, &a); err != nil {
			continue
		}
		out = append(out, &a)
	}
	return out
}
