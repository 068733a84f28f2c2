package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// PostgresRiskRepo serves blacklists and thresholds maintained by operators in Postgres.
type PostgresRiskRepo struct {
	db *sqlx.DB
}

func NewPostgresRiskRepo(db *sqlx.DB) *PostgresRiskRepo {
	repo := &PostgresRiskRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

type blacklistedTokenRow struct {
	Chain   string `db:"chain"`
	Address string `db:"address"`
}

type thresholdsRow struct {
	MinLiquidity          decimal.Decimal `db:"min_liquidity"`
	MinVolumeQualityScore float64         `db:"min_volume_quality_score"`
	MaxBundledSupplyPct   decimal.Decimal `db:"max_bundled_supply_pct"`
}

func (r *PostgresRiskRepo) Snapshot(ctx context.Context) (model.RiskProfileData, error) {
	var data model.RiskProfileData

	var tokens []blacklistedTokenRow
	if err := r.db.SelectContext(ctx, &tokens, `SELECT chain, address FROM token_blacklist`); err != nil {
		return data, fmt.Errorf("load token blacklist: %w", err)
	}
	for _, t := range tokens {
		data.Tokens = append(data.Tokens, model.NewTokenID(t.Chain, t.Address))
	}

	if err := r.db.SelectContext(ctx, &data.Devs, `SELECT address FROM dev_blacklist`); err != nil {
		return data, fmt.Errorf("load dev blacklist: %w", err)
	}

	var th thresholdsRow
	err := r.db.GetContext(ctx, &th, `
		SELECT min_liquidity, min_volume_quality_score, max_bundled_supply_pct
		FROM screening_thresholds WHERE id = 1`)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return data, fmt.Errorf("load thresholds: %w", err)
	default:
		data.Thresholds = &model.Thresholds{
			MinLiquidity:          th.MinLiquidity,
			MinVolumeQualityScore: th.MinVolumeQualityScore,
			MaxBundledSupplyPct:   th.MaxBundledSupplyPct,
		}
	}
	return data, nil
}

func (r *PostgresRiskRepo) BlacklistToken(ctx context.Context, id model.TokenID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO token_blacklist (chain, address, reason) VALUES ($1, $2, $3)
		ON CONFLICT (chain, address) DO UPDATE SET reason = EXCLUDED.reason
	`, string(id.Chain), id.Address, reason)
	return err
}

func (r *PostgresRiskRepo) BlacklistDev(ctx context.Context, address, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dev_blacklist (address, reason) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET reason = EXCLUDED.reason
	`, model.NormalizeAddress(address), reason)
	return err
}

func (r *PostgresRiskRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS token_blacklist (
			chain TEXT NOT NULL,
			address TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (chain, address)
		)
	`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS dev_blacklist (
			address TEXT PRIMARY KEY,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS screening_thresholds (
			id INTEGER PRIMARY KEY,
			min_liquidity NUMERIC NOT NULL,
			min_volume_quality_score DOUBLE PRECISION NOT NULL,
			max_bundled_supply_pct NUMERIC NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}
