package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/merchant-escrow/backend/internal/models"
)

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Upsert persists the record after each accepted transition. Immutable
// fields only ever match themselves; the update path exists for the
// status and settlement columns.
func (r *PaymentRepo) Upsert(ctx context.Context, p models.Payment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payments (
			id, payer, merchant, amount, status,
			created_at, holding_deadline, dispute_deadline,
			released_at, disputed_at, resolved_at, refunded_to_payer
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			released_at = EXCLUDED.released_at,
			disputed_at = EXCLUDED.disputed_at,
			resolved_at = EXCLUDED.resolved_at,
			refunded_to_payer = EXCLUDED.refunded_to_payer
	`, p.ID, p.Payer, p.Merchant, p.Amount, p.Status,
		p.CreatedAt, p.HoldingDeadline, p.DisputeDeadline,
		p.ReleasedAt, p.DisputedAt, p.ResolvedAt, p.RefundedToPayer)
	return err
}

func (r *PaymentRepo) List(ctx context.Context) ([]models.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, payer, merchant, amount, status,
		       created_at, holding_deadline, dispute_deadline,
		       released_at, disputed_at, resolved_at, refunded_to_payer
		FROM payments ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.Payer, &p.Merchant, &p.Amount, &p.Status,
			&p.CreatedAt, &p.HoldingDeadline, &p.DisputeDeadline,
			&p.ReleasedAt, &p.DisputedAt, &p.ResolvedAt, &p.RefundedToPayer); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
