package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/merchant-escrow/backend/internal/models"
)

// PayoutRepo stores payout instructions for the external settlement
// rail to consume.
type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

func (r *PayoutRepo) Create(ctx context.Context, p models.PayoutInstruction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payouts (id, recipient, amount, reason, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Recipient, p.Amount, p.Reason, p.PaymentID, p.CreatedAt)
	return err
}

func (r *PayoutRepo) ListByRecipient(ctx context.Context, recipient string, limit, offset int) ([]models.PayoutInstruction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, recipient, amount, reason, payment_id, created_at
		FROM payouts WHERE recipient = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, recipient, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []models.PayoutInstruction
	for rows.Next() {
		var p models.PayoutInstruction
		if err := rows.Scan(&p.ID, &p.Recipient, &p.Amount, &p.Reason, &p.PaymentID, &p.CreatedAt); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}
