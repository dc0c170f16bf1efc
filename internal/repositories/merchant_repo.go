package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/merchant-escrow/backend/internal/models"
)

type MerchantRepo struct {
	pool *pgxpool.Pool
}

func NewMerchantRepo(pool *pgxpool.Pool) *MerchantRepo {
	return &MerchantRepo{pool: pool}
}

// Upsert writes the account as the engine accepted it. Balances are
// replaced wholesale; the engine is the arithmetic authority.
func (r *MerchantRepo) Upsert(ctx context.Context, m models.MerchantAccount) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO merchants (identity, registered, total_balance, withdrawable_balance, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity) DO UPDATE SET
			registered = EXCLUDED.registered,
			total_balance = EXCLUDED.total_balance,
			withdrawable_balance = EXCLUDED.withdrawable_balance
	`, m.Identity, m.Registered, m.TotalBalance, m.WithdrawableBalance, m.RegisteredAt)
	return err
}

func (r *MerchantRepo) List(ctx context.Context) ([]models.MerchantAccount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity, registered, total_balance, withdrawable_balance, registered_at
		FROM merchants ORDER BY registered_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var merchants []models.MerchantAccount
	for rows.Next() {
		var m models.MerchantAccount
		if err := rows.Scan(&m.Identity, &m.Registered, &m.TotalBalance, &m.WithdrawableBalance, &m.RegisteredAt); err != nil {
			return nil, err
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}
