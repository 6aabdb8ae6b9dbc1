package repository

import (
	"context"
	"time"

	"subpay/internal/model"
)

// UpsertUserByWallet records a minimal identity row for a wallet address seen
// at purchase intake. Re-submitting the same wallet refreshes the email only.
func (s *Store) UpsertUserByWallet(ctx context.Context, u model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, wallet_address)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (wallet_address)
		DO UPDATE SET email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email)`,
		u.ID, u.Email, u.WalletAddress,
	)
	return err
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, wallet_address, deposit_wallet, created_at
		FROM users ORDER BY created_at DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var (
			u             model.User
			email         *string
			wallet        *string
			depositWallet *string
			createdAt     time.Time
		)
		if err := rows.Scan(&u.ID, &email, &wallet, &depositWallet, &createdAt); err != nil {
			return nil, err
		}
		if email != nil {
			u.Email = *email
		}
		if wallet != nil {
			u.WalletAddress = *wallet
		}
		if depositWallet != nil {
			u.DepositWallet = *depositWallet
		}
		u.CreatedAt = createdAt
		out = append(out, u)
	}
	return out, rows.Err()
}
