package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"subpay/internal/model"
)

const withdrawalColumns = `id, user_email, address, amount_usd, fee_usd, status, admin_note, created_at, processed_at`

func (s *Store) CreateWithdrawal(ctx context.Context, w model.Withdrawal) (model.Withdrawal, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO withdrawals (id, user_email, address, amount_usd, fee_usd, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		RETURNING `+withdrawalColumns,
		w.ID, w.UserEmail, w.Address, w.AmountUSD, w.FeeUSD, string(w.Status),
	)
	return scanWithdrawal(row)
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (model.Withdrawal, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
	w, err := scanWithdrawal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Withdrawal{}, ErrNotFound
		}
		return model.Withdrawal{}, err
	}
	return w, nil
}

// ProcessWithdrawal applies the administrator decision. The update is
// conditional on status = 'pending', so a withdrawal can be adjudicated
// exactly once: a second approve or reject fails with ErrInvalidStatus.
func (s *Store) ProcessWithdrawal(ctx context.Context, id string, status model.WithdrawalStatus, note string) (model.Withdrawal, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE withdrawals
		SET status = $2, admin_note = NULLIF($3, ''), processed_at = now()
		WHERE id = $1 AND status = $4
		RETURNING `+withdrawalColumns,
		id, string(status), note, string(model.WithdrawalPending),
	)
	w, err := scanWithdrawal(row)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Withdrawal{}, err
	}
	// No pending row matched: distinguish missing from already processed.
	if _, getErr := s.GetWithdrawal(ctx, id); getErr != nil {
		return model.Withdrawal{}, getErr
	}
	return model.Withdrawal{}, ErrInvalidStatus
}

func (s *Store) ListWithdrawals(ctx context.Context, limit int) ([]model.Withdrawal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM withdrawals ORDER BY created_at DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWithdrawal(row rowScanner) (model.Withdrawal, error) {
	var (
		w           model.Withdrawal
		userEmail   *string
		adminNote   *string
		processedAt *time.Time
	)
	err := row.Scan(&w.ID, &userEmail, &w.Address, &w.AmountUSD, &w.FeeUSD, &w.Status, &adminNote, &w.CreatedAt, &processedAt)
	if err != nil {
		return model.Withdrawal{}, err
	}
	if userEmail != nil {
		w.UserEmail = *userEmail
	}
	if adminNote != nil {
		w.AdminNote = *adminNote
	}
	w.ProcessedAt = processedAt
	return w, nil
}
