package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"subpay/internal/model"
)

// DefaultWithdrawalFeeUSD is the flat fee recorded on every cash-out request.
const DefaultWithdrawalFeeUSD = 2

// RequestWithdrawal creates a pending cash-out request. Payout only happens
// after an administrator approves it, and even then off-band.
func (s *Payments) RequestWithdrawal(ctx context.Context, req model.WithdrawRequest) (model.Withdrawal, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return model.Withdrawal{}, fmt.Errorf("%w: address is required", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return model.Withdrawal{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	w, err := s.store.CreateWithdrawal(ctx, model.Withdrawal{
		ID:        uuid.NewString(),
		UserEmail: strings.TrimSpace(req.UserEmail),
		Address:   address,
		AmountUSD: req.Amount,
		FeeUSD:    DefaultWithdrawalFeeUSD,
		Status:    model.WithdrawalPending,
	})
	if err != nil {
		return model.Withdrawal{}, fmt.Errorf("create withdrawal: %w", err)
	}
	s.logger.Info("withdrawal requested", "withdrawal_id", w.ID, "amount_usd", w.AmountUSD)
	return w, nil
}

// ProcessWithdrawal applies the administrator decision exactly once. The
// store rejects a second decision with ErrInvalidStatus.
func (s *Payments) ProcessWithdrawal(ctx context.Context, id string, approve bool, note string) (model.Withdrawal, error) {
	status := model.WithdrawalRejected
	if approve {
		status = model.WithdrawalApproved
	}
	w, err := s.store.ProcessWithdrawal(ctx, id, status, strings.TrimSpace(note))
	if err != nil {
		return model.Withdrawal{}, err
	}
	s.logger.Info("withdrawal processed", "withdrawal_id", w.ID, "status", w.Status)
	return w, nil
}

func (s *Payments) ListUsers(ctx context.Context, limit int) ([]model.User, error) {
	return s.store.ListUsers(ctx, limit)
}

func (s *Payments) ListPurchases(ctx context.Context, limit int) ([]model.Purchase, error) {
	return s.store.ListPurchases(ctx, limit)
}

func (s *Payments) ListWithdrawals(ctx context.Context, limit int) ([]model.Withdrawal, error) {
	return s.store.ListWithdrawals(ctx, limit)
}
