package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"subpay/internal/model"
)

// MaxListLimit bounds every admin listing query.
const MaxListLimit = 1000

// Store is the durable record store for purchases, withdrawals and users,
// backed by Postgres. Status transitions are enforced with per-record
// conditional updates, so concurrent callback redeliveries are safe without
// in-process locking.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const purchaseColumns = `id, user_email, plan_key, plan_name, amount_usd, provider, provider_data, status, created_at, expires_at`

func (s *Store) CreatePurchase(ctx context.Context, p model.Purchase) (model.Purchase, error) {
	data, err := marshalProviderData(p.ProviderData)
	if err != nil {
		return model.Purchase{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO purchases (id, user_email, plan_key, plan_name, amount_usd, provider, provider_data, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7::jsonb, $8)
		RETURNING `+purchaseColumns,
		p.ID, p.UserEmail, p.PlanKey, p.PlanName, p.AmountUSD, string(p.Provider), data, string(p.Status),
	)
	return scanPurchase(row)
}

func (s *Store) GetPurchase(ctx context.Context, id string) (model.Purchase, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = $1`, id)
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Purchase{}, ErrNotFound
		}
		return model.Purchase{}, err
	}
	return p, nil
}

// MarkPaid transitions the purchase to paid, sets its expiry and merges the
// payload, all in one conditional update guarded on status <> 'paid'. It
// returns false when the record was already paid: in that case only the
// payload is merged and the existing expiry is left untouched, which makes
// redelivered confirmations idempotent.
func (s *Store) MarkPaid(ctx context.Context, id string, expiresAt time.Time, payload model.ProviderData) (bool, error) {
	data, err := marshalProviderData(payload)
	if err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE purchases
		SET status = $2, expires_at = $3, provider_data = provider_data || $4::jsonb
		WHERE id = $1 AND status <> $2`,
		id, string(model.PurchasePaid), expiresAt, data,
	)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	// Already paid, or gone. Merge the payload into history either way.
	if err := s.MergeProviderData(ctx, id, payload); err != nil {
		return false, err
	}
	return false, nil
}

// MergeProviderData merges payload keys into the purchase's provider data
// without touching status or expiry.
func (s *Store) MergeProviderData(ctx context.Context, id string, payload model.ProviderData) error {
	data, err := marshalProviderData(payload)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE purchases SET provider_data = provider_data || $2::jsonb WHERE id = $1`,
		id, data,
	)
	if err != nil {
		return fmt.Errorf("merge provider data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListPurchases(ctx context.Context, limit int) ([]model.Purchase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+purchaseColumns+` FROM purchases ORDER BY created_at DESC LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (model.Purchase, error) {
	var (
		p         model.Purchase
		userEmail *string
		data      []byte
		expiresAt *time.Time
	)
	err := row.Scan(&p.ID, &userEmail, &p.PlanKey, &p.PlanName, &p.AmountUSD, &p.Provider, &data, &p.Status, &p.CreatedAt, &expiresAt)
	if err != nil {
		return model.Purchase{}, err
	}
	if userEmail != nil {
		p.UserEmail = *userEmail
	}
	p.ExpiresAt = expiresAt
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p.ProviderData); err != nil {
			return model.Purchase{}, fmt.Errorf("decode provider data: %w", err)
		}
	}
	return p, nil
}

func marshalProviderData(d model.ProviderData) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode provider data: %w", err)
	}
	return data, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
