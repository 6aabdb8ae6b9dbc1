package repository_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"subpay/internal/model"
	"subpay/internal/repository"
)

func setupStore(t *testing.T) *repository.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := repository.RunMigrations(ctx, dsn, "up"); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	t.Cleanup(pool.Close)

	return repository.NewStore(pool)
}

func seedPurchase(t *testing.T, store *repository.Store) model.Purchase {
	t.Helper()
	p, err := store.CreatePurchase(context.Background(), model.Purchase{
		ID:        uuid.NewString(),
		PlanKey:   "p10",
		PlanName:  "Plan 10",
		AmountUSD: 10,
		Provider:  model.ProviderCheckout,
		Status:    model.PurchasePending,
	})
	if err != nil {
		t.Fatalf("create purchase: %v", err)
	}
	return p
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := seedPurchase(t, store)

	first := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	applied, err := store.MarkPaid(ctx, p.ID, first, model.ProviderData{"checkout": map[string]any{"id": "evt_1"}})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !applied {
		t.Fatal("expected first transition to apply")
	}

	// Redelivery with a later expiry must not re-apply or move the expiry.
	applied, err = store.MarkPaid(ctx, p.ID, first.Add(48*time.Hour), model.ProviderData{"checkout": map[string]any{"id": "evt_1", "retry": true}})
	if err != nil {
		t.Fatalf("mark paid redelivery: %v", err)
	}
	if applied {
		t.Fatal("expected redelivery to be a no-op transition")
	}

	got, err := store.GetPurchase(ctx, p.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if got.Status != model.PurchasePaid {
		t.Fatalf("expected status paid, got %s", got.Status)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.UTC().Truncate(time.Second).Equal(first) {
		t.Fatalf("expected expiry %v to survive redelivery, got %v", first, got.ExpiresAt)
	}
	if _, ok := got.ProviderData["checkout"]; !ok {
		t.Fatal("expected payload merged into provider data")
	}
}

func TestMarkPaidUnknownPurchase(t *testing.T) {
	store := setupStore(t)

	_, err := store.MarkPaid(context.Background(), uuid.NewString(), time.Now(), model.ProviderData{"checkout": "x"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMergeProviderDataKeepsOtherKeys(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	p := seedPurchase(t, store)

	if err := store.MergeProviderData(ctx, p.ID, model.ProviderData{"session": "cs_1"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := store.MergeProviderData(ctx, p.ID, model.ProviderData{"last_ipn": map[string]any{"status": "1"}}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	got, err := store.GetPurchase(ctx, p.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if got.ProviderData["session"] != "cs_1" {
		t.Fatalf("expected session key preserved, got %v", got.ProviderData)
	}
	if _, ok := got.ProviderData["last_ipn"]; !ok {
		t.Fatalf("expected last_ipn key merged, got %v", got.ProviderData)
	}
}

func TestProcessWithdrawalSingleTransition(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	w, err := store.CreateWithdrawal(ctx, model.Withdrawal{
		ID:        uuid.NewString(),
		Address:   "TXYZaddress",
		AmountUSD: 50,
		FeeUSD:    2,
		Status:    model.WithdrawalPending,
	})
	if err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}

	rejected, err := store.ProcessWithdrawal(ctx, w.ID, model.WithdrawalRejected, "insufficient proof")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != model.WithdrawalRejected || rejected.ProcessedAt == nil || rejected.AdminNote != "insufficient proof" {
		t.Fatalf("unexpected withdrawal after reject: %+v", rejected)
	}

	if _, err := store.ProcessWithdrawal(ctx, w.ID, model.WithdrawalApproved, "second try"); !errors.Is(err, repository.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	got, err := store.GetWithdrawal(ctx, w.ID)
	if err != nil {
		t.Fatalf("get withdrawal: %v", err)
	}
	if got.Status != model.WithdrawalRejected || got.AdminNote != "insufficient proof" {
		t.Fatalf("first transition fields changed: %+v", got)
	}
}

func TestProcessWithdrawalNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.ProcessWithdrawal(context.Background(), uuid.NewString(), model.WithdrawalApproved, "")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
