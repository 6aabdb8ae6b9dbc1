package service

import (
	"context"
	"errors"
	"net/url"
	"time"

	"subpay/internal/model"
	"subpay/internal/provider"
)

// Taxonomy of request-level failures. NotFound and invalid-transition errors
// come from the repository sentinels and pass through unchanged.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrVerification   = errors.New("callback verification failed")
	ErrProvider       = errors.New("payment provider call failed")
)

// PaymentService is the business surface all transports depend on.
type PaymentService interface {
	Subscribe(ctx context.Context, req model.SubscribeRequest) (redirectURL string, err error)
	HandleCheckoutWebhook(ctx context.Context, rawBody []byte, sigHeader string) error
	HandleCryptoIPN(ctx context.Context, rawBody []byte, hmacHeader string) error
	RequestWithdrawal(ctx context.Context, req model.WithdrawRequest) (model.Withdrawal, error)
	ProcessWithdrawal(ctx context.Context, id string, approve bool, note string) (model.Withdrawal, error)
	ListUsers(ctx context.Context, limit int) ([]model.User, error)
	ListPurchases(ctx context.Context, limit int) ([]model.Purchase, error)
	ListWithdrawals(ctx context.Context, limit int) ([]model.Withdrawal, error)
	SyncReconciledEvent(ctx context.Context, ev model.ReconciledEvent) error
}

// Store is what the service needs from the record store. Implemented by
// *repository.Store; tests substitute an in-memory fake.
type Store interface {
	CreatePurchase(ctx context.Context, p model.Purchase) (model.Purchase, error)
	GetPurchase(ctx context.Context, id string) (model.Purchase, error)
	MarkPaid(ctx context.Context, id string, expiresAt time.Time, payload model.ProviderData) (applied bool, err error)
	MergeProviderData(ctx context.Context, id string, payload model.ProviderData) error
	ListPurchases(ctx context.Context, limit int) ([]model.Purchase, error)

	CreateWithdrawal(ctx context.Context, w model.Withdrawal) (model.Withdrawal, error)
	ProcessWithdrawal(ctx context.Context, id string, status model.WithdrawalStatus, note string) (model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, limit int) ([]model.Withdrawal, error)

	UpsertUserByWallet(ctx context.Context, u model.User) error
	ListUsers(ctx context.Context, limit int) ([]model.User, error)

	InsertReconciledEvent(ctx context.Context, ev model.ReconciledEvent) error
}

// CheckoutProvider is the card processor boundary.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, amountUSD float64, purchaseID, planName string) (provider.Session, error)
	VerifyWebhook(rawBody []byte, sigHeader string) (provider.Event, error)
}

// CryptoProvider is the cryptocurrency processor boundary.
type CryptoProvider interface {
	CreateTransaction(ctx context.Context, amountUSD float64, purchaseID, buyerEmail string) (provider.Transaction, error)
	VerifyIPN(rawBody []byte, hmacHeader string) (url.Values, error)
}

// Replay is the advisory callback deduplicator. Implemented by
// *repository.ReplayCache; a nil Replay disables the fast path.
type Replay interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
}
