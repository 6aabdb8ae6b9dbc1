package model

import "time"

// Provider identifies which external processor a purchase is routed through.
type Provider string

const (
	ProviderCheckout Provider = "checkout"
	ProviderCrypto   Provider = "crypto"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	return p == ProviderCheckout || p == ProviderCrypto
}

type PurchaseStatus string

const (
	PurchasePending PurchaseStatus = "pending"
	PurchasePaid    PurchaseStatus = "paid"
	PurchaseFailed  PurchaseStatus = "failed"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
	WithdrawalPaid     WithdrawalStatus = "paid"
)

// ProviderData is an open-ended audit trail of provider events, keyed by
// provider-specific names ("checkout", "coinpayments", "last_ipn", ...).
// Updates merge new keys in; existing keys for other providers are kept.
type ProviderData map[string]any

// Purchase is a subscription-payment attempt. Status is monotonic: once paid
// it is never regressed by a later callback.
type Purchase struct {
	ID           string         `json:"id"`
	UserEmail    string         `json:"user_email,omitempty"`
	PlanKey      string         `json:"plan_key"`
	PlanName     string         `json:"plan_name"`
	AmountUSD    float64        `json:"amount_usd"`
	Provider     Provider       `json:"provider"`
	ProviderData ProviderData   `json:"provider_data,omitempty"`
	Status       PurchaseStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
}

// Withdrawal is a cash-out request awaiting administrator adjudication.
// ProcessedAt is set exactly when the status leaves pending.
type Withdrawal struct {
	ID          string           `json:"id"`
	UserEmail   string           `json:"user_email,omitempty"`
	Address     string           `json:"address"`
	AmountUSD   float64          `json:"amount_usd"`
	FeeUSD      float64          `json:"fee_usd"`
	Status      WithdrawalStatus `json:"status"`
	AdminNote   string           `json:"admin_note,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
}

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email,omitempty"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	DepositWallet string    `json:"deposit_wallet,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type SubscribeRequest struct {
	Plan      string   `json:"plan"`
	Provider  Provider `json:"provider"`
	UserEmail string   `json:"userEmail"`
	Wallet    string   `json:"wallet"`
}

type WithdrawRequest struct {
	Address   string  `json:"address"`
	Amount    float64 `json:"amount"`
	UserEmail string  `json:"userEmail"`
}

// ReconciledEvent is published on the bus when a purchase transitions to paid.
type ReconciledEvent struct {
	PurchaseID string    `json:"purchase_id"`
	Provider   Provider  `json:"provider"`
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	AmountUSD  float64   `json:"amount_usd"`
	CreatedAt  time.Time `json:"created_at"`
}
