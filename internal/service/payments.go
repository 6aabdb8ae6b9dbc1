package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"subpay/internal/model"
	"subpay/internal/plan"
	"subpay/internal/provider"
	"subpay/internal/repository"
)

// TopicReconciled is the bus topic paid transitions are announced on.
const TopicReconciled = "purchases.reconciled"

// Payments implements PaymentService: purchase intake, the reconciliation
// engine for provider callbacks, and the withdrawal workflow.
type Payments struct {
	store    Store
	plans    plan.Catalog
	checkout CheckoutProvider
	crypto   CryptoProvider
	bus      repository.MessageBus
	replay   Replay
	logger   *slog.Logger

	now func() time.Time
}

func New(store Store, plans plan.Catalog, checkout CheckoutProvider, crypto CryptoProvider, bus repository.MessageBus, replay Replay, logger *slog.Logger) *Payments {
	if logger == nil {
		logger = slog.Default()
	}
	return &Payments{
		store:    store,
		plans:    plans,
		checkout: checkout,
		crypto:   crypto,
		bus:      bus,
		replay:   replay,
		logger:   logger,
		now:      time.Now,
	}
}

// Subscribe creates a pending purchase and opens a payment session at the
// selected provider. The purchase record is written before the provider call;
// if the call fails the record stays pending with no provider reference.
func (s *Payments) Subscribe(ctx context.Context, req model.SubscribeRequest) (string, error) {
	if req.Plan == "" || req.Provider == "" {
		return "", fmt.Errorf("%w: plan and provider are required", ErrInvalidRequest)
	}
	meta, ok := s.plans.Lookup(req.Plan)
	if !ok {
		return "", fmt.Errorf("%w: unknown plan %q", ErrInvalidRequest, req.Plan)
	}
	if !req.Provider.Valid() {
		return "", fmt.Errorf("%w: unknown provider %q", ErrInvalidRequest, req.Provider)
	}

	if wallet := strings.TrimSpace(req.Wallet); wallet != "" {
		err := s.store.UpsertUserByWallet(ctx, model.User{
			ID:            uuid.NewString(),
			Email:         strings.TrimSpace(req.UserEmail),
			WalletAddress: wallet,
		})
		if err != nil {
			// Identity rows are best effort; the purchase still proceeds.
			s.logger.Error("upsert user failed", "wallet", wallet, "error", err)
		}
	}

	purchase, err := s.store.CreatePurchase(ctx, model.Purchase{
		ID:        uuid.NewString(),
		UserEmail: strings.TrimSpace(req.UserEmail),
		PlanKey:   req.Plan,
		PlanName:  meta.Name,
		AmountUSD: meta.PriceUSD,
		Provider:  req.Provider,
		Status:    model.PurchasePending,
	})
	if err != nil {
		return "", fmt.Errorf("create purchase: %w", err)
	}

	switch req.Provider {
	case model.ProviderCheckout:
		sess, err := s.checkout.CreateSession(ctx, purchase.AmountUSD, purchase.ID, purchase.PlanName)
		if err != nil {
			s.logger.Error("checkout session failed", "purchase_id", purchase.ID, "error", err)
			return "", fmt.Errorf("%w: %v", ErrProvider, err)
		}
		if err := s.store.MergeProviderData(ctx, purchase.ID, model.ProviderData{"checkout_session_id": sess.ID}); err != nil {
			return "", fmt.Errorf("store session reference: %w", err)
		}
		s.logger.Info("purchase created", "purchase_id", purchase.ID, "provider", req.Provider, "plan", req.Plan)
		return sess.URL, nil

	case model.ProviderCrypto:
		tx, err := s.crypto.CreateTransaction(ctx, purchase.AmountUSD, purchase.ID, purchase.UserEmail)
		if err != nil {
			s.logger.Error("crypto transaction failed", "purchase_id", purchase.ID, "error", err)
			return "", fmt.Errorf("%w: %v", ErrProvider, err)
		}
		ref := model.ProviderData{"coinpayments_tx": map[string]any{"txn_id": tx.ID, "status_url": tx.StatusURL}}
		if err := s.store.MergeProviderData(ctx, purchase.ID, ref); err != nil {
			return "", fmt.Errorf("store transaction reference: %w", err)
		}
		s.logger.Info("purchase created", "purchase_id", purchase.ID, "provider", req.Provider, "plan", req.Plan)
		return tx.StatusURL, nil
	}

	return "", fmt.Errorf("%w: unknown provider %q", ErrInvalidRequest, req.Provider)
}

// HandleCheckoutWebhook verifies and applies a card-processor webhook.
// A nil return means the transport should acknowledge with 2xx; only
// verification failures and storage errors propagate.
func (s *Payments) HandleCheckoutWebhook(ctx context.Context, rawBody []byte, sigHeader string) error {
	ev, err := s.checkout.VerifyWebhook(rawBody, sigHeader)
	if err != nil {
		s.logger.Warn("checkout webhook rejected", "error", err)
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}

	if ev.Type != provider.EventSessionCompleted {
		return nil
	}
	purchaseID := ev.PurchaseID()
	if purchaseID == "" {
		s.logger.Warn("checkout event without purchase correlation", "event_id", ev.ID)
		return nil
	}

	if s.seenBefore(ctx, model.ProviderCheckout, ev.ID) {
		return nil
	}

	return s.markPaid(ctx, purchaseID, "checkout", json.RawMessage(ev.Raw), reconcileMeta{
		provider:  model.ProviderCheckout,
		eventID:   ev.ID,
		eventType: ev.Type,
	})
}

// HandleCryptoIPN verifies and applies a crypto-processor IPN. Statuses below
// the completion threshold only merge the notification into the purchase's
// provider data; completion applies the paid transition.
func (s *Payments) HandleCryptoIPN(ctx context.Context, rawBody []byte, hmacHeader string) error {
	fields, err := s.crypto.VerifyIPN(rawBody, hmacHeader)
	if err != nil {
		s.logger.Warn("crypto ipn rejected", "error", err)
		return fmt.Errorf("%w: %v", ErrVerification, err)
	}

	purchaseID := fields.Get("custom")
	if purchaseID == "" {
		s.logger.Warn("crypto ipn without purchase correlation", "txn_id", fields.Get("txn_id"))
		return nil
	}
	status, _ := strconv.Atoi(fields.Get("status"))
	payload := flattenValues(fields)

	if !provider.StatusComplete(status) {
		err := s.store.MergeProviderData(ctx, purchaseID, model.ProviderData{"last_ipn": payload})
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("crypto ipn for unknown purchase", "purchase_id", purchaseID)
			return nil
		}
		return err
	}

	eventID := fmt.Sprintf("%s:%d", fields.Get("txn_id"), status)
	if s.seenBefore(ctx, model.ProviderCrypto, eventID) {
		return nil
	}

	return s.markPaid(ctx, purchaseID, "coinpayments", payload, reconcileMeta{
		provider:  model.ProviderCrypto,
		eventID:   eventID,
		eventType: "ipn",
	})
}

type reconcileMeta struct {
	provider  model.Provider
	eventID   string
	eventType string
}

// markPaid is the idempotent paid transition. Unknown purchase ids are
// acknowledged without error so provider retries stop; an already-paid
// purchase only absorbs the payload and keeps its expiry.
func (s *Payments) markPaid(ctx context.Context, purchaseID, payloadKey string, payload any, meta reconcileMeta) error {
	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("callback for unknown purchase", "purchase_id", purchaseID, "provider", meta.provider)
			return nil
		}
		return err
	}

	days := s.plans.DaysOrDefault(purchase.PlanKey)
	expiresAt := s.now().Add(time.Duration(days) * 24 * time.Hour)

	applied, err := s.store.MarkPaid(ctx, purchaseID, expiresAt, model.ProviderData{payloadKey: payload})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if !applied {
		s.logger.Info("purchase already paid, callback absorbed", "purchase_id", purchaseID, "provider", meta.provider)
		return nil
	}

	s.logger.Info("purchase marked paid", "purchase_id", purchaseID, "provider", meta.provider, "expires_at", expiresAt)
	s.publishReconciled(model.ReconciledEvent{
		PurchaseID: purchaseID,
		Provider:   meta.provider,
		EventID:    meta.eventID,
		EventType:  meta.eventType,
		AmountUSD:  purchase.AmountUSD,
		CreatedAt:  s.now().UTC(),
	})
	return nil
}

// seenBefore is the replay fast path. Any cache failure counts as unseen;
// the conditional update in the store is the real guard.
func (s *Payments) seenBefore(ctx context.Context, prov model.Provider, eventID string) bool {
	if s.replay == nil {
		return false
	}
	seen, err := s.replay.Seen(ctx, string(prov), eventID)
	if err != nil {
		s.logger.Error("replay cache unavailable", "error", err)
		return false
	}
	if seen {
		s.logger.Info("duplicate callback suppressed", "provider", prov, "event_id", eventID)
	}
	return seen
}

func (s *Payments) publishReconciled(ev model.ReconciledEvent) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encode reconciled event", "error", err)
		return
	}
	if err := s.bus.Publish(TopicReconciled, data); err != nil {
		// Best effort: the audit worker catches up from provider redeliveries.
		s.logger.Error("publish reconciled event", "purchase_id", ev.PurchaseID, "error", err)
	}
}

// SyncReconciledEvent persists a bus event into the audit table. Called by
// the worker; duplicates are absorbed by the store.
func (s *Payments) SyncReconciledEvent(ctx context.Context, ev model.ReconciledEvent) error {
	return s.store.InsertReconciledEvent(ctx, ev)
}

func flattenValues(fields map[string][]string) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
