package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"subpay/internal/model"
)

// InsertReconciledEvent appends a reconciliation event to the payment_events
// audit table. The unique (provider, event_id) index plus ON CONFLICT DO
// NOTHING makes the worker safe under redelivered bus messages.
func (s *Store) InsertReconciledEvent(ctx context.Context, ev model.ReconciledEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO payment_events (provider, event_id, purchase_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		ON CONFLICT (provider, event_id) DO NOTHING`,
		string(ev.Provider), ev.EventID, ev.PurchaseID, ev.EventType, payload, ev.CreatedAt,
	)
	return err
}
