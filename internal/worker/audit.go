package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"subpay/internal/model"
	"subpay/internal/service"
)

// AuditWorker listens for reconciled-purchase events and syncs them into the
// payment_events audit table.
type AuditWorker struct {
	svc      service.PaymentService
	natsConn *nats.Conn
}

func NewAuditWorker(svc service.PaymentService, nc *nats.Conn) *AuditWorker {
	return &AuditWorker{svc: svc, natsConn: nc}
}

// Start subscribes to the reconciled topic and blocks until ctx is
// cancelled. QueueSubscribe keeps a single consumer per event across
// replicas; the unique index on (provider, event_id) absorbs the rest.
func (w *AuditWorker) Start(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe(service.TopicReconciled, "subpay_audit", func(m *nats.Msg) {
		var ev model.ReconciledEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			slog.Error("worker: failed to unmarshal reconciled event", "error", err)
			return
		}

		if err := w.svc.SyncReconciledEvent(ctx, ev); err != nil {
			slog.Error("worker: failed to persist reconciled event",
				"purchase_id", ev.PurchaseID,
				"event_id", ev.EventID,
				"error", err,
			)
			return
		}

		slog.Info("worker: reconciled event persisted",
			"purchase_id", ev.PurchaseID,
			"provider", ev.Provider,
		)
	})
	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to NATS: %w", err)
	}

	slog.Info("audit worker is running")

	<-ctx.Done()

	slog.Info("audit worker shutting down, draining subscription...")
	return sub.Drain()
}

// Stop implements the infrastructure.Server interface (shutdown is via ctx).
func (w *AuditWorker) Stop(ctx context.Context) error {
	return nil
}
