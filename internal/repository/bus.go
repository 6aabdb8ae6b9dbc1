package repository

// MessageBus decouples the reconciliation engine from the concrete event
// transport. The NATS implementation lives in internal/transport/nats.
type MessageBus interface {
	Publish(topic string, data []byte) error
}
