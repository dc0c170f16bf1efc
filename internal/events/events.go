package events

import "context"

// StreamEscrow carries every state transition the engine accepts.
const StreamEscrow = "events:escrow"

// Event types
const (
	EventMerchantRegistered = "merchant_registered"
	EventPaymentReceived    = "payment_received"
	EventPaymentReleased    = "payment_released"
	EventPaymentDisputed    = "payment_disputed"
	EventPaymentResolved    = "payment_resolved"
	EventPayoutRequested    = "payout_requested"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
