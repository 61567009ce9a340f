package events

import "context"

// Event types
const (
	EventOrderStatusChanged = "order_status_changed"
	EventAccessGranted      = "access_granted"
	EventDeliveryFailed     = "delivery_failed"
)

// StreamOrders is the channel every order-related event is published to.
const StreamOrders = "shop:orders"

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
