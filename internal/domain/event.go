package domain

import (
	"context"
	"time"
)

// EventType classifies broadcast events.
type EventType string

const (
	EventExecution        EventType = "execution"
	EventPriceUpdate      EventType = "price_update"
	EventPairUpdated      EventType = "pair_updated"
	EventPairDisabled     EventType = "pair_disabled"
	EventTwapState        EventType = "twap_state"
	EventTwapProgress     EventType = "twap_progress"
	EventUnhedgedPosition EventType = "unhedged_position"
)

// Event is a notification broadcast to external subscribers.
type Event struct {
	Type    EventType `json:"type"`
	Ts      time.Time `json:"ts"`
	Payload any       `json:"payload"`
}

// EventPublisher broadcasts events. Implementations must not block on slow
// subscribers and must never fail the caller's operation.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event)
}

// PriceUpdate is the payload of EventPriceUpdate.
type PriceUpdate struct {
	OrderID string          `json:"orderId"`
	Price   float64         `json:"price"`
	Record  ExecutionRecord `json:"record"`
}
