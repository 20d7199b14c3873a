package orders

import (
	"encoding/json"
	"time"
)

// Stream event types carried over the SSE change feed.
const (
	StreamConnection     = "connection"
	StreamNewOrder       = "new-order"
	StreamOrderUpdated   = "order-updated"
	StreamOrderCompleted = "order-completed"
	StreamErrorEvent     = "error"
)

// StreamEvent is one SSE frame payload (`data: <json>\n\n`).
type StreamEvent struct {
	Type          string `json:"type"`
	Order         *Order `json:"order,omitempty"`
	OperationType string `json:"operationType,omitempty"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
	Timestamp     string `json:"timestamp"` // RFC3339
	OutletID      string `json:"outletId,omitempty"`
}

// Kafka event types published by the API for downstream consumers
// (kitchen display, cache warmers).
const (
	EventOrderCreated   = "OrderCreated"
	EventOrderUpdated   = "OrderUpdated"
	EventOrderCompleted = "OrderCompleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderEventPayload struct {
	Order Order `json:"order"`
}
