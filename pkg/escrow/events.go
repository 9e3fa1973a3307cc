package escrow

import "github.com/ethereum/go-ethereum/common"

// EventType identifies a lifecycle notification
type EventType string

const (
	EventOrderCreated   EventType = "order_created"
	EventOrderCommitted EventType = "order_committed"
	EventOrderCancelled EventType = "order_cancelled"
	EventOrderFilled    EventType = "order_filled"
)

// Event is emitted exactly once per successful mutating operation
type Event struct {
	Type      EventType      `json:"type"`
	OrderID   uint64         `json:"orderId"`
	Creator   common.Address `json:"creator"`
	Filler    common.Address `json:"filler,omitempty"` // zero unless committed/filled
	Timestamp int64          `json:"timestamp"`        // Unix milliseconds
}

// Emitter receives lifecycle notifications. Emission happens after the
// operation's state change is durable; emitters must not block.
type Emitter interface {
	Emit(ev Event)
}

// NopEmitter discards all events
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}
