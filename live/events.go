package live

import (
	"time"

	"bookflow/models"
)

// EventType names the domain events a live book emits.
type EventType string

const (
	EventSnapshotApplied EventType = "snapshotApplied"
	EventUpdateApplied   EventType = "updateApplied"
	EventTradeObserved   EventType = "tradeObserved"
	EventGapDetected     EventType = "gapDetected"
	EventInconsistency   EventType = "inconsistentState"
)

// Event is published once per triggering input, in application order.
// Message always references the input that caused the event so a
// consumer can reconstruct what happened.
type Event struct {
	Type      EventType             `json:"type"`
	ProductID string                `json:"product_id"`
	Sequence  int64                 `json:"sequence"`
	Expected  int64                 `json:"expected,omitempty"`
	Message   *models.StreamMessage `json:"message,omitempty"`
	Err       error                 `json:"-"`
	Time      time.Time             `json:"time"`
}
