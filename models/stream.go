package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MessageType tags the canonical stream message union.
type MessageType string

const (
	MsgSnapshot     MessageType = "snapshot"
	MsgNewOrder     MessageType = "newOrder"
	MsgOrderDone    MessageType = "orderDone"
	MsgChangedOrder MessageType = "changedOrder"
	MsgLevel        MessageType = "level"
	MsgTicker       MessageType = "ticker"
	MsgTrade        MessageType = "trade"
	MsgError        MessageType = "error"
	MsgUnknown      MessageType = "unknown"
)

// StreamMessage is the canonical feed message. Adapters parse vendor
// wire formats into this shape before the core ever sees them; the core
// never touches raw exchange protocol bytes.
//
// Sequence is the internally assigned, per-book monotonic sequence.
// SourceSequence is the exchange's own sequence and is tracked but
// never validated here. Ticker, Trade and Unknown messages carry no
// meaningful Sequence.
type StreamMessage struct {
	Type           MessageType `json:"type"`
	ProductID      string      `json:"product_id"`
	Time           time.Time   `json:"time"`
	Sequence       int64       `json:"sequence,omitempty"`
	SourceSequence int64       `json:"source_sequence,omitempty"`

	Snapshot *BookState  `json:"snapshot,omitempty"`
	Order    *OrderEvent `json:"order,omitempty"`
	Level    *LevelEvent `json:"level,omitempty"`
	Ticker   *Ticker     `json:"ticker,omitempty"`
	Trade    *TradeEvent `json:"trade,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// OrderEvent is the payload of the order-level (level-3) messages.
// NewSize and ChangedAmount are only meaningful on changedOrder: a
// change carries either the absolute new size or a relative delta.
type OrderEvent struct {
	OrderID       string           `json:"order_id"`
	Price         decimal.Decimal  `json:"price"`
	Size          decimal.Decimal  `json:"size"`
	Side          Side             `json:"side"`
	NewSize       *decimal.Decimal `json:"new_size,omitempty"`
	ChangedAmount *decimal.Decimal `json:"changed_amount,omitempty"`
}

// LevelEvent is the payload of an aggregated (level-2) update: the
// absolute size now resting at a price. Size zero clears the price.
type LevelEvent struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Side  Side            `json:"side"`
	Count int             `json:"count,omitempty"`
}

// TradeEvent reports an execution observed on the feed. Informational
// only; it never mutates book state.
type TradeEvent struct {
	TradeID string          `json:"trade_id"`
	Price   decimal.Decimal `json:"price"`
	Size    decimal.Decimal `json:"size"`
	Side    Side            `json:"side"`
}
