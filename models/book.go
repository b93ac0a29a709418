package models

import (
	"github.com/shopspring/decimal"
)

// Order is a single resting order tracked by the book. Identity is ID,
// unique within a book's order pool. Price never changes once the order
// exists; a price move is modelled as remove plus add.
type Order struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Side  Side            `json:"side"`
}

// Clone returns a copy of the order, optionally with the size negated.
// Negated copies are how book diffs mark orders that need cancelling.
func (o *Order) Clone(negate bool) *Order {
	c := *o
	if negate {
		c.Size = c.Size.Neg()
	}
	return &c
}

// PriceLevel is the aggregate of all orders resting at one price on one
// side. TotalSize matches the sum of the order sizes; diff levels may
// carry a negative TotalSize.
type PriceLevel struct {
	Price     decimal.Decimal `json:"price"`
	TotalSize decimal.Decimal `json:"total_size"`
	Orders    []*Order        `json:"orders,omitempty"`
}

// TotalValue is the quote-currency value of the level.
func (l *PriceLevel) TotalValue() decimal.Decimal {
	return l.Price.Mul(l.TotalSize)
}

// BookState is a snapshot view of an order book. Bids and Asks are
// ordered best price first. OrderPool is derivable from the levels and
// is omitted from the wire form.
type BookState struct {
	Sequence int64         `json:"sequence"`
	Bids     []*PriceLevel `json:"bids"`
	Asks     []*PriceLevel `json:"asks"`

	OrderPool map[string]*Order `json:"-"`
}

// Ticker is the ticker projection a live book maintains next to the
// book structure. It never participates in sequence tracking.
type Ticker struct {
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Volume    decimal.Decimal `json:"volume"`
	TradeID   string          `json:"trade_id,omitempty"`
	Time      int64           `json:"time"`
}
