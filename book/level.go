package book

import (
	"github.com/shopspring/decimal"

	"bookflow/models"
)

// Level aggregates the orders resting at one price on one side. Orders
// keep arrival order. A level with no orders must not stay in a tree;
// the engine removes it as soon as it empties.
type Level struct {
	Price     decimal.Decimal
	TotalSize decimal.Decimal
	Orders    []*models.Order
}

func NewLevel(price decimal.Decimal) *Level {
	return &Level{Price: price, TotalSize: decimal.Zero}
}

// TotalValue is Price * TotalSize.
func (l *Level) TotalValue() decimal.Decimal {
	return l.Price.Mul(l.TotalSize)
}

// AddOrder appends an order and grows the level total. Returns false if
// an order with the same id is already at the level.
func (l *Level) AddOrder(o *models.Order) bool {
	for _, existing := range l.Orders {
		if existing.ID == o.ID {
			return false
		}
	}
	l.Orders = append(l.Orders, o)
	l.TotalSize = l.TotalSize.Add(o.Size)
	return true
}

// RemoveOrder unlinks the order with the given id, shrinking the level
// total. Returns nil when the id is not present.
func (l *Level) RemoveOrder(id string) *models.Order {
	for i, o := range l.Orders {
		if o.ID == id {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			l.TotalSize = l.TotalSize.Sub(o.Size)
			return o
		}
	}
	return nil
}

func (l *Level) IsEmpty() bool {
	return len(l.Orders) == 0
}

// Snapshot converts the level into its state form. With deep set, the
// orders are copied; otherwise the pointers are shared with the engine.
func (l *Level) Snapshot(deep bool) *models.PriceLevel {
	out := &models.PriceLevel{
		Price:     l.Price,
		TotalSize: l.TotalSize,
		Orders:    make([]*models.Order, len(l.Orders)),
	}
	for i, o := range l.Orders {
		if deep {
			out.Orders[i] = o.Clone(false)
		} else {
			out.Orders[i] = o
		}
	}
	return out
}
