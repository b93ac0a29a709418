package book

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bookflow/models"
)

// StartPoint lets a value walk resume mid-level: Size is treated as
// already consumed from the level at Price before accumulation starts.
type StartPoint struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// CumulativeLevel is one step of a value walk. TotalSize and Value
// cover only the portion of the level the walk consumed; CumSize and
// CumValue run across the walk so far. Orders is a read-only view of
// the underlying level's orders.
type CumulativeLevel struct {
	Price     decimal.Decimal `json:"price"`
	TotalSize decimal.Decimal `json:"total_size"`
	Value     decimal.Decimal `json:"value"`
	CumSize   decimal.Decimal `json:"cum_size"`
	CumValue  decimal.Decimal `json:"cum_value"`
	Orders    []*models.Order `json:"orders,omitempty"`
}

// OrdersForValue walks the counter side of a taker order best to worst,
// accumulating base size (useQuote false) or quote value (useQuote
// true) until the target is met. The last level is split so the
// cumulative total lands exactly on the target. A buy consumes asks, a
// sell consumes bids.
func (e *Engine) OrdersForValue(side models.Side, value decimal.Decimal, useQuote bool, start *StartPoint) ([]CumulativeLevel, error) {
	tree := e.Tree(side.Opposite())
	if tree.Len() == 0 {
		return nil, fmt.Errorf("%w: %s has no liquidity for a %s of %s",
			ErrEmptyBook, side.Opposite(), side, value)
	}

	var out []CumulativeLevel
	cumSize := decimal.Zero
	cumValue := decimal.Zero

	for c := tree.Cursor(); c.Valid(); c.Next() {
		lvl := c.Level()
		avail := lvl.TotalSize
		if start != nil && lvl.Price.Equal(start.Price) {
			if start.Size.GreaterThan(avail) {
				return nil, fmt.Errorf("%w: start %s exceeds level %s size %s",
					ErrStartPointExceedsLevel, start.Size, lvl.Price, avail)
			}
			avail = avail.Sub(start.Size)
			if avail.IsZero() {
				continue
			}
		}

		accumulated := cumSize
		contribution := avail
		if useQuote {
			accumulated = cumValue
			contribution = avail.Mul(lvl.Price)
		}

		// The level where the running total reaches the target is by
		// definition the last one; stop there even when a rounded
		// quote division leaves the cumulative a hair short.
		take := avail
		last := false
		if accumulated.Add(contribution).GreaterThanOrEqual(value) {
			needed := value.Sub(accumulated)
			if useQuote {
				take = needed.Div(lvl.Price)
			} else {
				take = needed
			}
			last = true
		}

		cumSize = cumSize.Add(take)
		cumValue = cumValue.Add(take.Mul(lvl.Price))
		out = append(out, CumulativeLevel{
			Price:     lvl.Price,
			TotalSize: take,
			Value:     take.Mul(lvl.Price),
			CumSize:   cumSize,
			CumValue:  cumValue,
			Orders:    lvl.Orders,
		})

		if last {
			break
		}
	}
	return out, nil
}
