package book

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bookflow/models"
)

// Engine owns the two price trees and the global order pool for one
// product. It is not safe for concurrent use: each engine is confined
// to the goroutine of the live book that owns it, per the message
// passing model used throughout this pipeline.
type Engine struct {
	productID string
	sequence  int64

	bids *Tree
	asks *Tree
	pool map[string]*models.Order

	bidsTotal  decimal.Decimal
	bidsValue  decimal.Decimal
	asksTotal  decimal.Decimal
	asksValue  decimal.Decimal
}

// New creates an empty engine. Sequence stays -1 until the first
// snapshot or state import.
func New(productID string) *Engine {
	e := &Engine{productID: productID}
	e.reset()
	return e
}

func (e *Engine) reset() {
	e.sequence = -1
	e.bids = NewTree(models.Buy)
	e.asks = NewTree(models.Sell)
	e.pool = make(map[string]*models.Order)
	e.bidsTotal = decimal.Zero
	e.bidsValue = decimal.Zero
	e.asksTotal = decimal.Zero
	e.asksValue = decimal.Zero
}

func (e *Engine) ProductID() string { return e.productID }

func (e *Engine) Sequence() int64 { return e.sequence }

func (e *Engine) SetSequence(seq int64) { e.sequence = seq }

// Tree returns the side's level tree. Read-only access for diffing and
// walks; mutation goes through the engine so the totals stay true.
func (e *Engine) Tree(side models.Side) *Tree {
	if side == models.Buy {
		return e.bids
	}
	return e.asks
}

func (e *Engine) addToTotals(side models.Side, size, value decimal.Decimal) {
	switch side {
	case models.Buy:
		e.bidsTotal = e.bidsTotal.Add(size)
		e.bidsValue = e.bidsValue.Add(value)
	case models.Sell:
		e.asksTotal = e.asksTotal.Add(size)
		e.asksValue = e.asksValue.Add(value)
	}
}

func (e *Engine) BidsTotal() decimal.Decimal      { return e.bidsTotal }
func (e *Engine) BidsValueTotal() decimal.Decimal { return e.bidsValue }
func (e *Engine) AsksTotal() decimal.Decimal      { return e.asksTotal }
func (e *Engine) AsksValueTotal() decimal.Decimal { return e.asksValue }

// NumOrders reports the size of the order pool.
func (e *Engine) NumOrders() int { return len(e.pool) }

// HasOrder reports whether the id is currently tracked.
func (e *Engine) HasOrder(id string) bool {
	_, ok := e.pool[id]
	return ok
}

// Order returns the tracked order for id, or nil.
func (e *Engine) Order(id string) *models.Order {
	return e.pool[id]
}

// Add registers a new order, creating its level if needed.
func (e *Engine) Add(o models.Order) error {
	if _, ok := e.pool[o.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
	}
	tree := e.Tree(o.Side)
	lvl := tree.Find(o.Price)
	if lvl == nil {
		lvl = NewLevel(o.Price)
		tree.Insert(lvl)
	}
	entry := o
	if !lvl.AddOrder(&entry) {
		return fmt.Errorf("%w: %s at level %s", ErrDuplicateOrder, o.ID, o.Price)
	}
	e.pool[o.ID] = &entry
	e.addToTotals(o.Side, o.Size, o.Price.Mul(o.Size))
	return nil
}

// Remove takes an order out of the book. An untracked id is a benign
// no-op and returns (nil, nil). A tracked order whose level is gone is
// tolerated only when its registered size is exactly zero: a market
// fill can zero a level out before the done message arrives. Any other
// mismatch is a consistency error.
func (e *Engine) Remove(id string) (*models.Order, error) {
	o, ok := e.pool[id]
	if !ok {
		return nil, nil
	}
	tree := e.Tree(o.Side)
	lvl := tree.Find(o.Price)
	if lvl == nil {
		if o.Size.IsZero() {
			delete(e.pool, id)
			return o, nil
		}
		return nil, fmt.Errorf("%w: no level at %s for order %s with size %s",
			ErrInconsistentBook, o.Price, id, o.Size)
	}
	removed := lvl.RemoveOrder(id)
	if removed == nil {
		if o.Size.IsZero() {
			delete(e.pool, id)
			return o, nil
		}
		return nil, fmt.Errorf("%w: order %s missing from its level %s",
			ErrInconsistentBook, id, o.Price)
	}
	if lvl.IsEmpty() {
		tree.Remove(lvl.Price)
	}
	delete(e.pool, id)
	e.addToTotals(o.Side, o.Size.Neg(), o.Price.Mul(o.Size).Neg())
	return o, nil
}

// Modify resizes an order, optionally moving it to the other side.
// Implemented as remove plus add so level totals and the pool stay
// consistent. A zero size keeps the order resting; it is not removed.
// Returns false when the id is untracked.
func (e *Engine) Modify(id string, newSize decimal.Decimal, newSide *models.Side) (bool, error) {
	if newSize.IsNegative() {
		return false, fmt.Errorf("%w: modify %s to %s", ErrNegativeSize, id, newSize)
	}
	o, ok := e.pool[id]
	if !ok {
		return false, nil
	}
	side := o.Side
	if newSide != nil {
		side = *newSide
	}
	removed, err := e.Remove(id)
	if err != nil {
		return false, err
	}
	next := models.Order{ID: id, Price: removed.Price, Size: newSize, Side: side}
	if err := e.Add(next); err != nil {
		return false, err
	}
	return true, nil
}

// syntheticOrderID names the single aggregate order standing in for a
// level-2 price point. Side-qualified so the two sides never collide.
func syntheticOrderID(side models.Side, price decimal.Decimal) string {
	return side.String() + "@" + price.String()
}

// AddLevel inserts a whole level, registering its orders in the pool.
// Used by SetLevel and state import; order-level feeds use Add.
func (e *Engine) AddLevel(side models.Side, lvl *Level) error {
	tree := e.Tree(side)
	for _, o := range lvl.Orders {
		if _, ok := e.pool[o.ID]; ok {
			return fmt.Errorf("%w: %s in level %s", ErrDuplicateOrder, o.ID, lvl.Price)
		}
	}
	if !tree.Insert(lvl) {
		return fmt.Errorf("%w: level %s already present on %s", ErrInconsistentBook, lvl.Price, side)
	}
	for _, o := range lvl.Orders {
		e.pool[o.ID] = o
	}
	e.addToTotals(side, lvl.TotalSize, lvl.TotalValue())
	return nil
}

// RemoveLevel drops a whole level and its orders from the pool.
// Returns false when no level exists at the price.
func (e *Engine) RemoveLevel(side models.Side, price decimal.Decimal) bool {
	tree := e.Tree(side)
	lvl := tree.Find(price)
	if lvl == nil {
		return false
	}
	for _, o := range lvl.Orders {
		delete(e.pool, o.ID)
	}
	tree.Remove(price)
	e.addToTotals(side, lvl.TotalSize.Neg(), lvl.TotalValue().Neg())
	return true
}

// SetLevel applies an absolute size-at-price: the prior level at that
// price, if any, is discarded and replaced wholesale. A level with no
// orders and no size simply clears the price. A level carrying a size
// but no orders gets one synthetic aggregate order.
func (e *Engine) SetLevel(side models.Side, lvl *Level) error {
	e.RemoveLevel(side, lvl.Price)
	if lvl.IsEmpty() && lvl.TotalSize.IsZero() {
		return nil
	}
	if lvl.IsEmpty() {
		size := lvl.TotalSize
		lvl = NewLevel(lvl.Price)
		lvl.AddOrder(&models.Order{
			ID:    syntheticOrderID(side, lvl.Price),
			Price: lvl.Price,
			Size:  size,
			Side:  side,
		})
	}
	return e.AddLevel(side, lvl)
}

// State renders a snapshot view, best price first on both sides. The
// view shares order pointers with the engine; callers needing isolation
// use DeepState.
func (e *Engine) State() *models.BookState {
	return e.snapshot(false)
}

// DeepState renders a fully copied snapshot safe to hold across
// further mutations.
func (e *Engine) DeepState() *models.BookState {
	return e.snapshot(true)
}

func (e *Engine) snapshot(deep bool) *models.BookState {
	st := &models.BookState{
		Sequence:  e.sequence,
		Bids:      make([]*models.PriceLevel, 0, e.bids.Len()),
		Asks:      make([]*models.PriceLevel, 0, e.asks.Len()),
		OrderPool: make(map[string]*models.Order, len(e.pool)),
	}
	e.bids.Walk(func(lvl *Level) bool {
		st.Bids = append(st.Bids, lvl.Snapshot(deep))
		return true
	})
	e.asks.Walk(func(lvl *Level) bool {
		st.Asks = append(st.Asks, lvl.Snapshot(deep))
		return true
	})
	for _, side := range [][]*models.PriceLevel{st.Bids, st.Asks} {
		for _, lvl := range side {
			for _, o := range lvl.Orders {
				st.OrderPool[o.ID] = o
			}
		}
	}
	return st
}

// FromState clears the engine and replays the snapshot level by level,
// rebuilding the pool as a side effect. Input orders are copied, never
// aliased.
func (e *Engine) FromState(st *models.BookState) error {
	e.reset()
	e.sequence = st.Sequence
	for _, lvl := range st.Asks {
		if err := e.SetLevel(models.Sell, levelFromState(lvl)); err != nil {
			return err
		}
	}
	for _, lvl := range st.Bids {
		if err := e.SetLevel(models.Buy, levelFromState(lvl)); err != nil {
			return err
		}
	}
	return nil
}

func levelFromState(src *models.PriceLevel) *Level {
	lvl := NewLevel(src.Price)
	if len(src.Orders) == 0 {
		lvl.TotalSize = src.TotalSize
		return lvl
	}
	for _, o := range src.Orders {
		lvl.AddOrder(o.Clone(false))
	}
	return lvl
}
