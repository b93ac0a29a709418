package book

import (
	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"

	"bookflow/models"
)

// priceKey orders decimal prices inside the skip list. The bid tree
// uses the descending variant so that Front() is always the best price
// on either side.
type priceKey struct {
	desc bool
}

func (k priceKey) Compare(lhs, rhs interface{}) int {
	l := lhs.(decimal.Decimal)
	r := rhs.(decimal.Decimal)
	c := l.Cmp(r)
	if k.desc {
		return -c
	}
	return c
}

func (k priceKey) CalcScore(key interface{}) float64 {
	f, _ := key.(decimal.Decimal).Float64()
	if k.desc {
		return -f
	}
	return f
}

// Tree is an ordered price -> *Level container for one book side, best
// price first. Operations are O(log n); cursor steps are O(1).
type Tree struct {
	list *skiplist.SkipList
	side models.Side
}

func NewTree(side models.Side) *Tree {
	return &Tree{
		list: skiplist.New(priceKey{desc: side == models.Buy}),
		side: side,
	}
}

func (t *Tree) Side() models.Side { return t.side }

func (t *Tree) Len() int { return t.list.Len() }

// Insert adds a level. Returns false if the price is already present.
func (t *Tree) Insert(lvl *Level) bool {
	if t.list.Get(lvl.Price) != nil {
		return false
	}
	t.list.Set(lvl.Price, lvl)
	return true
}

// Find returns the level at exactly price, or nil.
func (t *Tree) Find(price decimal.Decimal) *Level {
	el := t.list.Get(price)
	if el == nil {
		return nil
	}
	return el.Value.(*Level)
}

// Remove deletes the level at price. Returns false when absent.
func (t *Tree) Remove(price decimal.Decimal) bool {
	return t.list.Remove(price) != nil
}

// Best returns the best-priced level: highest for bids, lowest for
// asks. Nil when the tree is empty.
func (t *Tree) Best() *Level {
	el := t.list.Front()
	if el == nil {
		return nil
	}
	return el.Value.(*Level)
}

// Worst returns the level furthest from the touch, or nil.
func (t *Tree) Worst() *Level {
	el := t.list.Back()
	if el == nil {
		return nil
	}
	return el.Value.(*Level)
}

// Walk visits levels best to worst until fn returns false.
func (t *Tree) Walk(fn func(*Level) bool) {
	for el := t.list.Front(); el != nil; el = el.Next() {
		if !fn(el.Value.(*Level)) {
			return
		}
	}
}

// Cursor is a bidirectional iterator over the tree in best-to-worst
// order. Structural changes to the tree invalidate open cursors;
// callers mutate only between traversals.
type Cursor struct {
	el *skiplist.Element
}

// Cursor positions at the best level.
func (t *Tree) Cursor() *Cursor {
	return &Cursor{el: t.list.Front()}
}

// CursorAt positions at the first level at price or worse. For bids
// that is the first level priced at or below price; for asks at or
// above.
func (t *Tree) CursorAt(price decimal.Decimal) *Cursor {
	return &Cursor{el: t.list.Find(price)}
}

func (c *Cursor) Valid() bool { return c.el != nil }

func (c *Cursor) Level() *Level {
	if c.el == nil {
		return nil
	}
	return c.el.Value.(*Level)
}

// Next advances toward worse prices.
func (c *Cursor) Next() {
	if c.el != nil {
		c.el = c.el.Next()
	}
}

// Prev steps back toward better prices.
func (c *Cursor) Prev() {
	if c.el != nil {
		c.el = c.el.Prev()
	}
}
