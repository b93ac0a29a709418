// Package diff computes minimal differences between two order book
// states and turns them into trader command sequences. All functions
// are pure: input engines are only read, never mutated.
package diff

import (
	"github.com/shopspring/decimal"

	"bookflow/book"
	"bookflow/models"
)

// CompareByLevel merges the two books side by side in price order and
// reports every price point whose aggregate size differs.
//
// A level only in initial comes out with a negated total and negated
// order copies: that much needs cancelling. A level only in final is
// copied as-is. A level in both with differing totals carries either
// the absolute final size (absolute) or final minus initial, and either
// initial's negated orders (keepInitial, for cancel-then-replace) or
// final's. Equal totals produce no entry even when the constituent
// orders differ.
func CompareByLevel(initial, final *book.Engine, absolute, keepInitial bool) *models.BookState {
	out := &models.BookState{Sequence: final.Sequence()}
	out.Bids = compareSide(initial.Tree(models.Buy), final.Tree(models.Buy), absolute, keepInitial)
	out.Asks = compareSide(initial.Tree(models.Sell), final.Tree(models.Sell), absolute, keepInitial)
	return out
}

func compareSide(initial, final *book.Tree, absolute, keepInitial bool) []*models.PriceLevel {
	out := []*models.PriceLevel{}
	ci := initial.Cursor()
	cf := final.Cursor()

	for ci.Valid() || cf.Valid() {
		switch {
		case !cf.Valid():
			out = append(out, negatedLevel(ci.Level()))
			ci.Next()
		case !ci.Valid():
			out = append(out, copiedLevel(cf.Level()))
			cf.Next()
		default:
			li, lf := ci.Level(), cf.Level()
			cmp := treeOrderCmp(initial.Side(), li.Price, lf.Price)
			switch {
			case cmp < 0: // initial's price has no counterpart in final
				out = append(out, negatedLevel(li))
				ci.Next()
			case cmp > 0: // final's price has no counterpart in initial
				out = append(out, copiedLevel(lf))
				cf.Next()
			default:
				if !li.TotalSize.Equal(lf.TotalSize) {
					out = append(out, changedLevel(li, lf, absolute, keepInitial))
				}
				ci.Next()
				cf.Next()
			}
		}
	}
	return out
}

// treeOrderCmp orders two prices the way the side's tree does: best
// first. Negative means a walks before b.
func treeOrderCmp(side models.Side, a, b decimal.Decimal) int {
	if side == models.Buy {
		return b.Cmp(a)
	}
	return a.Cmp(b)
}

func negatedLevel(lvl *book.Level) *models.PriceLevel {
	out := &models.PriceLevel{
		Price:     lvl.Price,
		TotalSize: lvl.TotalSize.Neg(),
		Orders:    make([]*models.Order, len(lvl.Orders)),
	}
	for i, o := range lvl.Orders {
		out.Orders[i] = o.Clone(true)
	}
	return out
}

func copiedLevel(lvl *book.Level) *models.PriceLevel {
	return lvl.Snapshot(true)
}

func changedLevel(li, lf *book.Level, absolute, keepInitial bool) *models.PriceLevel {
	out := &models.PriceLevel{Price: lf.Price}
	if absolute {
		out.TotalSize = lf.TotalSize
	} else {
		out.TotalSize = lf.TotalSize.Sub(li.TotalSize)
	}
	if keepInitial {
		out.Orders = make([]*models.Order, len(li.Orders))
		for i, o := range li.Orders {
			out.Orders[i] = o.Clone(true)
		}
	} else {
		out.Orders = make([]*models.Order, len(lf.Orders))
		for i, o := range lf.Orders {
			out.Orders[i] = o.Clone(false)
		}
	}
	return out
}
