package diff

import (
	"github.com/google/uuid"

	"bookflow/book"
	"bookflow/models"
)

// CompareByOrder computes the symmetric difference of the two books'
// order pools into a fresh engine and returns its state. Orders are
// matched by id, then checked for value equality:
//
//   - only in final: added as-is.
//   - only in initial: added with negated size (needs cancelling).
//   - same id, identical price/size/side: excluded.
//   - same id, same price and side, different size: a single order for
//     the size delta, keeping the id.
//   - same id, moved price or side: the initial order negated under its
//     id plus the final order under a fresh id, so the replacement
//     never collides with the cancellation in the result pool.
func CompareByOrder(initial, final *book.Engine) *models.BookState {
	result := book.New(final.ProductID())
	result.SetSequence(final.Sequence())

	iPool := initial.State().OrderPool
	fPool := final.State().OrderPool

	for id, fo := range fPool {
		io, ok := iPool[id]
		if !ok {
			mustAdd(result, *fo.Clone(false))
			continue
		}
		if sameOrder(io, fo) {
			continue
		}
		if io.Price.Equal(fo.Price) && io.Side == fo.Side {
			mustAdd(result, models.Order{
				ID:    id,
				Price: fo.Price,
				Size:  fo.Size.Sub(io.Size),
				Side:  fo.Side,
			})
			continue
		}
		mustAdd(result, *io.Clone(true))
		replacement := *fo.Clone(false)
		replacement.ID = uuid.NewString()
		mustAdd(result, replacement)
	}

	for id, io := range iPool {
		if _, ok := fPool[id]; !ok {
			mustAdd(result, *io.Clone(true))
		}
	}

	return result.State()
}

func sameOrder(a, b *models.Order) bool {
	return a.Side == b.Side && a.Price.Equal(b.Price) && a.Size.Equal(b.Size)
}

// mustAdd feeds the freshly built result engine. Ids are deduplicated
// above, so an add failure here means a bug in this package, not bad
// input.
func mustAdd(e *book.Engine, o models.Order) {
	if err := e.Add(o); err != nil {
		panic(err)
	}
}
