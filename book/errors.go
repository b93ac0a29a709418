package book

import "errors"

// Consistency errors indicate the book has diverged from the feed. They
// are never repaired automatically; a supervising consumer decides
// whether to resynchronise or halt.
var (
	// ErrInconsistentBook wraps any structural divergence between the
	// trees, the totals and the order pool.
	ErrInconsistentBook = errors.New("book: inconsistent state")

	// ErrDuplicateOrder is returned when an order id is added twice.
	ErrDuplicateOrder = errors.New("book: duplicate order id")

	// ErrNegativeSize is returned when a modify requests a size below
	// zero. Zero itself is a valid resting size.
	ErrNegativeSize = errors.New("book: negative order size")

	// ErrEmptyBook is returned when a value walk is requested on a side
	// with no levels. Caller contract violation, not book corruption.
	ErrEmptyBook = errors.New("book: no levels on side")

	// ErrStartPointExceedsLevel is returned when a value walk start
	// point claims more size than its level holds.
	ErrStartPointExceedsLevel = errors.New("book: start point size exceeds level size")
)
