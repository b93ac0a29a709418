package live

import "time"

// BookStatus is a point-in-time summary of one live book, safe to hand
// across goroutines. Build it from the goroutine that owns the book.
type BookStatus struct {
	ProductID      string    `json:"product_id"`
	State          string    `json:"state"`
	Sequence       int64     `json:"sequence"`
	SourceSequence int64     `json:"source_sequence"`
	LastUpdate     time.Time `json:"last_update"`
	Bids           int       `json:"bids"`
	Asks           int       `json:"asks"`
	DroppedEvents  int64     `json:"dropped_events"`
}

// Status summarises the book. Must be called from the owning goroutine.
func (b *Book) Status() BookStatus {
	state := b.engine.State()
	return BookStatus{
		ProductID:      b.productID,
		State:          b.syncState.String(),
		Sequence:       b.engine.Sequence(),
		SourceSequence: b.sourceSequence,
		LastUpdate:     b.lastUpdate,
		Bids:           len(state.Bids),
		Asks:           len(state.Asks),
		DroppedEvents:  b.dropped,
	}
}
