// Package live wraps an order book engine with sequence tracking and a
// feed message dispatcher. One Book owns one engine and must be driven
// from a single goroutine; products run in parallel by giving each its
// own Book and message channel.
package live

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bookflow/book"
	"bookflow/internal/metrics"
	"bookflow/logger"
	"bookflow/models"
)

// SyncState is the gap-detection state machine state.
type SyncState int

const (
	// StateAwaitingSnapshot gates order-level messages until a full
	// snapshot arrives.
	StateAwaitingSnapshot SyncState = iota
	// StateSynced applies messages in strict sequence order.
	StateSynced
	// StateErrored is terminal: a strict-mode gap or a consistency
	// error stopped the book.
	StateErrored
)

func (s SyncState) String() string {
	switch s {
	case StateAwaitingSnapshot:
		return "awaiting_snapshot"
	case StateSynced:
		return "synced"
	default:
		return "errored"
	}
}

// seqClass is the outcome of validating one incoming sequence number.
type seqClass int

const (
	seqAlreadyProcessed seqClass = iota
	seqOK
	seqGap
)

var (
	// ErrSequenceGap marks a skipped sequence number in strict mode.
	ErrSequenceGap = errors.New("live: sequence gap")

	// ErrBookErrored rejects ingestion on a terminally failed book.
	ErrBookErrored = errors.New("live: book is in errored state")
)

// GapError carries the expected and received sequence numbers of a
// detected gap.
type GapError struct {
	Expected int64
	Actual   int64
}

func (e *GapError) Error() string {
	return fmt.Sprintf("sequence gap: expected %d, got %d", e.Expected, e.Actual)
}

func (e *GapError) Unwrap() error { return ErrSequenceGap }

// Book applies feed messages to its engine in sequence order. In
// strict mode a gap is fatal; otherwise the book drops back to
// awaiting a snapshot and reports the gap so the feed can resync.
type Book struct {
	productID string
	engine    *book.Engine
	strict    bool

	syncState        SyncState
	snapshotReceived bool
	sourceSequence   int64
	lastUpdate       time.Time
	ticker           models.Ticker

	events  chan<- Event
	dropped int64
	log     *logger.Log
}

// NewBook creates a live book for one product. Events are published to
// the provided channel without blocking; a full channel drops the
// event and counts the drop.
func NewBook(productID string, strict bool, events chan<- Event) *Book {
	return &Book{
		productID: productID,
		engine:    book.New(productID),
		strict:    strict,
		syncState: StateAwaitingSnapshot,
		events:    events,
		log:       logger.GetLogger(),
	}
}

func (b *Book) ProductID() string { return b.productID }

func (b *Book) State() *models.BookState { return b.engine.State() }

func (b *Book) DeepState() *models.BookState { return b.engine.DeepState() }

func (b *Book) Sequence() int64 { return b.engine.Sequence() }

// SourceSequence is the upstream exchange's own sequence as of the
// last snapshot, tracked but never validated.
func (b *Book) SourceSequence() int64 { return b.sourceSequence }

func (b *Book) SyncState() SyncState { return b.syncState }

func (b *Book) LastUpdate() time.Time { return b.lastUpdate }

func (b *Book) Ticker() models.Ticker { return b.ticker }

// DroppedEvents reports how many events were discarded because the
// event channel was full.
func (b *Book) DroppedEvents() int64 { return b.dropped }

// Engine grants read access to the underlying engine for diffing and
// value walks. Mutation stays inside Ingest.
func (b *Book) Engine() *book.Engine { return b.engine }

// Snapshot returns an independent copy of the current state along with
// the sync state. Must be called from the owning goroutine; concurrent
// readers go through a snapshot request to that goroutine instead.
func (b *Book) Snapshot() (*models.BookState, SyncState) {
	return b.engine.DeepState(), b.syncState
}

// Ingest applies one feed message. Benign conditions (duplicates,
// done-for-untracked, change without a usable size) return nil;
// strict-mode gaps and consistency errors move the book to
// StateErrored and return the error.
func (b *Book) Ingest(msg *models.StreamMessage) error {
	if b.syncState == StateErrored {
		return ErrBookErrored
	}
	if msg == nil {
		return nil
	}

	switch msg.Type {
	case models.MsgTicker:
		if msg.Ticker != nil {
			b.ticker = *msg.Ticker
			b.ticker.ProductID = b.productID
		}
		return nil
	case models.MsgTrade:
		b.emit(Event{
			Type:      EventTradeObserved,
			ProductID: b.productID,
			Sequence:  b.engine.Sequence(),
			Message:   msg,
			Time:      time.Now(),
		})
		return nil
	case models.MsgSnapshot:
		return b.applySnapshot(msg)
	case models.MsgLevel:
		return b.applyLevel(msg)
	case models.MsgNewOrder, models.MsgOrderDone, models.MsgChangedOrder:
		return b.applyOrderMessage(msg)
	case models.MsgError:
		b.log.WithComponent("live_book").WithFields(logger.Fields{
			"product": b.productID,
			"reason":  msg.Reason,
		}).Warn("feed reported an error message")
		return nil
	default:
		return nil
	}
}

func (b *Book) applySnapshot(msg *models.StreamMessage) error {
	if msg.Snapshot == nil {
		b.log.WithComponent("live_book").WithFields(logger.Fields{
			"product": b.productID,
		}).Warn("snapshot message without snapshot payload")
		return nil
	}
	if err := b.engine.FromState(msg.Snapshot); err != nil {
		return b.fail(msg, err)
	}
	b.syncState = StateSynced
	b.snapshotReceived = true
	b.sourceSequence = msg.SourceSequence
	b.lastUpdate = msg.Time
	b.emit(Event{
		Type:      EventSnapshotApplied,
		ProductID: b.productID,
		Sequence:  b.engine.Sequence(),
		Message:   msg,
		Time:      time.Now(),
	})
	return nil
}

// applyLevel handles level-2 absolute updates. They are self-describing
// so they may populate the book before any snapshot; the very first
// message simply adopts its sequence number.
func (b *Book) applyLevel(msg *models.StreamMessage) error {
	if msg.Level == nil {
		return nil
	}
	if b.engine.Sequence() >= 0 {
		switch b.classify(msg.Sequence) {
		case seqAlreadyProcessed:
			return nil
		case seqGap:
			return b.gap(msg)
		}
	}

	lvl := book.NewLevel(msg.Level.Price)
	lvl.TotalSize = msg.Level.Size
	if err := b.engine.SetLevel(msg.Level.Side, lvl); err != nil {
		return b.fail(msg, err)
	}
	b.advance(msg)
	return nil
}

func (b *Book) applyOrderMessage(msg *models.StreamMessage) error {
	// Order-level deltas are meaningless without a base state; before
	// the first snapshot they are dropped without comment.
	if !b.snapshotReceived {
		return nil
	}
	if msg.Order == nil {
		return nil
	}

	switch b.classify(msg.Sequence) {
	case seqAlreadyProcessed:
		return nil
	case seqGap:
		return b.gap(msg)
	}

	ev := msg.Order
	switch msg.Type {
	case models.MsgNewOrder:
		err := b.engine.Add(models.Order{
			ID:    ev.OrderID,
			Price: ev.Price,
			Size:  ev.Size,
			Side:  ev.Side,
		})
		if err != nil {
			return b.fail(msg, err)
		}
	case models.MsgOrderDone:
		// The exchange reports done for orders this book never saw,
		// e.g. immediately filled or stop orders. Not an error.
		if b.engine.HasOrder(ev.OrderID) {
			if _, err := b.engine.Remove(ev.OrderID); err != nil {
				return b.fail(msg, err)
			}
		}
	case models.MsgChangedOrder:
		newSize, ok := b.resolveChangedSize(ev)
		if !ok {
			b.advance(msg)
			return nil
		}
		if _, err := b.engine.Modify(ev.OrderID, newSize, nil); err != nil {
			return b.fail(msg, err)
		}
	}

	b.advance(msg)
	return nil
}

// resolveChangedSize picks the absolute new size from the message, or
// derives it from the relative delta against the tracked order. A
// change with neither field, or a delta for an untracked order, is
// unusable.
func (b *Book) resolveChangedSize(ev *models.OrderEvent) (decimal.Decimal, bool) {
	if ev.NewSize != nil {
		return *ev.NewSize, true
	}
	if ev.ChangedAmount != nil {
		current := b.engine.Order(ev.OrderID)
		if current == nil {
			return decimal.Zero, false
		}
		return current.Size.Add(*ev.ChangedAmount), true
	}
	return decimal.Zero, false
}

func (b *Book) classify(seq int64) seqClass {
	current := b.engine.Sequence()
	switch {
	case seq <= current:
		return seqAlreadyProcessed
	case seq == current+1:
		return seqOK
	default:
		return seqGap
	}
}

func (b *Book) gap(msg *models.StreamMessage) error {
	expected := b.engine.Sequence() + 1
	b.emit(Event{
		Type:      EventGapDetected,
		ProductID: b.productID,
		Sequence:  msg.Sequence,
		Expected:  expected,
		Message:   msg,
		Time:      time.Now(),
	})

	if b.strict {
		b.syncState = StateErrored
		return &GapError{Expected: expected, Actual: msg.Sequence}
	}

	// Resync path: forget the snapshot and wait for a fresh one.
	b.log.WithComponent("live_book").WithFields(logger.Fields{
		"product":  b.productID,
		"expected": expected,
		"received": msg.Sequence,
	}).Warn("sequence gap detected, awaiting snapshot")
	b.syncState = StateAwaitingSnapshot
	b.snapshotReceived = false
	return nil
}

func (b *Book) advance(msg *models.StreamMessage) {
	b.engine.SetSequence(msg.Sequence)
	if msg.SourceSequence > 0 {
		b.sourceSequence = msg.SourceSequence
	}
	b.lastUpdate = msg.Time
	b.emit(Event{
		Type:      EventUpdateApplied,
		ProductID: b.productID,
		Sequence:  msg.Sequence,
		Message:   msg,
		Time:      time.Now(),
	})
}

func (b *Book) fail(msg *models.StreamMessage, err error) error {
	b.syncState = StateErrored
	b.emit(Event{
		Type:      EventInconsistency,
		ProductID: b.productID,
		Sequence:  msg.Sequence,
		Message:   msg,
		Err:       err,
		Time:      time.Now(),
	})
	return err
}

func (b *Book) emit(ev Event) {
	if b.events == nil {
		return
	}
	select {
	case b.events <- ev:
	default:
		b.dropped++
		metrics.EmitDropMetric(b.log, metrics.DropMetricBookEvents, b.productID, string(ev.Type))
	}
}
