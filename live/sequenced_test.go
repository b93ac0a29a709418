package live

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bookflow/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func snapshotMsg(seq int64) *models.StreamMessage {
	return &models.StreamMessage{
		Type:           models.MsgSnapshot,
		ProductID:      "BTC-USD",
		Time:           time.Now(),
		SourceSequence: 9000 + seq,
		Snapshot: &models.BookState{
			Sequence: seq,
			Bids: []*models.PriceLevel{
				{Price: d("100"), TotalSize: d("5"), Orders: []*models.Order{
					{ID: "b1", Price: d("100"), Size: d("5"), Side: models.Buy},
				}},
			},
			Asks: []*models.PriceLevel{
				{Price: d("101"), TotalSize: d("2"), Orders: []*models.Order{
					{ID: "a1", Price: d("101"), Size: d("2"), Side: models.Sell},
				}},
			},
		},
	}
}

func openMsg(seq int64, id, price, size string, side models.Side) *models.StreamMessage {
	return &models.StreamMessage{
		Type:      models.MsgNewOrder,
		ProductID: "BTC-USD",
		Time:      time.Now(),
		Sequence:  seq,
		Order: &models.OrderEvent{
			OrderID: id,
			Price:   d(price),
			Size:    d(size),
			Side:    side,
		},
	}
}

func syncedBook(t *testing.T, strict bool, events chan Event) *Book {
	t.Helper()
	b := NewBook("BTC-USD", strict, events)
	if err := b.Ingest(snapshotMsg(5)); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if b.SyncState() != StateSynced || b.Sequence() != 5 {
		t.Fatalf("after snapshot: state=%v seq=%d", b.SyncState(), b.Sequence())
	}
	return b
}

func TestGapScenarioStrict(t *testing.T) {
	b := syncedBook(t, true, nil)

	// Duplicate sequence numbers are discarded without error.
	for _, seq := range []int64{5, 4, 1} {
		if err := b.Ingest(openMsg(seq, "x", "99", "1", models.Buy)); err != nil {
			t.Fatalf("seq %d should be a no-op, got %v", seq, err)
		}
	}
	if b.Sequence() != 5 || b.Engine().HasOrder("x") {
		t.Fatal("duplicate delivery must not change the book")
	}

	// The next expected sequence applies and advances.
	if err := b.Ingest(openMsg(6, "n1", "99", "1", models.Buy)); err != nil {
		t.Fatalf("seq 6: %v", err)
	}
	if b.Sequence() != 6 || !b.Engine().HasOrder("n1") {
		t.Fatalf("seq=%d tracked=%v", b.Sequence(), b.Engine().HasOrder("n1"))
	}

	// A skip is fatal in strict mode.
	err := b.Ingest(openMsg(8, "n2", "99", "1", models.Buy))
	if !errors.Is(err, ErrSequenceGap) {
		t.Fatalf("gap error = %v", err)
	}
	var gap *GapError
	if !errors.As(err, &gap) || gap.Expected != 7 || gap.Actual != 8 {
		t.Fatalf("gap detail = %+v", gap)
	}
	if b.SyncState() != StateErrored {
		t.Fatalf("state = %v, want errored", b.SyncState())
	}
	if err := b.Ingest(openMsg(7, "n3", "99", "1", models.Buy)); !errors.Is(err, ErrBookErrored) {
		t.Fatalf("errored book must reject ingestion, got %v", err)
	}
}

func TestGapResyncNonStrict(t *testing.T) {
	events := make(chan Event, 16)
	b := syncedBook(t, false, events)
	drainEvents(events)

	if err := b.Ingest(openMsg(9, "n1", "99", "1", models.Buy)); err != nil {
		t.Fatalf("non-strict gap should not error: %v", err)
	}
	if b.SyncState() != StateAwaitingSnapshot {
		t.Fatalf("state = %v, want awaiting snapshot", b.SyncState())
	}

	ev := <-events
	if ev.Type != EventGapDetected || ev.Expected != 6 || ev.Sequence != 9 {
		t.Fatalf("gap event = %+v", ev)
	}

	// Order messages are dropped until a fresh snapshot arrives.
	if err := b.Ingest(openMsg(10, "n2", "99", "1", models.Buy)); err != nil {
		t.Fatalf("pre-snapshot order message: %v", err)
	}
	if b.Engine().HasOrder("n2") {
		t.Fatal("order applied while awaiting snapshot")
	}

	if err := b.Ingest(snapshotMsg(20)); err != nil {
		t.Fatalf("resync snapshot: %v", err)
	}
	if b.SyncState() != StateSynced || b.Sequence() != 20 {
		t.Fatalf("after resync: %v seq=%d", b.SyncState(), b.Sequence())
	}
}

func TestOrderMessagesDroppedBeforeFirstSnapshot(t *testing.T) {
	b := NewBook("BTC-USD", true, nil)
	if err := b.Ingest(openMsg(1, "x", "99", "1", models.Buy)); err != nil {
		t.Fatalf("pre-snapshot ingest: %v", err)
	}
	if b.Sequence() != -1 || b.Engine().NumOrders() != 0 {
		t.Fatal("pre-snapshot order message must be a silent no-op")
	}
}

func TestLevelMessagesApplyWithoutSnapshot(t *testing.T) {
	b := NewBook("BTC-USD", true, nil)
	msg := &models.StreamMessage{
		Type:      models.MsgLevel,
		ProductID: "BTC-USD",
		Time:      time.Now(),
		Sequence:  17,
		Level:     &models.LevelEvent{Price: d("100"), Size: d("4"), Side: models.Buy},
	}
	if err := b.Ingest(msg); err != nil {
		t.Fatalf("level ingest: %v", err)
	}
	if b.Sequence() != 17 {
		t.Fatalf("sequence = %d, want 17 (adopted from first level message)", b.Sequence())
	}
	lvl := b.Engine().Tree(models.Buy).Find(d("100"))
	if lvl == nil || !lvl.TotalSize.Equal(d("4")) {
		t.Fatalf("level = %+v", lvl)
	}

	// Size zero clears the price point.
	clear := &models.StreamMessage{
		Type:     models.MsgLevel,
		Sequence: 18,
		Level:    &models.LevelEvent{Price: d("100"), Size: decimal.Zero, Side: models.Buy},
	}
	if err := b.Ingest(clear); err != nil {
		t.Fatalf("clear level: %v", err)
	}
	if b.Engine().Tree(models.Buy).Find(d("100")) != nil {
		t.Fatal("zero-size level message must clear the price")
	}
}

func TestDoneForUntrackedOrderIsNoop(t *testing.T) {
	b := syncedBook(t, true, nil)
	msg := &models.StreamMessage{
		Type:     models.MsgOrderDone,
		Sequence: 6,
		Order:    &models.OrderEvent{OrderID: "never-seen"},
	}
	if err := b.Ingest(msg); err != nil {
		t.Fatalf("done for untracked: %v", err)
	}
	if b.Sequence() != 6 {
		t.Fatalf("sequence = %d, want 6 (message consumed)", b.Sequence())
	}
}

func TestDoneRemovesTrackedOrder(t *testing.T) {
	b := syncedBook(t, true, nil)
	msg := &models.StreamMessage{
		Type:     models.MsgOrderDone,
		Sequence: 6,
		Order:    &models.OrderEvent{OrderID: "b1"},
	}
	if err := b.Ingest(msg); err != nil {
		t.Fatalf("done: %v", err)
	}
	if b.Engine().HasOrder("b1") {
		t.Fatal("b1 should be removed")
	}
}

func TestChangedOrderAbsoluteAndRelative(t *testing.T) {
	b := syncedBook(t, true, nil)

	newSize := d("3")
	if err := b.Ingest(&models.StreamMessage{
		Type:     models.MsgChangedOrder,
		Sequence: 6,
		Order:    &models.OrderEvent{OrderID: "b1", NewSize: &newSize},
	}); err != nil {
		t.Fatalf("absolute change: %v", err)
	}
	if got := b.Engine().Order("b1").Size; !got.Equal(d("3")) {
		t.Fatalf("b1 size = %s, want 3", got)
	}

	delta := d("-1")
	if err := b.Ingest(&models.StreamMessage{
		Type:     models.MsgChangedOrder,
		Sequence: 7,
		Order:    &models.OrderEvent{OrderID: "b1", ChangedAmount: &delta},
	}); err != nil {
		t.Fatalf("relative change: %v", err)
	}
	if got := b.Engine().Order("b1").Size; !got.Equal(d("2")) {
		t.Fatalf("b1 size = %s, want 2", got)
	}

	// Neither field: a no-op that still consumes the sequence.
	if err := b.Ingest(&models.StreamMessage{
		Type:     models.MsgChangedOrder,
		Sequence: 8,
		Order:    &models.OrderEvent{OrderID: "b1"},
	}); err != nil {
		t.Fatalf("empty change: %v", err)
	}
	if b.Sequence() != 8 || !b.Engine().Order("b1").Size.Equal(d("2")) {
		t.Fatal("empty change must be a sequence-consuming no-op")
	}
}

func TestDuplicateAddIsInconsistency(t *testing.T) {
	events := make(chan Event, 16)
	b := syncedBook(t, true, events)
	drainEvents(events)

	err := b.Ingest(openMsg(6, "b1", "100", "1", models.Buy))
	if err == nil {
		t.Fatal("duplicate id insertion post-snapshot must error")
	}
	if b.SyncState() != StateErrored {
		t.Fatalf("state = %v, want errored", b.SyncState())
	}
	ev := <-events
	if ev.Type != EventInconsistency || ev.Err == nil {
		t.Fatalf("event = %+v", ev)
	}
}

func TestTickerAndTradeBypassSequencing(t *testing.T) {
	events := make(chan Event, 16)
	b := syncedBook(t, true, events)
	drainEvents(events)

	if err := b.Ingest(&models.StreamMessage{
		Type:   models.MsgTicker,
		Ticker: &models.Ticker{Price: d("100.5"), Bid: d("100"), Ask: d("101")},
	}); err != nil {
		t.Fatalf("ticker: %v", err)
	}
	if b.Sequence() != 5 {
		t.Fatal("ticker must not consume a sequence number")
	}
	if got := b.Ticker(); !got.Price.Equal(d("100.5")) || got.ProductID != "BTC-USD" {
		t.Fatalf("ticker projection = %+v", got)
	}

	if err := b.Ingest(&models.StreamMessage{
		Type:  models.MsgTrade,
		Trade: &models.TradeEvent{TradeID: "t1", Price: d("100.2"), Size: d("1"), Side: models.Buy},
	}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if b.Sequence() != 5 {
		t.Fatal("trade must not consume a sequence number")
	}
	ev := <-events
	if ev.Type != EventTradeObserved {
		t.Fatalf("event = %+v", ev)
	}
}

func TestEventsEmittedInOrder(t *testing.T) {
	events := make(chan Event, 16)
	b := syncedBook(t, true, events)

	b.Ingest(openMsg(6, "n1", "99", "1", models.Buy))
	b.Ingest(openMsg(7, "n2", "98", "1", models.Buy))

	want := []EventType{EventSnapshotApplied, EventUpdateApplied, EventUpdateApplied}
	for i, w := range want {
		ev := <-events
		if ev.Type != w {
			t.Fatalf("event %d = %s, want %s", i, ev.Type, w)
		}
	}
}

func TestFullEventChannelDropsNotBlocks(t *testing.T) {
	events := make(chan Event, 1)
	b := syncedBook(t, true, events) // snapshot event fills the buffer

	if err := b.Ingest(openMsg(6, "n1", "99", "1", models.Buy)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if b.DroppedEvents() != 1 {
		t.Fatalf("dropped = %d, want 1", b.DroppedEvents())
	}
}

func drainEvents(events chan Event) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}
