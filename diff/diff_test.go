package diff

import (
	"testing"

	"github.com/shopspring/decimal"

	"bookflow/book"
	"bookflow/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func addOrder(t *testing.T, e *book.Engine, id, price, size string, side models.Side) {
	t.Helper()
	if err := e.Add(models.Order{ID: id, Price: d(price), Size: d(size), Side: side}); err != nil {
		t.Fatalf("add %s: %v", id, err)
	}
}

func sampleBook(t *testing.T) *book.Engine {
	e := book.New("BTC-USD")
	addOrder(t, e, "b1", "100", "5", models.Buy)
	addOrder(t, e, "b2", "99", "2", models.Buy)
	addOrder(t, e, "a1", "101", "3", models.Sell)
	addOrder(t, e, "a2", "102", "4", models.Sell)
	return e
}

func TestCompareByLevelIdenticalBooksIsEmpty(t *testing.T) {
	b := sampleBook(t)
	res := CompareByLevel(b, b, false, false)
	if len(res.Bids) != 0 || len(res.Asks) != 0 {
		t.Fatalf("self diff not empty: %d bids, %d asks", len(res.Bids), len(res.Asks))
	}
}

func TestCompareByLevelEqualSizeDifferentOrders(t *testing.T) {
	initial := book.New("BTC-USD")
	addOrder(t, initial, "x", "100", "5", models.Buy)

	final := book.New("BTC-USD")
	addOrder(t, final, "y", "100", "2", models.Buy)
	addOrder(t, final, "z", "100", "3", models.Buy)

	// Same aggregate, different constituents: level diffing ignores
	// order identity.
	res := CompareByLevel(initial, final, false, false)
	if len(res.Bids) != 0 {
		t.Fatalf("equal-size level should not diff: %+v", res.Bids)
	}
}

func TestCompareByLevelOnlySides(t *testing.T) {
	initial := sampleBook(t)
	final := book.New("BTC-USD")
	addOrder(t, final, "b1", "100", "5", models.Buy)
	addOrder(t, final, "n1", "98", "1", models.Buy)
	addOrder(t, final, "a1", "101", "3", models.Sell)

	res := CompareByLevel(initial, final, false, false)

	// Bids: 99 only in initial (negated), 98 only in final.
	if len(res.Bids) != 2 {
		t.Fatalf("bids = %+v", res.Bids)
	}
	if !res.Bids[0].Price.Equal(d("99")) || !res.Bids[0].TotalSize.Equal(d("-2")) {
		t.Fatalf("bid[0] = %+v, want 99 at -2", res.Bids[0])
	}
	if !res.Bids[0].Orders[0].Size.Equal(d("-2")) {
		t.Fatalf("negated order size = %s", res.Bids[0].Orders[0].Size)
	}
	if !res.Bids[1].Price.Equal(d("98")) || !res.Bids[1].TotalSize.Equal(d("1")) {
		t.Fatalf("bid[1] = %+v, want 98 at 1", res.Bids[1])
	}

	// Asks: 102 disappeared.
	if len(res.Asks) != 1 || !res.Asks[0].TotalSize.Equal(d("-4")) {
		t.Fatalf("asks = %+v", res.Asks)
	}
}

func TestCompareByLevelChangedFlags(t *testing.T) {
	initial := book.New("BTC-USD")
	addOrder(t, initial, "x", "100", "5", models.Buy)
	final := book.New("BTC-USD")
	addOrder(t, final, "y", "100", "3", models.Buy)

	rel := CompareByLevel(initial, final, false, false)
	if len(rel.Bids) != 1 || !rel.Bids[0].TotalSize.Equal(d("-2")) {
		t.Fatalf("relative diff = %+v", rel.Bids)
	}
	if rel.Bids[0].Orders[0].ID != "y" {
		t.Fatalf("expected final's orders, got %s", rel.Bids[0].Orders[0].ID)
	}

	abs := CompareByLevel(initial, final, true, true)
	if !abs.Bids[0].TotalSize.Equal(d("3")) {
		t.Fatalf("absolute diff total = %s, want 3", abs.Bids[0].TotalSize)
	}
	if abs.Bids[0].Orders[0].ID != "x" || !abs.Bids[0].Orders[0].Size.Equal(d("-5")) {
		t.Fatalf("keepInitial orders = %+v", abs.Bids[0].Orders[0])
	}
}

func TestCompareByLevelSortedBestFirst(t *testing.T) {
	initial := book.New("BTC-USD")
	final := book.New("BTC-USD")
	addOrder(t, final, "b1", "100", "1", models.Buy)
	addOrder(t, final, "b2", "102", "1", models.Buy)
	addOrder(t, final, "a1", "103", "1", models.Sell)
	addOrder(t, final, "a2", "105", "1", models.Sell)

	res := CompareByLevel(initial, final, false, false)
	if !res.Bids[0].Price.Equal(d("102")) || !res.Bids[1].Price.Equal(d("100")) {
		t.Fatalf("bids not best first: %+v", res.Bids)
	}
	if !res.Asks[0].Price.Equal(d("103")) || !res.Asks[1].Price.Equal(d("105")) {
		t.Fatalf("asks not best first: %+v", res.Asks)
	}
}

// Applying the generated commands to a copy of the initial book must
// reproduce the final book at level granularity.
func TestDiffCommandsTransformInitialIntoFinal(t *testing.T) {
	initial := sampleBook(t)

	final := book.New("BTC-USD")
	addOrder(t, final, "f1", "100", "3", models.Buy) // shrunk level
	addOrder(t, final, "f2", "98", "2", models.Buy)  // new level
	addOrder(t, final, "a1", "101", "3", models.Sell)
	// 99 bid and 102 ask disappear.

	res := CompareByLevel(initial, final, true, true)
	cmds := GenerateDiffCommands(res, models.DefaultFields{ProductID: "BTC-USD", OrderType: "limit"})

	replay := book.New("BTC-USD")
	if err := replay.FromState(initial.DeepState()); err != nil {
		t.Fatalf("clone initial: %v", err)
	}
	n := 0
	for _, cmd := range cmds {
		switch cmd.Type {
		case models.CmdCancelOrder:
			if _, err := replay.Remove(cmd.OrderID); err != nil {
				t.Fatalf("replay cancel %s: %v", cmd.OrderID, err)
			}
		case models.CmdPlaceOrder:
			n++
			if err := replay.Add(models.Order{
				ID:    cmd.OrderID + "replay-" + cmd.Price.String(),
				Price: cmd.Price,
				Size:  cmd.Size,
				Side:  cmd.Side,
			}); err != nil {
				t.Fatalf("replay place: %v", err)
			}
		default:
			t.Fatalf("unexpected command %s", cmd.Type)
		}
	}
	if n == 0 {
		t.Fatal("no place commands generated")
	}

	got := replay.State()
	want := final.State()
	if len(got.Bids) != len(want.Bids) || len(got.Asks) != len(want.Asks) {
		t.Fatalf("level counts: %d/%d vs %d/%d", len(got.Bids), len(got.Asks), len(want.Bids), len(want.Asks))
	}
	for i := range want.Bids {
		if !got.Bids[i].Price.Equal(want.Bids[i].Price) || !got.Bids[i].TotalSize.Equal(want.Bids[i].TotalSize) {
			t.Fatalf("bid %d: %s@%s vs %s@%s", i,
				got.Bids[i].TotalSize, got.Bids[i].Price,
				want.Bids[i].TotalSize, want.Bids[i].Price)
		}
	}
	for i := range want.Asks {
		if !got.Asks[i].Price.Equal(want.Asks[i].Price) || !got.Asks[i].TotalSize.Equal(want.Asks[i].TotalSize) {
			t.Fatalf("ask %d mismatch", i)
		}
	}
}
