package book

import (
	"errors"
	"testing"

	"bookflow/models"
)

func askBook(t *testing.T) *Engine {
	t.Helper()
	e := New("BTC-USD")
	asks := [][2]string{{"110", "10"}, {"112", "5"}, {"113", "1"}, {"114", "1"}}
	for i, a := range asks {
		if err := e.Add(models.Order{
			ID:    string(rune('a' + i)),
			Price: d(a[0]),
			Size:  d(a[1]),
			Side:  models.Sell,
		}); err != nil {
			t.Fatalf("add ask %s: %v", a[0], err)
		}
	}
	return e
}

func TestOrdersForValueBaseUnits(t *testing.T) {
	e := askBook(t)

	levels, err := e.OrdersForValue(models.Buy, d("16"), false, nil)
	if err != nil {
		t.Fatalf("orders for value: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("levels = %d, want 3 (114 must not be touched)", len(levels))
	}

	want := []struct{ price, size, cum string }{
		{"110", "10", "10"},
		{"112", "5", "15"},
		{"113", "1", "16"},
	}
	for i, w := range want {
		got := levels[i]
		if !got.Price.Equal(d(w.price)) || !got.TotalSize.Equal(d(w.size)) || !got.CumSize.Equal(d(w.cum)) {
			t.Fatalf("level %d = {%s %s cum %s}, want {%s %s cum %s}",
				i, got.Price, got.TotalSize, got.CumSize, w.price, w.size, w.cum)
		}
	}
	if !levels[0].Value.Equal(d("1100")) {
		t.Fatalf("level 0 value = %s, want 1100", levels[0].Value)
	}
}

func TestOrdersForValuePartialLastLevel(t *testing.T) {
	e := askBook(t)

	levels, err := e.OrdersForValue(models.Buy, d("12"), false, nil)
	if err != nil {
		t.Fatalf("orders for value: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(levels))
	}
	last := levels[1]
	if !last.TotalSize.Equal(d("2")) || !last.CumSize.Equal(d("12")) {
		t.Fatalf("partial level = size %s cum %s, want 2 and 12", last.TotalSize, last.CumSize)
	}
	if !last.Value.Equal(d("224")) {
		t.Fatalf("partial level value = %s, want 224", last.Value)
	}
}

func TestOrdersForValueQuote(t *testing.T) {
	e := askBook(t)

	// 1100 quote buys exactly the first level.
	levels, err := e.OrdersForValue(models.Buy, d("1100"), true, nil)
	if err != nil {
		t.Fatalf("orders for value: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("levels = %d, want 1", len(levels))
	}
	if !levels[0].CumValue.Equal(d("1100")) || !levels[0].CumSize.Equal(d("10")) {
		t.Fatalf("quote walk = %+v", levels[0])
	}

	// 1212 reaches one unit into the second level.
	levels, err = e.OrdersForValue(models.Buy, d("1212"), true, nil)
	if err != nil {
		t.Fatalf("orders for value: %v", err)
	}
	if len(levels) != 2 || !levels[1].TotalSize.Equal(d("1")) {
		t.Fatalf("quote partial = %+v", levels)
	}
}

func TestOrdersForValueQuoteNonTerminatingSplit(t *testing.T) {
	e := New("BTC-USD")
	e.Add(models.Order{ID: "a1", Price: d("3"), Size: d("10"), Side: models.Sell})
	e.Add(models.Order{ID: "a2", Price: d("4"), Size: d("10"), Side: models.Sell})

	// 10/3 does not terminate; the rounded cumulative lands just short
	// of the target, but the walk must still stop at the split level.
	levels, err := e.OrdersForValue(models.Buy, d("10"), true, nil)
	if err != nil {
		t.Fatalf("orders for value: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("levels = %+v, want the split level at 3 only", levels)
	}
	if !levels[0].Price.Equal(d("3")) {
		t.Fatalf("split price = %s, want 3", levels[0].Price)
	}
	if levels[0].TotalSize.LessThanOrEqual(d("3.333")) || levels[0].TotalSize.GreaterThan(d("3.334")) {
		t.Fatalf("split size = %s, want ~10/3", levels[0].TotalSize)
	}
	if levels[0].TotalSize.Equal(d("10")) {
		t.Fatal("split level consumed whole size instead of the needed portion")
	}
}

func TestOrdersForValueStartPoint(t *testing.T) {
	e := askBook(t)

	start := &StartPoint{Price: d("110"), Size: d("4")}
	levels, err := e.OrdersForValue(models.Buy, d("8"), false, start)
	if err != nil {
		t.Fatalf("orders for value: %v", err)
	}
	// 6 remain at 110, 2 more come from 112.
	if len(levels) != 2 {
		t.Fatalf("levels = %d, want 2", len(levels))
	}
	if !levels[0].TotalSize.Equal(d("6")) || !levels[1].TotalSize.Equal(d("2")) {
		t.Fatalf("start point walk = %s then %s", levels[0].TotalSize, levels[1].TotalSize)
	}
}

func TestOrdersForValueStartPointExceedsLevel(t *testing.T) {
	e := askBook(t)
	start := &StartPoint{Price: d("110"), Size: d("11")}
	_, err := e.OrdersForValue(models.Buy, d("5"), false, start)
	if !errors.Is(err, ErrStartPointExceedsLevel) {
		t.Fatalf("error = %v", err)
	}
}

func TestOrdersForValueEmptyBook(t *testing.T) {
	e := New("BTC-USD")
	_, err := e.OrdersForValue(models.Buy, d("5"), false, nil)
	if !errors.Is(err, ErrEmptyBook) {
		t.Fatalf("error = %v", err)
	}
}

func TestOrdersForValueSellConsumesBids(t *testing.T) {
	e := New("BTC-USD")
	e.Add(models.Order{ID: "b1", Price: d("100"), Size: d("3"), Side: models.Buy})
	e.Add(models.Order{ID: "b2", Price: d("99"), Size: d("3"), Side: models.Buy})

	levels, err := e.OrdersForValue(models.Sell, d("4"), false, nil)
	if err != nil {
		t.Fatalf("orders for value: %v", err)
	}
	if len(levels) != 2 || !levels[0].Price.Equal(d("100")) || !levels[1].TotalSize.Equal(d("1")) {
		t.Fatalf("sell walk = %+v", levels)
	}
}
