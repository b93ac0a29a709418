package book

import (
	"testing"

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

func levelAt(price, size string) *Level {
	lvl := NewLevel(d(price))
	lvl.AddOrder(&models.Order{ID: "o-" + price, Price: d(price), Size: d(size)})
	return lvl
}

func TestTreeOrderingPerSide(t *testing.T) {
	prices := []string{"101", "99", "100", "102"}

	bids := NewTree(models.Buy)
	asks := NewTree(models.Sell)
	for _, p := range prices {
		if !bids.Insert(levelAt(p, "1")) || !asks.Insert(levelAt(p, "1")) {
			t.Fatalf("insert %s failed", p)
		}
	}

	if got := bids.Best().Price; !got.Equal(d("102")) {
		t.Fatalf("best bid = %s, want 102", got)
	}
	if got := asks.Best().Price; !got.Equal(d("99")) {
		t.Fatalf("best ask = %s, want 99", got)
	}
	if got := bids.Worst().Price; !got.Equal(d("99")) {
		t.Fatalf("worst bid = %s, want 99", got)
	}

	var walked []string
	bids.Walk(func(lvl *Level) bool {
		walked = append(walked, lvl.Price.String())
		return true
	})
	want := []string{"102", "101", "100", "99"}
	for i, p := range want {
		if walked[i] != p {
			t.Fatalf("bid walk = %v, want %v", walked, want)
		}
	}
}

func TestTreeInsertDuplicatePrice(t *testing.T) {
	tr := NewTree(models.Sell)
	if !tr.Insert(levelAt("100", "1")) {
		t.Fatal("first insert failed")
	}
	if tr.Insert(levelAt("100", "2")) {
		t.Fatal("duplicate price insert should fail")
	}
	if tr.Len() != 1 {
		t.Fatalf("len = %d, want 1", tr.Len())
	}
}

func TestTreeFindAndRemove(t *testing.T) {
	tr := NewTree(models.Buy)
	tr.Insert(levelAt("100", "1"))
	tr.Insert(levelAt("101", "2"))

	if lvl := tr.Find(d("100")); lvl == nil || !lvl.TotalSize.Equal(d("1")) {
		t.Fatalf("find(100) = %+v", lvl)
	}
	if tr.Find(d("105")) != nil {
		t.Fatal("find(105) should be nil")
	}
	if !tr.Remove(d("100")) {
		t.Fatal("remove(100) failed")
	}
	if tr.Remove(d("100")) {
		t.Fatal("second remove should report absent")
	}
	if tr.Len() != 1 {
		t.Fatalf("len = %d, want 1", tr.Len())
	}
}

func TestCursorBidirectional(t *testing.T) {
	tr := NewTree(models.Sell)
	for _, p := range []string{"100", "101", "102"} {
		tr.Insert(levelAt(p, "1"))
	}

	c := tr.Cursor()
	if !c.Valid() || !c.Level().Price.Equal(d("100")) {
		t.Fatalf("cursor start = %v", c.Level())
	}
	c.Next()
	c.Next()
	if !c.Level().Price.Equal(d("102")) {
		t.Fatalf("after two next = %s", c.Level().Price)
	}
	c.Prev()
	if !c.Level().Price.Equal(d("101")) {
		t.Fatalf("after prev = %s", c.Level().Price)
	}
}

func TestCursorAtBound(t *testing.T) {
	asks := NewTree(models.Sell)
	bids := NewTree(models.Buy)
	for _, p := range []string{"100", "102", "104"} {
		asks.Insert(levelAt(p, "1"))
		bids.Insert(levelAt(p, "1"))
	}

	// Ask walk from a bound starts at the first price >= bound.
	c := asks.CursorAt(d("101"))
	if !c.Valid() || !c.Level().Price.Equal(d("102")) {
		t.Fatalf("ask cursor at 101 = %v", c.Level())
	}

	// Bid walk from a bound starts at the first price <= bound.
	c = bids.CursorAt(d("103"))
	if !c.Valid() || !c.Level().Price.Equal(d("102")) {
		t.Fatalf("bid cursor at 103 = %v", c.Level())
	}

	c = asks.CursorAt(d("200"))
	if c.Valid() {
		t.Fatal("cursor beyond worst price should be invalid")
	}
}
