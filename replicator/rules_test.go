package replicator

import (
	"testing"

	"github.com/shopspring/decimal"

	"bookflow/config"
	"bookflow/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func sourceState() *models.BookState {
	return &models.BookState{
		Sequence: 42,
		Bids: []*models.PriceLevel{
			{Price: d("100"), TotalSize: d("10")},
			{Price: d("99"), TotalSize: d("4")},
			{Price: d("98"), TotalSize: d("0.1")},
		},
		Asks: []*models.PriceLevel{
			{Price: d("101"), TotalSize: d("6")},
			{Price: d("102"), TotalSize: d("2")},
		},
	}
}

func TestRulesFromConfig(t *testing.T) {
	rules, err := RulesFromConfig(config.ReplicatorConfig{
		SizeScale: "0.5",
		MinSize:   "0.2",
		SpreadBps: 10,
	})
	if err != nil {
		t.Fatalf("RulesFromConfig: %v", err)
	}
	if !rules.SizeScale.Equal(d("0.5")) || !rules.MinSize.Equal(d("0.2")) || rules.SpreadBps != 10 {
		t.Fatalf("rules = %+v", rules)
	}

	if _, err := RulesFromConfig(config.ReplicatorConfig{SizeScale: "zero"}); err == nil {
		t.Fatal("expected error for malformed size_scale")
	}
	if _, err := RulesFromConfig(config.ReplicatorConfig{SizeScale: "-1"}); err == nil {
		t.Fatal("expected error for non-positive size_scale")
	}
}

func TestTransformScalesAndFloors(t *testing.T) {
	rules := Rules{SizeScale: d("0.5"), MinSize: d("1")}

	out, err := rules.Transform("MIRROR", sourceState())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out.Sequence() != 42 {
		t.Fatalf("sequence = %d", out.Sequence())
	}

	// 10*0.5=5 and 4*0.5=2 survive, 0.1*0.5 is below the floor.
	bids := out.State().Bids
	if len(bids) != 2 {
		t.Fatalf("bids = %d, want 2", len(bids))
	}
	if !bids[0].Price.Equal(d("100")) || !bids[0].TotalSize.Equal(d("5")) {
		t.Fatalf("best bid = %+v", bids[0])
	}

	asks := out.State().Asks
	if len(asks) != 2 || !asks[0].TotalSize.Equal(d("3")) {
		t.Fatalf("asks = %+v", asks)
	}
}

func TestTransformAppliesSpread(t *testing.T) {
	rules := Rules{SizeScale: d("1"), SpreadBps: 100} // 1%

	out, err := rules.Transform("MIRROR", sourceState())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	if got := out.State().Bids[0].Price; !got.Equal(d("99")) {
		t.Fatalf("best bid price = %s, want 99", got)
	}
	if got := out.State().Asks[0].Price; !got.Equal(d("102.01")) {
		t.Fatalf("best ask price = %s, want 102.01", got)
	}
}

func TestTransformDepthLimit(t *testing.T) {
	rules := Rules{SizeScale: d("1"), DepthLimit: 1}

	out, err := rules.Transform("MIRROR", sourceState())
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	st := out.State()
	if len(st.Bids) != 1 || len(st.Asks) != 1 {
		t.Fatalf("depth = %d/%d, want 1/1", len(st.Bids), len(st.Asks))
	}
	if !st.Bids[0].Price.Equal(d("100")) || !st.Asks[0].Price.Equal(d("101")) {
		t.Fatal("depth limit must keep the best levels")
	}
}
