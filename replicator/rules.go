package replicator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bookflow/book"
	"bookflow/config"
	"bookflow/models"
)

// Rules describes how a source book is transformed into the mirror the
// replicator maintains on the target.
type Rules struct {
	// SizeScale multiplies every level's total size.
	SizeScale decimal.Decimal
	// MinSize drops transformed levels smaller than this floor.
	MinSize decimal.Decimal
	// SpreadBps widens the book: bid prices move down and ask prices move
	// up by this many basis points.
	SpreadBps int64
	// DepthLimit keeps at most this many levels per side. Zero keeps all.
	DepthLimit int
}

// RulesFromConfig parses the yaml replicator section into Rules.
func RulesFromConfig(cfg config.ReplicatorConfig) (Rules, error) {
	scale, err := decimal.NewFromString(cfg.SizeScale)
	if err != nil {
		return Rules{}, fmt.Errorf("invalid replicator.size_scale %q: %w", cfg.SizeScale, err)
	}
	if scale.Sign() <= 0 {
		return Rules{}, fmt.Errorf("replicator.size_scale must be positive, got %s", scale)
	}

	minSize := decimal.Zero
	if cfg.MinSize != "" {
		minSize, err = decimal.NewFromString(cfg.MinSize)
		if err != nil {
			return Rules{}, fmt.Errorf("invalid replicator.min_size %q: %w", cfg.MinSize, err)
		}
	}

	return Rules{
		SizeScale:  scale,
		MinSize:    minSize,
		SpreadBps:  cfg.SpreadBps,
		DepthLimit: cfg.DepthLimit,
	}, nil
}

// Transform builds a fresh engine holding the transformed image of the
// source state. Each kept level carries one synthetic aggregate order so the
// result can be diffed level-by-level.
func (r Rules) Transform(productID string, src *models.BookState) (*book.Engine, error) {
	out := book.New(productID)
	out.SetSequence(src.Sequence)

	if err := r.transformSide(out, models.Sell, src.Asks); err != nil {
		return nil, err
	}
	if err := r.transformSide(out, models.Buy, src.Bids); err != nil {
		return nil, err
	}
	return out, nil
}

func (r Rules) transformSide(out *book.Engine, side models.Side, levels []*models.PriceLevel) error {
	kept := 0
	for _, src := range levels {
		if r.DepthLimit > 0 && kept >= r.DepthLimit {
			break
		}

		size := src.TotalSize.Mul(r.SizeScale)
		if size.Sign() <= 0 || size.LessThan(r.MinSize) {
			continue
		}

		lvl := book.NewLevel(r.shiftPrice(side, src.Price))
		lvl.TotalSize = size
		if err := out.SetLevel(side, lvl); err != nil {
			return err
		}
		kept++
	}
	return nil
}

// shiftPrice moves a price away from the midpoint by SpreadBps.
func (r Rules) shiftPrice(side models.Side, price decimal.Decimal) decimal.Decimal {
	if r.SpreadBps == 0 {
		return price
	}
	bps := decimal.New(r.SpreadBps, -4)
	if side == models.Buy {
		return price.Mul(decimal.NewFromInt(1).Sub(bps))
	}
	return price.Mul(decimal.NewFromInt(1).Add(bps))
}
