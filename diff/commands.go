package diff

import (
	"bookflow/models"
)

// GenerateDiffCommands translates a level diff into an ordered command
// sequence: per level, one CancelOrder for every order with
// non-positive size, then a single PlaceOrder for the full remaining
// level size when positive. A shrunk level therefore becomes
// cancel-then-replace, not a proportional adjustment of its orders.
func GenerateDiffCommands(d *models.BookState, defaults models.DefaultFields) []models.TraderCommand {
	cmds := []models.TraderCommand{}
	if d == nil {
		return cmds
	}
	cmds = append(cmds, sideCommands(d.Bids, models.Buy, defaults)...)
	cmds = append(cmds, sideCommands(d.Asks, models.Sell, defaults)...)
	return cmds
}

func sideCommands(levels []*models.PriceLevel, side models.Side, defaults models.DefaultFields) []models.TraderCommand {
	var cmds []models.TraderCommand
	for _, lvl := range levels {
		for _, o := range lvl.Orders {
			if o.Size.Sign() <= 0 {
				cmds = append(cmds, models.NewCancelOrder(o.ID, defaults))
			}
		}
		if lvl.TotalSize.Sign() > 0 {
			cmds = append(cmds, models.NewPlaceOrder(side, lvl.Price, lvl.TotalSize, defaults))
		}
	}
	return cmds
}

// GenerateSimpleCommandSet skips diffing entirely: cancel everything,
// then place one order per level of the final book. Used when a full
// reset to a known state is wanted and churn does not matter.
func GenerateSimpleCommandSet(final *models.BookState, defaults models.DefaultFields) []models.TraderCommand {
	cmds := []models.TraderCommand{models.NewCancelAll(defaults)}
	if final == nil {
		return cmds
	}
	for _, lvl := range final.Bids {
		if lvl.TotalSize.Sign() > 0 {
			cmds = append(cmds, models.NewPlaceOrder(models.Buy, lvl.Price, lvl.TotalSize, defaults))
		}
	}
	for _, lvl := range final.Asks {
		if lvl.TotalSize.Sign() > 0 {
			cmds = append(cmds, models.NewPlaceOrder(models.Sell, lvl.Price, lvl.TotalSize, defaults))
		}
	}
	return cmds
}
