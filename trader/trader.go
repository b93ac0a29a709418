package trader

import (
	"sync"

	"bookflow/book"
	appconfig "bookflow/config"
	"bookflow/diff"
	"bookflow/logger"
	"bookflow/models"
)

// Trader tracks its own orders in a book engine and reconciles that
// mirror against the orders the exchange reports as live.
type Trader struct {
	defaults models.DefaultFields

	mu     sync.RWMutex
	mirror *book.Engine
	placed int64
	done   int64
	log    *logger.Log
}

// New creates a trader whose mirror starts empty.
func New(defaults models.DefaultFields) *Trader {
	return &Trader{
		defaults: defaults,
		mirror:   book.New(defaults.ProductID),
		log:      logger.GetLogger(),
	}
}

// NewFromConfig builds the trader's command defaults from the trader
// config section. OrderType falls back to limit.
func NewFromConfig(cfg appconfig.TraderConfig) *Trader {
	orderType := cfg.OrderType
	if orderType == "" {
		orderType = "limit"
	}
	return New(models.DefaultFields{
		ProductID: cfg.ProductID,
		OrderType: orderType,
		PostOnly:  cfg.PostOnly,
	})
}

// OrderPlaced records an order the exchange acknowledged.
func (t *Trader) OrderPlaced(o models.Order) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.mirror.Add(o); err != nil {
		return err
	}
	t.placed++
	t.log.WithComponent("trader").WithFields(logger.Fields{
		"order_id": o.ID,
		"price":    o.Price.String(),
		"size":     o.Size.String(),
		"side":     o.Side.String(),
	}).Debug("order tracked")
	return nil
}

// OrderFinished removes a filled or cancelled order from the mirror.
// Unknown ids are ignored, matching feed done semantics.
func (t *Trader) OrderFinished(orderID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.mirror.HasOrder(orderID) {
		return nil
	}
	if _, err := t.mirror.Remove(orderID); err != nil {
		return err
	}
	t.done++
	return nil
}

// NumOrders reports how many orders the mirror currently tracks.
func (t *Trader) NumOrders() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mirror.NumOrders()
}

// State returns a snapshot of the tracked orders.
func (t *Trader) State() *models.BookState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mirror.DeepState()
}

// Reconcile compares exchange-reported live orders against the mirror
// and returns the commands needed to make the exchange match the
// mirror: cancels for orders the mirror no longer wants and placements
// for orders the exchange is missing.
func (t *Trader) Reconcile(liveOrders []models.Order) ([]models.TraderCommand, error) {
	observed := book.New(t.defaults.ProductID)
	for _, o := range liveOrders {
		if err := observed.Add(o); err != nil {
			return nil, err
		}
	}

	t.mu.RLock()
	d := diff.CompareByOrder(observed, t.mirror)
	t.mu.RUnlock()

	commands := commandsFromOrderDiff(d, t.defaults)
	if len(commands) > 0 {
		t.log.WithComponent("trader").WithFields(logger.Fields{
			"live_orders": len(liveOrders),
			"commands":    len(commands),
		}).Info("reconciliation produced commands")
	}
	return commands, nil
}

// commandsFromOrderDiff maps an order-level diff to commands: negated
// entries are live orders to cancel, positive entries are mirror orders
// the exchange is missing. Cancels come first.
func commandsFromOrderDiff(d *models.BookState, defaults models.DefaultFields) []models.TraderCommand {
	cancels := make([]models.TraderCommand, 0)
	places := make([]models.TraderCommand, 0)

	appendSide := func(levels []*models.PriceLevel) {
		for _, lvl := range levels {
			for _, o := range lvl.Orders {
				if o.Size.Sign() <= 0 {
					cancels = append(cancels, models.NewCancelOrder(o.ID, defaults))
					continue
				}
				places = append(places, models.NewPlaceOrder(o.Side, o.Price, o.Size, defaults))
			}
		}
	}
	appendSide(d.Bids)
	appendSide(d.Asks)

	return append(cancels, places...)
}
