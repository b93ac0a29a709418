package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommandType tags trader commands emitted by the diffing layer and
// consumed by an execution adapter.
type CommandType string

const (
	CmdPlaceOrder      CommandType = "placeOrder"
	CmdCancelOrder     CommandType = "cancelOrder"
	CmdCancelAllOrders CommandType = "cancelAllOrders"
)

// DefaultFields supplies the fields a diff cannot derive from book
// state, merged into every generated PlaceOrder command.
type DefaultFields struct {
	ProductID string `json:"product_id"`
	OrderType string `json:"order_type"`
	PostOnly  bool   `json:"post_only,omitempty"`
}

// TraderCommand is a single instruction for the execution adapter.
// CancelOrder uses OrderID only; CancelAllOrders carries no payload;
// PlaceOrder uses Side, Price, Size plus the default fields.
type TraderCommand struct {
	Type      CommandType     `json:"type"`
	OrderID   string          `json:"order_id,omitempty"`
	Side      Side            `json:"side,omitempty"`
	Price     decimal.Decimal `json:"price,omitempty"`
	Size      decimal.Decimal `json:"size,omitempty"`
	ProductID string          `json:"product_id,omitempty"`
	OrderType string          `json:"order_type,omitempty"`
	PostOnly  bool            `json:"post_only,omitempty"`
	Time      time.Time       `json:"time"`
}

// NewPlaceOrder builds a place command for the given level, merging in
// the default fields.
func NewPlaceOrder(side Side, price, size decimal.Decimal, defaults DefaultFields) TraderCommand {
	return TraderCommand{
		Type:      CmdPlaceOrder,
		Side:      side,
		Price:     price,
		Size:      size,
		ProductID: defaults.ProductID,
		OrderType: defaults.OrderType,
		PostOnly:  defaults.PostOnly,
		Time:      time.Now(),
	}
}

// NewCancelOrder builds a cancel command for a single order.
func NewCancelOrder(orderID string, defaults DefaultFields) TraderCommand {
	return TraderCommand{
		Type:      CmdCancelOrder,
		OrderID:   orderID,
		ProductID: defaults.ProductID,
		Time:      time.Now(),
	}
}

// NewCancelAll builds a cancel-everything command.
func NewCancelAll(defaults DefaultFields) TraderCommand {
	return TraderCommand{
		Type:      CmdCancelAllOrders,
		ProductID: defaults.ProductID,
		Time:      time.Now(),
	}
}
