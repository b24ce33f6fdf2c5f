package core

import (
	"fmt"
	"time"
)

// SideType represents the side of an order or position
type SideType string

const (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"
)

// Opposite returns the closing side for this side
func (s SideType) Opposite() SideType {
	if s == SideTypeBuy {
		return SideTypeSell
	}
	return SideTypeBuy
}

// OrderType represents the exchange order type
type OrderType string

const (
	OrderTypeMarket       OrderType = "MARKET"
	OrderTypeStopMarket   OrderType = "STOP_MARKET"
	OrderTypeTakeProfit   OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeTrailingStop OrderType = "TRAILING_STOP_MARKET"
)

// Order is an exchange order as reported back by the gateway
type Order struct {
	ExchangeID int64
	Pair       string
	Side       SideType
	Type       OrderType
	Status     string
	Price      float64
	Quantity   float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (o Order) String() string {
	return fmt.Sprintf("[%s] %s %s | ID: %d, Type: %s - %f x $%f",
		o.Status, o.Side, o.Pair, o.ExchangeID, o.Type, o.Quantity, o.Price)
}

// ExchangePosition is an open position as reported by the exchange,
// used only for reconciliation against locally stored records.
type ExchangePosition struct {
	Pair          string
	Side          SideType
	Quantity      float64
	EntryPrice    float64
	Leverage      float64
	UnrealizedPnL float64
}
