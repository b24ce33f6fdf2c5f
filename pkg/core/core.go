package core

import (
	"context"
)

// Exchange combines market data access and order execution
type Exchange interface {
	Feeder
	Broker
}

// Feeder supplies market data for trading pairs
type Feeder interface {
	AssetsInfo(pair string) (AssetInfo, error)
	LastQuote(ctx context.Context, pair string) (float64, error)
	CandlesByLimit(ctx context.Context, pair, timeframe string, limit int) ([]Candle, error)
}

// Broker executes and manages orders on the exchange
type Broker interface {
	AccountBalance(ctx context.Context) (float64, error)
	OpenPositions(ctx context.Context) ([]ExchangePosition, error)
	CreateOrderMarket(ctx context.Context, side SideType, pair string, quantity float64) (Order, error)
	CreateOrderStop(ctx context.Context, side SideType, pair string, quantity, stopPrice float64) (Order, error)
	CreateOrderTakeProfit(ctx context.Context, side SideType, pair string, quantity, stopPrice float64) (Order, error)
	CreateOrderTrailingStop(ctx context.Context, side SideType, pair string, quantity, activationPrice, callbackRate float64) (Order, error)
	CancelOpenOrders(ctx context.Context, pair string) error
}

// PositionStorage persists durable position records
type PositionStorage interface {
	CreatePosition(position *Position) error
	UpdatePosition(position *Position) error
	Positions(filters ...PositionFilter) ([]*Position, error)
	Close() error
}

// Notifier receives fire-and-forget operator alerts.
// Implementations must never block trading on delivery failures.
type Notifier interface {
	Notify(text string)
	OnPosition(position Position)
	OnError(err error)
}

type NotifierWithStart interface {
	Notifier
	Start()
}
