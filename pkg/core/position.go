package core

import (
	"time"
)

// StrategyID identifies a registered trading strategy
type StrategyID string

// PositionFilter is a predicate applied when querying stored positions
type PositionFilter func(position Position) bool

// WithSymbol filters positions by trading pair
func WithSymbol(symbol string) PositionFilter {
	return func(position Position) bool {
		return position.Symbol == symbol
	}
}

// WithActive filters positions by active flag
func WithActive(active bool) PositionFilter {
	return func(position Position) bool {
		return position.IsActive == active
	}
}

// Position is the durable record of a leveraged trade, from the first
// entry fill until close. Owned exclusively by the lifecycle manager;
// storage implementations only persist and load it.
type Position struct {
	ID              int64      `json:"id" gorm:"primaryKey,autoIncrement"`
	Symbol          string     `json:"symbol" gorm:"index"`
	Side            SideType   `json:"side"`
	EntryPrices     []float64  `json:"entry_prices" gorm:"serializer:json"`
	Quantity        float64    `json:"quantity"`
	TotalAllocation float64    `json:"total_allocation"`
	Leverage        int        `json:"leverage"`
	ScaleStep       int        `json:"scale_step"`
	StopLoss        float64    `json:"stop_loss"`
	TakeProfit      float64    `json:"take_profit"`
	StrategyUsed    StrategyID `json:"strategy_used"`
	IsActive        bool       `json:"is_active" gorm:"index"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
	ClosedPrice     float64    `json:"closed_price,omitempty"`
	ExitReason      string     `json:"exit_reason,omitempty"`
	PnLPercent      float64    `json:"pnl_percent,omitempty"`
	PnLAmount       float64    `json:"pnl_amount,omitempty"`
}

// IsLong reports whether the position direction is long
func (p Position) IsLong() bool { return p.Side == SideTypeBuy }

// AvgEntryPrice returns the average of all entry fills
func (p Position) AvgEntryPrice() float64 {
	if len(p.EntryPrices) == 0 {
		return 0
	}
	sum := 0.0
	for _, price := range p.EntryPrices {
		sum += price
	}
	return sum / float64(len(p.EntryPrices))
}

// ProfitPercent returns the unleveraged price-move profit at the given
// price, positive when the move favors the position.
func (p Position) ProfitPercent(price float64) float64 {
	entry := p.AvgEntryPrice()
	if entry == 0 {
		return 0
	}
	if p.IsLong() {
		return (price - entry) / entry * 100
	}
	return (entry - price) / entry * 100
}

// HoldTime returns how long the position has been (or was) open
func (p Position) HoldTime() time.Duration {
	if p.ClosedAt != nil {
		return p.ClosedAt.Sub(p.OpenedAt)
	}
	return time.Since(p.OpenedAt)
}
