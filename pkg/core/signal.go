package core

// SignalDirection is the directional call produced by a strategy
type SignalDirection string

const (
	SignalBuy      SignalDirection = "BUY"
	SignalSell     SignalDirection = "SELL"
	SignalWeakBuy  SignalDirection = "WEAK_BUY"
	SignalWeakSell SignalDirection = "WEAK_SELL"
	SignalNeutral  SignalDirection = "NEUTRAL"
)

// Side maps a directional signal to the order side used to open it
func (d SignalDirection) Side() SideType {
	switch d {
	case SignalBuy, SignalWeakBuy:
		return SideTypeBuy
	default:
		return SideTypeSell
	}
}

// Signal is the per-scan output of the selected strategy for one symbol.
// Ephemeral, produced once per scan and never persisted.
type Signal struct {
	Direction       SignalDirection
	StopLoss        float64
	TakeProfit      float64
	AllocationHint  float64
	UnmetConditions []string
	StrategyID      StrategyID
}

// Actionable reports whether the signal should open a position
func (s Signal) Actionable() bool {
	return s.Direction == SignalBuy || s.Direction == SignalSell
}

// Neutral builds a non-actionable signal carrying the unmet conditions
// for diagnostics
func Neutral(id StrategyID, unmet ...string) Signal {
	return Signal{Direction: SignalNeutral, StrategyID: id, UnmetConditions: unmet}
}
