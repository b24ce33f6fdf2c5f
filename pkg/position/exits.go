package position

import (
	"fmt"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/indicator"
)

// Exit reasons recorded on the durable position
const (
	ReasonStopLoss       = "Stop loss hit"
	ReasonTakeProfit     = "Take profit hit"
	ReasonTrailingStop   = "Trailing stop hit"
	ReasonMaxDrawdown    = "Max drawdown from peak exceeded"
	ReasonClosedExternal = "closed externally"

	adxExhausted     = 20.0
	adxExitMinProfit = 0.5
	divergenceSplit  = 5
)

// exitDecision is the outcome of the exit rule evaluation. exitPrice is
// the level the close is attributed to, which for stop-type exits is the
// stop level rather than the observed tick.
type exitDecision struct {
	exitPrice float64
	reason    string
}

// evaluateExit walks the exit rules in fixed priority order and returns
// the first match: stop-loss, take-profit, trailing stop, drawdown from
// peak, then technical exits on the longer timeframes.
func (m *Manager) evaluateExit(pos *core.Position, rt *RuntimeState, data MarketData) (exitDecision, bool) {
	price := data.Price
	long := pos.IsLong()

	if pos.StopLoss > 0 && touched(long, price, pos.StopLoss, true) {
		return exitDecision{pos.StopLoss, ReasonStopLoss}, true
	}

	if pos.TakeProfit > 0 && touched(long, price, pos.TakeProfit, false) {
		return exitDecision{pos.TakeProfit, ReasonTakeProfit}, true
	}

	if rt.TrailingActive && touched(long, price, rt.TrailingLevel, true) {
		return exitDecision{rt.TrailingLevel, ReasonTrailingStop}, true
	}

	if m.drawdownExceeded(pos, rt, price) {
		return exitDecision{price, ReasonMaxDrawdown}, true
	}

	if reason, ok := m.technicalExit(pos, data); ok {
		return exitDecision{price, reason}, true
	}

	return exitDecision{}, false
}

// touched reports whether the price has reached a protective level.
// below selects the adverse side: stops sit below a long and above a
// short, targets the other way around.
func touched(long bool, price, level float64, below bool) bool {
	if long == below {
		return price <= level
	}
	return price >= level
}

// drawdownExceeded checks the retreat from the favorable extreme
// against the configured threshold
func (m *Manager) drawdownExceeded(pos *core.Position, rt *RuntimeState, price float64) bool {
	threshold := m.settings.MaxDrawdownPercent
	if threshold <= 0 {
		return false
	}

	if pos.IsLong() {
		if rt.HighestPrice <= 0 {
			return false
		}
		return (rt.HighestPrice-price)/rt.HighestPrice*100 >= threshold
	}
	if rt.LowestPrice <= 0 {
		return false
	}
	return (price-rt.LowestPrice)/rt.LowestPrice*100 >= threshold
}

// technicalExit evaluates the indicator-driven exits on the longer
// timeframes: oscillator divergence against the position, a trend
// oscillator cross against it with line and histogram agreeing, or a
// trend that died while the position is in profit.
func (m *Manager) technicalExit(pos *core.Position, data MarketData) (string, bool) {
	long := pos.IsLong()

	for _, timeframe := range m.longTimeframes() {
		bundle, ok := data.Bundles[timeframe]
		if !ok {
			continue
		}

		if hasDivergence(bundle, long) {
			return fmt.Sprintf("Technical exit: RSI divergence on %s", timeframe), true
		}

		if crossedAgainst(bundle, long) {
			return fmt.Sprintf("Technical exit: trend oscillator crossed on %s", timeframe), true
		}

		if bundle.Directional.Value < adxExhausted &&
			pos.ProfitPercent(data.Price) > adxExitMinProfit {
			return fmt.Sprintf("Technical exit: trend exhausted on %s", timeframe), true
		}
	}

	return "", false
}

// longTimeframes returns every configured timeframe beyond the shortest
func (m *Manager) longTimeframes() []string {
	if len(m.settings.Timeframes) <= 1 {
		return m.settings.Timeframes
	}
	return m.settings.Timeframes[1:]
}

// hasDivergence compares the last two swing windows of price and
// oscillator. A long position exits when price printed a higher high
// while the oscillator printed a lower high; a short mirrors this on
// the lows.
func hasDivergence(b *indicator.Bundle, long bool) bool {
	if len(b.Momentum.History) < 2*divergenceSplit {
		return false
	}

	if long {
		if len(b.Highs) < 2*divergenceSplit {
			return false
		}
		priceOld, priceNew := splitMax(b.Highs)
		rsiOld, rsiNew := splitMax(b.Momentum.History)
		return priceNew > priceOld && rsiNew < rsiOld
	}

	if len(b.Lows) < 2*divergenceSplit {
		return false
	}
	priceOld, priceNew := splitMin(b.Lows)
	rsiOld, rsiNew := splitMin(b.Momentum.History)
	return priceNew < priceOld && rsiNew > rsiOld
}

// crossedAgainst reports a trend oscillator cross against the position
// direction while the histogram and the line share that sign
func crossedAgainst(b *indicator.Bundle, long bool) bool {
	if long {
		return b.Trend.MACDLine < b.Trend.SignalLine &&
			b.Trend.Histogram < 0 && b.Trend.MACDLine < 0
	}
	return b.Trend.MACDLine > b.Trend.SignalLine &&
		b.Trend.Histogram > 0 && b.Trend.MACDLine > 0
}

// splitMax returns the maxima of the older and newer halves of the
// last two swing windows
func splitMax(values []float64) (older, newer float64) {
	n := len(values)
	older = maxOf(values[n-2*divergenceSplit : n-divergenceSplit])
	newer = maxOf(values[n-divergenceSplit:])
	return older, newer
}

func splitMin(values []float64) (older, newer float64) {
	n := len(values)
	older = minOf(values[n-2*divergenceSplit : n-divergenceSplit])
	newer = minOf(values[n-divergenceSplit:])
	return older, newer
}

func maxOf(values []float64) float64 {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func minOf(values []float64) float64 {
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}
