package strategy

import (
	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/indicator"
)

// MomentumStrategy chases volatility thrusts: RSI crossing out of the
// neutral zone while ATR is expanding, with volume behind the move.
// Built for high and rising volatility regimes where mean reversion
// gets run over.
type MomentumStrategy struct {
	timeframe    string
	rsiPeriod    int
	rsiBullCross float64
	rsiBearCross float64
	atrPeriod    int
	atrLookback  int
	volumeAvg    int
	volumeRatio  float64
	stopATR      float64
	targetATR    float64
}

func NewMomentum() *MomentumStrategy {
	return &MomentumStrategy{
		timeframe:    "15m",
		rsiPeriod:    14,
		rsiBullCross: 60,
		rsiBearCross: 40,
		atrPeriod:    14,
		atrLookback:  5,
		volumeAvg:    20,
		volumeRatio:  1.2,
		stopATR:      1.5,
		targetATR:    3.0,
	}
}

func (m *MomentumStrategy) Name() core.StrategyID { return Momentum }

func (m *MomentumStrategy) Timeframe() string { return m.timeframe }

func (m *MomentumStrategy) WarmupPeriod() int { return m.rsiPeriod + m.volumeAvg + m.atrLookback + 10 }

func (m *MomentumStrategy) GenerateSignal(candles []core.Candle, symbol string) core.Signal {
	if len(candles) < m.WarmupPeriod() {
		return core.Neutral(Momentum, "insufficient candles")
	}

	closes := core.Closes(candles)
	highs := core.Highs(candles)
	lows := core.Lows(candles)
	price := closes[len(closes)-1]

	rsi := core.Series[float64](indicator.RSI(closes, m.rsiPeriod))
	atr := core.Series[float64](indicator.ATR(highs, lows, closes, m.atrPeriod))
	atrRising := atr.Rising(m.atrLookback)

	volumes := core.Volumes(candles)
	avgVolume := lastValue(indicator.SMA(volumes[:len(volumes)-1], m.volumeAvg))
	volumeBehind := avgVolume > 0 && volumes[len(volumes)-1] > avgVolume*m.volumeRatio

	bullThrust := rsi.Last(0) > m.rsiBullCross && rsi.Last(1) <= m.rsiBullCross
	bearThrust := rsi.Last(0) < m.rsiBearCross && rsi.Last(1) >= m.rsiBearCross

	var unmet []string
	if !atrRising {
		unmet = append(unmet, "ATR not expanding")
	}
	if !volumeBehind {
		unmet = append(unmet, "volume below thrust ratio")
	}

	if bullThrust && atrRising {
		direction := core.SignalBuy
		if !volumeBehind {
			direction = core.SignalWeakBuy
		}
		return core.Signal{
			Direction:       direction,
			StopLoss:        price - atr.Last(0)*m.stopATR,
			TakeProfit:      price + atr.Last(0)*m.targetATR,
			AllocationHint:  1.0,
			UnmetConditions: unmet,
			StrategyID:      Momentum,
		}
	}

	if bearThrust && atrRising {
		direction := core.SignalSell
		if !volumeBehind {
			direction = core.SignalWeakSell
		}
		return core.Signal{
			Direction:       direction,
			StopLoss:        price + atr.Last(0)*m.stopATR,
			TakeProfit:      price - atr.Last(0)*m.targetATR,
			AllocationHint:  1.0,
			UnmetConditions: unmet,
			StrategyID:      Momentum,
		}
	}

	if !bullThrust && !bearThrust {
		unmet = append(unmet, "no RSI thrust")
	}
	return core.Neutral(Momentum, unmet...)
}
