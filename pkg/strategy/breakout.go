package strategy

import (
	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/indicator"
)

// BreakoutStrategy trades closes beyond the recent highest-high/
// lowest-low channel, with volume confirmation. The channel is built
// on prior candles only so the breakout candle cannot widen it.
type BreakoutStrategy struct {
	timeframe      string
	channelPeriod  int
	volumeAvg      int
	volumeRatio    float64
	atrPeriod      int
	stopATRFactor  float64
	allocationHint float64
}

func NewBreakout() *BreakoutStrategy {
	return &BreakoutStrategy{
		timeframe:      "1h",
		channelPeriod:  20,
		volumeAvg:      20,
		volumeRatio:    1.5,
		atrPeriod:      14,
		stopATRFactor:  1.5,
		allocationHint: 1.0,
	}
}

func (b *BreakoutStrategy) Name() core.StrategyID { return Breakout }

func (b *BreakoutStrategy) Timeframe() string { return b.timeframe }

func (b *BreakoutStrategy) WarmupPeriod() int { return b.channelPeriod + b.atrPeriod + 10 }

func (b *BreakoutStrategy) GenerateSignal(candles []core.Candle, symbol string) core.Signal {
	if len(candles) < b.WarmupPeriod() {
		return core.Neutral(Breakout, "insufficient candles")
	}

	prior := candles[:len(candles)-1]
	channelHigh := maxHigh(prior[len(prior)-b.channelPeriod:])
	channelLow := minLow(prior[len(prior)-b.channelPeriod:])
	channelHeight := channelHigh - channelLow

	last := candles[len(candles)-1]
	atr := lastValue(indicator.ATR(core.Highs(candles), core.Lows(candles), core.Closes(candles), b.atrPeriod))

	volumes := core.Volumes(prior)
	avgVolume := lastValue(indicator.SMA(volumes, b.volumeAvg))
	volumeConfirmed := avgVolume > 0 && last.Volume > avgVolume*b.volumeRatio

	switch {
	case last.Close > channelHigh:
		direction := core.SignalBuy
		var unmet []string
		if !volumeConfirmed {
			direction = core.SignalWeakBuy
			unmet = append(unmet, "volume below confirmation ratio")
		}
		return core.Signal{
			Direction:       direction,
			StopLoss:        last.Close - atr*b.stopATRFactor,
			TakeProfit:      last.Close + channelHeight,
			AllocationHint:  b.allocationHint,
			UnmetConditions: unmet,
			StrategyID:      Breakout,
		}

	case last.Close < channelLow:
		direction := core.SignalSell
		var unmet []string
		if !volumeConfirmed {
			direction = core.SignalWeakSell
			unmet = append(unmet, "volume below confirmation ratio")
		}
		return core.Signal{
			Direction:       direction,
			StopLoss:        last.Close + atr*b.stopATRFactor,
			TakeProfit:      last.Close - channelHeight,
			AllocationHint:  b.allocationHint,
			UnmetConditions: unmet,
			StrategyID:      Breakout,
		}
	}

	return core.Neutral(Breakout, "close inside channel")
}

func maxHigh(candles []core.Candle) float64 {
	max := candles[0].High
	for _, c := range candles[1:] {
		if c.High > max {
			max = c.High
		}
	}
	return max
}

func minLow(candles []core.Candle) float64 {
	min := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < min {
			min = c.Low
		}
	}
	return min
}

func lastValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
