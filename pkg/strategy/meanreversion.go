package strategy

import (
	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/indicator"
)

// MeanReversionStrategy fades band extremes: a close pinned to the
// outer Bollinger band together with an RSI extreme. The take-profit
// targets the band basis, where a ranging market is expected to pull
// the price back.
type MeanReversionStrategy struct {
	timeframe     string
	bandPeriod    int
	bandDeviation float64
	rsiPeriod     int
	rsiOversold   float64
	rsiOverbought float64
	lowerBandZone float64
	upperBandZone float64
	stopPercent   float64
}

func NewMeanReversion() *MeanReversionStrategy {
	return &MeanReversionStrategy{
		timeframe:     "15m",
		bandPeriod:    20,
		bandDeviation: 2.0,
		rsiPeriod:     14,
		rsiOversold:   30,
		rsiOverbought: 70,
		lowerBandZone: 0.05,
		upperBandZone: 0.95,
		stopPercent:   1.0,
	}
}

func (m *MeanReversionStrategy) Name() core.StrategyID { return MeanReversion }

func (m *MeanReversionStrategy) Timeframe() string { return m.timeframe }

func (m *MeanReversionStrategy) WarmupPeriod() int { return m.bandPeriod + m.rsiPeriod + 10 }

func (m *MeanReversionStrategy) GenerateSignal(candles []core.Candle, symbol string) core.Signal {
	if len(candles) < m.WarmupPeriod() {
		return core.Neutral(MeanReversion, "insufficient candles")
	}

	closes := core.Closes(candles)
	price := closes[len(closes)-1]

	upper, basis, lower := indicator.BB(closes, m.bandPeriod, m.bandDeviation, indicator.TypeSMA)
	u, b, l := lastValue(upper), lastValue(basis), lastValue(lower)
	rsi := lastValue(indicator.RSI(closes, m.rsiPeriod))

	if u == l {
		return core.Neutral(MeanReversion, "band collapsed")
	}
	percentB := (price - l) / (u - l)

	switch {
	case percentB < m.lowerBandZone && rsi < m.rsiOversold:
		return core.Signal{
			Direction:      core.SignalBuy,
			StopLoss:       price * (1 - m.stopPercent/100),
			TakeProfit:     b,
			AllocationHint: 1.0,
			StrategyID:     MeanReversion,
		}

	case percentB > m.upperBandZone && rsi > m.rsiOverbought:
		return core.Signal{
			Direction:      core.SignalSell,
			StopLoss:       price * (1 + m.stopPercent/100),
			TakeProfit:     b,
			AllocationHint: 1.0,
			StrategyID:     MeanReversion,
		}
	}

	var unmet []string
	if percentB >= m.lowerBandZone && percentB <= m.upperBandZone {
		unmet = append(unmet, "price not at band extreme")
	}
	if rsi >= m.rsiOversold && rsi <= m.rsiOverbought {
		unmet = append(unmet, "RSI not at extreme")
	}
	return core.Neutral(MeanReversion, unmet...)
}
