package strategy

import (
	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/indicator"
)

// TrendFollowStrategy rides established trends: stacked EMAs, MACD
// histogram agreement and a minimum ADX. A trend with ADX between the
// weak and full thresholds produces only a weak signal.
type TrendFollowStrategy struct {
	timeframe       string
	emaFast         int
	emaSlow         int
	emaLong         int
	macdFast        int
	macdSlow        int
	macdSignal      int
	adxPeriod       int
	adxWeak         float64
	adxFull         float64
	atrPeriod       int
	stopATRFactor   float64
	targetATRFactor float64
}

func NewTrendFollow() *TrendFollowStrategy {
	return &TrendFollowStrategy{
		timeframe:       "1h",
		emaFast:         9,
		emaSlow:         21,
		emaLong:         55,
		macdFast:        12,
		macdSlow:        26,
		macdSignal:      9,
		adxPeriod:       14,
		adxWeak:         20,
		adxFull:         25,
		atrPeriod:       14,
		stopATRFactor:   2.0,
		targetATRFactor: 4.0,
	}
}

func (t *TrendFollowStrategy) Name() core.StrategyID { return TrendFollow }

func (t *TrendFollowStrategy) Timeframe() string { return t.timeframe }

func (t *TrendFollowStrategy) WarmupPeriod() int { return t.emaLong + t.macdSlow + t.macdSignal }

func (t *TrendFollowStrategy) GenerateSignal(candles []core.Candle, symbol string) core.Signal {
	if len(candles) < t.WarmupPeriod() {
		return core.Neutral(TrendFollow, "insufficient candles")
	}

	closes := core.Closes(candles)
	highs := core.Highs(candles)
	lows := core.Lows(candles)
	price := closes[len(closes)-1]

	emaFast := lastValue(indicator.EMA(closes, t.emaFast))
	emaSlow := lastValue(indicator.EMA(closes, t.emaSlow))
	emaLong := lastValue(indicator.EMA(closes, t.emaLong))
	_, _, histogram := indicator.MACD(closes, t.macdFast, t.macdSlow, t.macdSignal)
	hist := lastValue(histogram)
	adx := lastValue(indicator.ADX(highs, lows, closes, t.adxPeriod))
	atr := lastValue(indicator.ATR(highs, lows, closes, t.atrPeriod))

	bullStack := emaFast > emaSlow && emaSlow > emaLong
	bearStack := emaFast < emaSlow && emaSlow < emaLong

	var unmet []string
	if !bullStack && !bearStack {
		unmet = append(unmet, "EMAs not aligned")
	}
	if adx < t.adxWeak {
		unmet = append(unmet, "ADX below weak threshold")
	}

	switch {
	case bullStack && hist > 0 && adx >= t.adxWeak:
		direction := core.SignalBuy
		if adx < t.adxFull {
			direction = core.SignalWeakBuy
			unmet = append(unmet, "ADX below full trend threshold")
		}
		return core.Signal{
			Direction:       direction,
			StopLoss:        price - atr*t.stopATRFactor,
			TakeProfit:      price + atr*t.targetATRFactor,
			AllocationHint:  1.0,
			UnmetConditions: unmet,
			StrategyID:      TrendFollow,
		}

	case bearStack && hist < 0 && adx >= t.adxWeak:
		direction := core.SignalSell
		if adx < t.adxFull {
			direction = core.SignalWeakSell
			unmet = append(unmet, "ADX below full trend threshold")
		}
		return core.Signal{
			Direction:       direction,
			StopLoss:        price + atr*t.stopATRFactor,
			TakeProfit:      price - atr*t.targetATRFactor,
			AllocationHint:  1.0,
			UnmetConditions: unmet,
			StrategyID:      TrendFollow,
		}
	}

	if hist == 0 {
		unmet = append(unmet, "MACD histogram flat")
	} else {
		unmet = append(unmet, "MACD histogram against EMA stack")
	}
	return core.Neutral(TrendFollow, unmet...)
}
