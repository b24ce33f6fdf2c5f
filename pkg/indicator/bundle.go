package indicator

import (
	"fmt"

	"github.com/raykavin/regimerun/pkg/core"
)

// Default indicator parameters. Standard closed-form definitions;
// the bundle is stateless given its candle window.
const (
	MinCandles = 30

	bandPeriod     = 20
	bandDeviation  = 2.0
	rsiPeriod      = 14
	macdFast       = 12
	macdSlow       = 26
	macdSignal     = 9
	adxPeriod      = 14
	atrPeriod      = 14
	stochFastK     = 14
	stochSlowK     = 3
	stochSlowD     = 3
	atrTrendLookup = 5
	tailSize       = 20
)

// ATRTrend labels the recent drift of the average true range
type ATRTrend string

const (
	ATRTrendUp      ATRTrend = "UP"
	ATRTrendDown    ATRTrend = "DOWN"
	ATRTrendNeutral ATRTrend = "NEUTRAL"
)

// VolatilityBand is a Bollinger band snapshot
type VolatilityBand struct {
	Upper    float64
	Lower    float64
	Basis    float64
	Width    float64 // (upper-lower)/basis, fractional
	PercentB float64 // position of close within the band, 0..1
}

// MomentumOscillator is an RSI snapshot with recent history for
// divergence detection
type MomentumOscillator struct {
	Value   float64
	History []float64
}

// TrendOscillator is a MACD snapshot
type TrendOscillator struct {
	MACDLine   float64
	SignalLine float64
	Histogram  float64
}

// DirectionalIndex is an ADX/DI snapshot
type DirectionalIndex struct {
	Value   float64
	PlusDI  float64
	MinusDI float64
}

// AverageTrueRange is an ATR snapshot with its recent drift direction
type AverageTrueRange struct {
	Value float64
	Trend ATRTrend
}

// Stochastic is a slow stochastic snapshot
type Stochastic struct {
	K float64
	D float64
}

// Bundle is the per-timeframe snapshot of all indicators computed from
// a raw candle window. Recomputed on every scan, never persisted.
type Bundle struct {
	Timeframe   string
	Band        VolatilityBand
	Momentum    MomentumOscillator
	Trend       TrendOscillator
	Directional DirectionalIndex
	ATR         AverageTrueRange
	Stoch       Stochastic

	LastClose float64
	Closes    []float64 // tail of the close series, newest last
	Highs     []float64 // tail of the high series, newest last
	Lows      []float64 // tail of the low series, newest last
}

// ComputeBundle computes the full indicator bundle for one timeframe.
// Requires at least MinCandles candles; returns core.ErrInsufficientData
// otherwise so the caller can treat the timeframe as unavailable.
func ComputeBundle(candles []core.Candle, timeframe string) (*Bundle, error) {
	if len(candles) < MinCandles {
		return nil, fmt.Errorf("%w: %s needs %d candles, got %d",
			core.ErrInsufficientData, timeframe, MinCandles, len(candles))
	}

	closes := core.Closes(candles)
	highs := core.Highs(candles)
	lows := core.Lows(candles)
	lastClose := closes[len(closes)-1]

	upper, basis, lower := BB(closes, bandPeriod, bandDeviation, TypeSMA)
	rsi := RSI(closes, rsiPeriod)
	macdLine, signalLine, histogram := MACD(closes, macdFast, macdSlow, macdSignal)
	adx := ADX(highs, lows, closes, adxPeriod)
	plusDI := PlusDI(highs, lows, closes, adxPeriod)
	minusDI := MinusDI(highs, lows, closes, adxPeriod)
	atr := ATR(highs, lows, closes, atrPeriod)
	stochK, stochD := Stoch(highs, lows, closes, stochFastK, stochSlowK, stochSlowD)

	bundle := &Bundle{
		Timeframe: timeframe,
		Band:      bandSnapshot(upper, basis, lower, lastClose),
		Momentum: MomentumOscillator{
			Value:   last(rsi),
			History: tail(rsi, tailSize),
		},
		Trend: TrendOscillator{
			MACDLine:   last(macdLine),
			SignalLine: last(signalLine),
			Histogram:  last(histogram),
		},
		Directional: DirectionalIndex{
			Value:   last(adx),
			PlusDI:  last(plusDI),
			MinusDI: last(minusDI),
		},
		ATR: AverageTrueRange{
			Value: last(atr),
			Trend: atrTrend(atr),
		},
		Stoch: Stochastic{
			K: last(stochK),
			D: last(stochD),
		},
		LastClose: lastClose,
		Closes:    tail(closes, tailSize),
		Highs:     tail(highs, tailSize),
		Lows:      tail(lows, tailSize),
	}

	return bundle, nil
}

func bandSnapshot(upper, basis, lower []float64, close float64) VolatilityBand {
	u, b, l := last(upper), last(basis), last(lower)

	band := VolatilityBand{Upper: u, Basis: b, Lower: l}
	if b != 0 {
		band.Width = (u - l) / b
	}
	if u != l {
		band.PercentB = (close - l) / (u - l)
	}
	return band
}

// atrTrend compares the last ATR value against atrTrendLookup bars ago
// with a 2% tolerance band
func atrTrend(atr []float64) ATRTrend {
	if len(atr) <= atrTrendLookup {
		return ATRTrendNeutral
	}

	current := last(atr)
	previous := atr[len(atr)-1-atrTrendLookup]
	if previous == 0 {
		return ATRTrendNeutral
	}

	switch change := (current - previous) / previous; {
	case change > 0.02:
		return ATRTrendUp
	case change < -0.02:
		return ATRTrendDown
	default:
		return ATRTrendNeutral
	}
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func tail(values []float64, size int) []float64 {
	if len(values) <= size {
		return values
	}
	return values[len(values)-size:]
}
