package regime

import (
	"fmt"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/indicator"
	"gonum.org/v1/gonum/stat"
)

// Parameters of the historical context. Windows are counted in daily
// candles.
const (
	minDailyCandles = 40

	atrPeriod          = 14
	atrBaselinePeriod  = 30
	breakoutPeriod     = 20
	rangeDayThreshold  = 0.015
	volumeAvgPeriod    = 20
	volWindowDays      = 7
	volFastChange      = 0.10
	volStableTolerance = 0.02
)

// History holds the auxiliary statistics derived from daily candles
// that the classifier needs beyond the per-timeframe bundles.
type History struct {
	CurrentATR  float64
	ATRBaseline float64

	channelHigh float64
	channelLow  float64
	lastClose   float64

	rangeLengthDays  int
	volumeLevel      core.VolumeLevel
	volatilityChange core.VolatilityChange
}

// BuildHistory derives the historical context from a daily candle
// window, newest candle last. Requires at least minDailyCandles.
func BuildHistory(daily []core.Candle) (*History, error) {
	if len(daily) < minDailyCandles {
		return nil, fmt.Errorf("%w: history needs %d daily candles, got %d",
			core.ErrInsufficientData, minDailyCandles, len(daily))
	}

	atr := indicator.ATR(core.Highs(daily), core.Lows(daily), core.Closes(daily), atrPeriod)

	// the first atrPeriod entries are warmup zeros and would deflate
	// the baseline on a near-minimum window
	settled := atr[atrPeriod:]
	baseline := settled
	if len(baseline) > atrBaselinePeriod {
		baseline = baseline[len(baseline)-atrBaselinePeriod:]
	}

	h := &History{
		CurrentATR:       atr[len(atr)-1],
		ATRBaseline:      stat.Mean(baseline, nil),
		lastClose:        daily[len(daily)-1].Close,
		rangeLengthDays:  countRangeDays(daily),
		volumeLevel:      volumeLevel(daily),
		volatilityChange: volatilityChange(atr),
	}
	h.channelHigh, h.channelLow = breakoutChannel(daily)

	return h, nil
}

// ATRRatio is current ATR over its 30-period baseline
func (h *History) ATRRatio() float64 {
	if h == nil || h.ATRBaseline == 0 {
		return 1
	}
	return h.CurrentATR / h.ATRBaseline
}

// Breakout compares the latest daily close against the channel built
// from the prior candles only, so the current candle cannot confirm
// its own breakout.
func (h *History) Breakout() core.Breakout {
	if h == nil {
		return core.Breakout{}
	}
	switch {
	case h.lastClose > h.channelHigh:
		return core.Breakout{IsBreakout: true, Direction: core.TrendBullish}
	case h.lastClose < h.channelLow:
		return core.Breakout{IsBreakout: true, Direction: core.TrendBearish}
	default:
		return core.Breakout{}
	}
}

// RangeLengthDays is the count of consecutive trailing quiet days
func (h *History) RangeLengthDays() int {
	if h == nil {
		return 0
	}
	return h.rangeLengthDays
}

// VolumeLevel classifies the latest daily volume against its average
func (h *History) VolumeLevel() core.VolumeLevel {
	if h == nil {
		return core.VolumeNormal
	}
	return h.volumeLevel
}

// VolatilityChange is the drift direction of recent volatility
func (h *History) VolatilityChange() core.VolatilityChange {
	if h == nil {
		return core.VolatilityStable
	}
	return h.volatilityChange
}

// breakoutChannel computes the highest-high/lowest-low channel over the
// breakout period, excluding the current candle
func breakoutChannel(daily []core.Candle) (high, low float64) {
	prior := daily[:len(daily)-1]
	window := prior[len(prior)-breakoutPeriod:]

	high, low = window[0].High, window[0].Low
	for _, candle := range window[1:] {
		if candle.High > high {
			high = candle.High
		}
		if candle.Low < low {
			low = candle.Low
		}
	}
	return high, low
}

// countRangeDays counts consecutive trailing days whose daily return
// magnitude stays below the range threshold
func countRangeDays(daily []core.Candle) int {
	count := 0
	for i := len(daily) - 1; i >= 0; i-- {
		r := daily[i].Return()
		if r < 0 {
			r = -r
		}
		if r >= rangeDayThreshold {
			break
		}
		count++
	}
	return count
}

func volumeLevel(daily []core.Candle) core.VolumeLevel {
	volumes := core.Volumes(daily)
	current := volumes[len(volumes)-1]
	mean := stat.Mean(volumes[len(volumes)-volumeAvgPeriod:], nil)

	switch {
	case mean == 0:
		return core.VolumeNormal
	case current > mean*1.5:
		return core.VolumeHigh
	case current < mean*0.5:
		return core.VolumeLow
	default:
		return core.VolumeNormal
	}
}

// volatilityChange compares three successive 7-day ATR windows
// pairwise. Both comparisons above the fast threshold mean a fast
// move; otherwise the most recent comparison decides the direction.
func volatilityChange(atr []float64) core.VolatilityChange {
	if len(atr) < 3*volWindowDays {
		return core.VolatilityStable
	}

	w3 := stat.Mean(atr[len(atr)-volWindowDays:], nil)
	w2 := stat.Mean(atr[len(atr)-2*volWindowDays:len(atr)-volWindowDays], nil)
	w1 := stat.Mean(atr[len(atr)-3*volWindowDays:len(atr)-2*volWindowDays], nil)
	if w1 == 0 || w2 == 0 {
		return core.VolatilityStable
	}

	older := (w2 - w1) / w1
	recent := (w3 - w2) / w2

	switch {
	case older > volFastChange && recent > volFastChange:
		return core.VolatilityIncreasingFast
	case older < -volFastChange && recent < -volFastChange:
		return core.VolatilityDecreasingFast
	case recent > volStableTolerance:
		return core.VolatilityIncreasing
	case recent < -volStableTolerance:
		return core.VolatilityDecreasing
	default:
		return core.VolatilityStable
	}
}
