package regime

import (
	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/indicator"
	"github.com/raykavin/regimerun/pkg/logger"
	"github.com/samber/lo"
)

// Classification thresholds. ATR ratios follow the usual 1.5x/0.7x
// bands; market-type cuts come from trend strength and band width.
const (
	highVolRatio = 1.5
	lowVolRatio  = 0.7

	trendingStrength = 70
	choppyStrength   = 40
	rangingBandWidth = 0.03
	fallbackTrendCut = 50
)

// Classifier labels the current market regime from multi-timeframe
// indicator bundles plus the daily historical context
type Classifier struct {
	log logger.Logger
}

func NewClassifier(log logger.Logger) *Classifier {
	return &Classifier{log: log}
}

// Classify builds the regime snapshot for one symbol. A nil history is
// tolerated: volatility ratio falls back to 1.0 and history-derived
// fields take neutral values.
func (c *Classifier) Classify(bundles map[string]*indicator.Bundle, hist *History) core.RegimeSnapshot {
	votes := indicator.VoteAll(bundles)
	trend, strength := trendFromVotes(votes)
	volatility := volatilityLevel(hist.ATRRatio())

	snapshot := core.RegimeSnapshot{
		Volatility:       volatility,
		Trend:            trend,
		TrendStrength:    strength,
		Volume:           hist.VolumeLevel(),
		MarketType:       marketType(strength, volatility, avgBandWidth(bundles)),
		Breakout:         hist.Breakout(),
		RangeLengthDays:  hist.RangeLengthDays(),
		VolatilityChange: hist.VolatilityChange(),
	}

	c.log.WithFields(map[string]any{
		"volatility": snapshot.Volatility,
		"trend":      snapshot.Trend,
		"strength":   snapshot.TrendStrength,
		"market":     snapshot.MarketType,
		"breakout":   snapshot.Breakout.IsBreakout,
	}).Debug("regime classified")

	return snapshot
}

// trendFromVotes aggregates bullish/bearish votes across every
// available timeframe into a majority-vote direction and a 0-100
// strength
func trendFromVotes(votes indicator.Votes) (core.TrendDirection, float64) {
	total := votes.Total()
	if total == 0 {
		return core.TrendNeutral, 0
	}

	diff := votes.Bullish - votes.Bearish
	strength := float64(abs(diff)) / float64(total) * 100

	switch {
	case diff > 0:
		return core.TrendBullish, strength
	case diff < 0:
		return core.TrendBearish, strength
	default:
		return core.TrendNeutral, 0
	}
}

func volatilityLevel(atrRatio float64) core.VolatilityLevel {
	switch {
	case atrRatio > highVolRatio:
		return core.VolatilityHigh
	case atrRatio < lowVolRatio:
		return core.VolatilityLow
	default:
		return core.VolatilityNormal
	}
}

func marketType(strength float64, volatility core.VolatilityLevel, bandWidth float64) core.MarketType {
	switch {
	case strength > trendingStrength && volatility != core.VolatilityLow:
		return core.MarketTrending
	case volatility == core.VolatilityHigh && strength < choppyStrength:
		return core.MarketChoppy
	case bandWidth < rangingBandWidth && volatility == core.VolatilityLow:
		return core.MarketRanging
	case strength > fallbackTrendCut:
		return core.MarketTrending
	default:
		return core.MarketRanging
	}
}

// avgBandWidth averages the Bollinger band width across the available
// timeframes, making the market-type cut independent of which
// timeframes happened to have enough candles
func avgBandWidth(bundles map[string]*indicator.Bundle) float64 {
	widths := lo.Map(lo.Values(bundles), func(b *indicator.Bundle, _ int) float64 {
		return b.Band.Width
	})
	if len(widths) == 0 {
		return 0
	}
	return lo.Sum(widths) / float64(len(widths))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
