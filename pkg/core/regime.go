package core

// VolatilityLevel classifies current volatility against its baseline
type VolatilityLevel string

const (
	VolatilityLow    VolatilityLevel = "low"
	VolatilityNormal VolatilityLevel = "normal"
	VolatilityHigh   VolatilityLevel = "high"
)

// TrendDirection is the aggregated multi-timeframe trend call
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

// VolumeLevel classifies traded volume against its recent average
type VolumeLevel string

const (
	VolumeLow    VolumeLevel = "low"
	VolumeNormal VolumeLevel = "normal"
	VolumeHigh   VolumeLevel = "high"
)

// MarketType is the coarse market classification used for strategy selection
type MarketType string

const (
	MarketTrending MarketType = "trending"
	MarketRanging  MarketType = "ranging"
	MarketChoppy   MarketType = "choppy"
)

// VolatilityChange describes the direction and pace of volatility drift
type VolatilityChange string

const (
	VolatilityIncreasingFast VolatilityChange = "increasing-fast"
	VolatilityIncreasing     VolatilityChange = "increasing"
	VolatilityStable         VolatilityChange = "stable"
	VolatilityDecreasing     VolatilityChange = "decreasing"
	VolatilityDecreasingFast VolatilityChange = "decreasing-fast"
)

// Breakout flags a close beyond the recent price channel
type Breakout struct {
	IsBreakout bool
	Direction  TrendDirection
}

// RegimeSnapshot labels the current market regime for one symbol.
// Recomputed on every scan and kept only for the most recent one.
type RegimeSnapshot struct {
	Volatility       VolatilityLevel
	Trend            TrendDirection
	TrendStrength    float64 // 0-100
	Volume           VolumeLevel
	MarketType       MarketType
	Breakout         Breakout
	RangeLengthDays  int
	VolatilityChange VolatilityChange
}
