package indicator

import "github.com/markcheno/go-talib"

// MaType represents moving average type
type MaType = talib.MaType

// Moving average type constants
const (
	TypeSMA = talib.SMA // Simple Moving Average
	TypeEMA = talib.EMA // Exponential Moving Average
)

// BB calculates Bollinger Bands
// Returns upper, middle, and lower bands
func BB(input []float64, period int, deviation float64, maType MaType) ([]float64, []float64, []float64) {
	return talib.BBands(input, period, deviation, deviation, maType)
}

// EMA calculates Exponential Moving Average
func EMA(input []float64, period int) []float64 {
	return talib.Ema(input, period)
}

// SMA calculates Simple Moving Average
func SMA(input []float64, period int) []float64 {
	return talib.Sma(input, period)
}

// RSI calculates the Relative Strength Index
func RSI(input []float64, period int) []float64 {
	return talib.Rsi(input, period)
}

// MACD calculates Moving Average Convergence/Divergence
// Returns MACD line, signal line, and histogram
func MACD(input []float64, fastPeriod, slowPeriod, signalPeriod int) ([]float64, []float64, []float64) {
	return talib.Macd(input, fastPeriod, slowPeriod, signalPeriod)
}

// ADX calculates the Average Directional Movement Index
func ADX(high, low, close []float64, period int) []float64 {
	return talib.Adx(high, low, close, period)
}

// PlusDI calculates the Plus Directional Indicator
func PlusDI(high, low, close []float64, period int) []float64 {
	return talib.PlusDI(high, low, close, period)
}

// MinusDI calculates the Minus Directional Indicator
func MinusDI(high, low, close []float64, period int) []float64 {
	return talib.MinusDI(high, low, close, period)
}

// ATR calculates the Average True Range with Wilder smoothing
func ATR(high, low, close []float64, period int) []float64 {
	return talib.Atr(high, low, close, period)
}

// Stoch calculates the slow Stochastic oscillator
// Returns %K and %D
func Stoch(high, low, close []float64, fastK, slowK, slowD int) ([]float64, []float64) {
	return talib.Stoch(high, low, close, fastK, slowK, talib.SMA, slowD, talib.SMA)
}

// Max calculates the highest value over a rolling period
func Max(input []float64, period int) []float64 {
	return talib.Max(input, period)
}

// Min calculates the lowest value over a rolling period
func Min(input []float64, period int) []float64 {
	return talib.Min(input, period)
}
