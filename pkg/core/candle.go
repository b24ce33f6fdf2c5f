package core

import (
	"fmt"
	"time"
)

// Candle represents a trading candle with OHLCV data.
// Candles are immutable once received from the exchange.
type Candle struct {
	Pair     string
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Complete bool
}

// GetPair returns the trading pair identifier for the candle
func (c Candle) GetPair() string { return c.Pair }

// GetTime returns the open time of the candle
func (c Candle) GetTime() time.Time { return c.Time }

// IsEmpty checks if the candle contains no significant data
func (c Candle) IsEmpty() bool { return c.Pair == "" && c.Close == 0 && c.Open == 0 && c.Volume == 0 }

// Return is the fractional close-over-open return of the candle
func (c Candle) Return() float64 {
	if c.Open == 0 {
		return 0
	}
	return (c.Close - c.Open) / c.Open
}

func (c Candle) String() string {
	return fmt.Sprintf("%s %s O:%f H:%f L:%f C:%f V:%f",
		c.Pair, c.Time.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
}

// Closes extracts the close series from a candle window
func Closes(candles []Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.Close
	}
	return values
}

// Highs extracts the high series from a candle window
func Highs(candles []Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.High
	}
	return values
}

// Lows extracts the low series from a candle window
func Lows(candles []Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.Low
	}
	return values
}

// Volumes extracts the volume series from a candle window
func Volumes(candles []Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.Volume
	}
	return values
}
