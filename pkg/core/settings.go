package core

import (
	"fmt"
	"time"
)

// Settings is the full configuration surface of the engine.
// All numeric policy knobs are configuration, not hard-coded policy;
// the defaults below are starting points, not recommendations.
type Settings struct {
	Symbols    []string
	Timeframes []string // indicator timeframes, shortest first

	Leverage         int
	MarginType       string
	StaticAllocation float64 // quote amount per entry
	RiskPerTrade     float64 // fraction of balance, overrides StaticAllocation when > 0

	StopLossPercent   float64
	TakeProfitPercent float64

	TrailingStop       TrailingStopSettings
	BreakEvenPercent   float64 // unrealized profit % that moves the stop to entry
	MaxDrawdownPercent float64 // close when drawdown from peak exceeds this

	MaxScaleIns       int
	ScaleSizeFraction float64 // scale-in size as a fraction of the initial quantity
	MaxOpenPositions  int

	ScanInterval   time.Duration
	ManageInterval time.Duration
	CallTimeout    time.Duration // per exchange call, mandatory

	Telegram TelegramSettings
}

// TrailingStopSettings controls the trailing stop behavior
type TrailingStopSettings struct {
	Enabled            bool
	DistancePercent    float64 // distance from the favorable extreme
	ActivationFraction float64 // fraction of the distance to take-profit
}

// TelegramSettings holds configuration for Telegram integration
type TelegramSettings struct {
	Enabled bool
	Token   string
	Users   []int
}

// DefaultSettings returns a settings struct with working defaults
// for every policy knob
func DefaultSettings() Settings {
	return Settings{
		Timeframes:        []string{"15m", "1h", "4h"},
		Leverage:          5,
		MarginType:        "CROSSED",
		StaticAllocation:  100,
		StopLossPercent:   1.0,
		TakeProfitPercent: 2.0,
		TrailingStop: TrailingStopSettings{
			Enabled:            true,
			DistancePercent:    1.0,
			ActivationFraction: 0.5,
		},
		BreakEvenPercent:   1.0,
		MaxDrawdownPercent: 2.0,
		MaxScaleIns:        3,
		ScaleSizeFraction:  0.5,
		MaxOpenPositions:   5,
		ScanInterval:       2 * time.Minute,
		ManageInterval:     time.Minute,
		CallTimeout:        15 * time.Second,
	}
}

// Validate checks the settings for values the engine cannot run with
func (s Settings) Validate() error {
	if len(s.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}
	if len(s.Timeframes) == 0 {
		return fmt.Errorf("no timeframes configured")
	}
	if s.Leverage < 1 {
		return fmt.Errorf("leverage must be >= 1, got %d", s.Leverage)
	}
	if s.StaticAllocation <= 0 && s.RiskPerTrade <= 0 {
		return fmt.Errorf("either static allocation or risk per trade must be set")
	}
	if s.StopLossPercent <= 0 || s.TakeProfitPercent <= 0 {
		return fmt.Errorf("stop-loss and take-profit percentages must be positive")
	}
	if s.MaxOpenPositions < 1 {
		return fmt.Errorf("max open positions must be >= 1, got %d", s.MaxOpenPositions)
	}
	if s.CallTimeout <= 0 {
		return fmt.Errorf("exchange call timeout must be positive")
	}
	return nil
}
