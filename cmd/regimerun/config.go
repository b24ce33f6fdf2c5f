package main

import (
	"fmt"
	"os"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/raykavin/regimerun/pkg/core"
)

// fileConfig mirrors the YAML configuration file. Durations are
// strings so operators can write "90s" or "2m30s".
type fileConfig struct {
	Symbols    []string `yaml:"symbols"`
	Timeframes []string `yaml:"timeframes"`

	Leverage         int     `yaml:"leverage"`
	MarginType       string  `yaml:"margin_type"`
	StaticAllocation float64 `yaml:"static_allocation"`
	RiskPerTrade     float64 `yaml:"risk_per_trade"`

	StopLossPercent   float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent float64 `yaml:"take_profit_percent"`

	// pointer so an absent trailing_stop block keeps the defaults while
	// an explicit "enabled: false" still disables it
	TrailingStop *struct {
		Enabled            bool    `yaml:"enabled"`
		DistancePercent    float64 `yaml:"distance_percent"`
		ActivationFraction float64 `yaml:"activation_fraction"`
	} `yaml:"trailing_stop"`

	BreakEvenPercent   float64 `yaml:"break_even_percent"`
	MaxDrawdownPercent float64 `yaml:"max_drawdown_percent"`

	MaxScaleIns       int     `yaml:"max_scale_ins"`
	ScaleSizeFraction float64 `yaml:"scale_size_fraction"`
	MaxOpenPositions  int     `yaml:"max_open_positions"`

	ScanInterval   string `yaml:"scan_interval"`
	ManageInterval string `yaml:"manage_interval"`
	CallTimeout    string `yaml:"call_timeout"`

	Telegram struct {
		Enabled bool   `yaml:"enabled"`
		Token   string `yaml:"token"`
		Users   []int  `yaml:"users"`
	} `yaml:"telegram"`
}

// loadSettings reads the YAML file and overlays it on the default
// settings so absent keys keep their defaults
func loadSettings(path string) (core.Settings, error) {
	settings := core.DefaultSettings()

	content, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return settings, fmt.Errorf("parse config file: %w", err)
	}

	settings.Symbols = cfg.Symbols
	if len(cfg.Timeframes) > 0 {
		settings.Timeframes = cfg.Timeframes
	}
	if cfg.Leverage > 0 {
		settings.Leverage = cfg.Leverage
	}
	if cfg.MarginType != "" {
		settings.MarginType = cfg.MarginType
	}
	if cfg.StaticAllocation > 0 {
		settings.StaticAllocation = cfg.StaticAllocation
	}
	if cfg.RiskPerTrade > 0 {
		settings.RiskPerTrade = cfg.RiskPerTrade
	}
	if cfg.StopLossPercent > 0 {
		settings.StopLossPercent = cfg.StopLossPercent
	}
	if cfg.TakeProfitPercent > 0 {
		settings.TakeProfitPercent = cfg.TakeProfitPercent
	}
	if cfg.TrailingStop != nil {
		settings.TrailingStop.Enabled = cfg.TrailingStop.Enabled
		if cfg.TrailingStop.DistancePercent > 0 {
			settings.TrailingStop.DistancePercent = cfg.TrailingStop.DistancePercent
		}
		if cfg.TrailingStop.ActivationFraction > 0 {
			settings.TrailingStop.ActivationFraction = cfg.TrailingStop.ActivationFraction
		}
	}
	if cfg.BreakEvenPercent > 0 {
		settings.BreakEvenPercent = cfg.BreakEvenPercent
	}
	if cfg.MaxDrawdownPercent > 0 {
		settings.MaxDrawdownPercent = cfg.MaxDrawdownPercent
	}
	if cfg.MaxScaleIns > 0 {
		settings.MaxScaleIns = cfg.MaxScaleIns
	}
	if cfg.ScaleSizeFraction > 0 {
		settings.ScaleSizeFraction = cfg.ScaleSizeFraction
	}
	if cfg.MaxOpenPositions > 0 {
		settings.MaxOpenPositions = cfg.MaxOpenPositions
	}

	if err := overlayDuration(&settings.ScanInterval, cfg.ScanInterval); err != nil {
		return settings, fmt.Errorf("scan_interval: %w", err)
	}
	if err := overlayDuration(&settings.ManageInterval, cfg.ManageInterval); err != nil {
		return settings, fmt.Errorf("manage_interval: %w", err)
	}
	if err := overlayDuration(&settings.CallTimeout, cfg.CallTimeout); err != nil {
		return settings, fmt.Errorf("call_timeout: %w", err)
	}

	settings.Telegram.Enabled = cfg.Telegram.Enabled
	settings.Telegram.Token = cfg.Telegram.Token
	settings.Telegram.Users = cfg.Telegram.Users

	return settings, nil
}

// overlayDuration parses a duration string when present, keeping the
// default otherwise
func overlayDuration(target *time.Duration, value string) error {
	if value == "" {
		return nil
	}

	parsed, err := str2duration.ParseDuration(value)
	if err != nil {
		return err
	}

	*target = parsed
	return nil
}
