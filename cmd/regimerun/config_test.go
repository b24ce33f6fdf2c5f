package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regimerun.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSettings_ExplicitlyDisablesTrailingStop(t *testing.T) {
	path := writeConfig(t, `
symbols: [BTCUSDT]
trailing_stop:
  enabled: false
`)

	settings, err := loadSettings(path)
	require.NoError(t, err)
	require.False(t, settings.TrailingStop.Enabled)
	require.InDelta(t, 1.0, settings.TrailingStop.DistancePercent, 1e-9)
}

func TestLoadSettings_AbsentTrailingStopKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "symbols: [BTCUSDT]\n")

	settings, err := loadSettings(path)
	require.NoError(t, err)
	require.True(t, settings.TrailingStop.Enabled)
	require.InDelta(t, 0.5, settings.TrailingStop.ActivationFraction, 1e-9)
}

func TestLoadSettings_OverlaysValues(t *testing.T) {
	path := writeConfig(t, `
symbols: [BTCUSDT, ETHUSDT]
leverage: 10
static_allocation: 250
trailing_stop:
  enabled: true
  distance_percent: 2.5
scan_interval: 90s
call_timeout: 5s
`)

	settings, err := loadSettings(path)
	require.NoError(t, err)
	require.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, settings.Symbols)
	require.Equal(t, 10, settings.Leverage)
	require.InDelta(t, 250.0, settings.StaticAllocation, 1e-9)
	require.True(t, settings.TrailingStop.Enabled)
	require.InDelta(t, 2.5, settings.TrailingStop.DistancePercent, 1e-9)
	require.Equal(t, 90*time.Second, settings.ScanInterval)
	require.Equal(t, 5*time.Second, settings.CallTimeout)
	require.Equal(t, time.Minute, settings.ManageInterval) // default kept
}

func TestLoadSettings_RejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "symbols: [BTCUSDT]\nscan_interval: not-a-duration\n")

	_, err := loadSettings(path)
	require.Error(t, err)
}
