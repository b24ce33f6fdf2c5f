package strategy

import (
	"testing"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/logger"
	zlog "github.com/raykavin/regimerun/pkg/logger/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := zlog.New("error", "2006-01-02 15:04:05", false, false)
	require.NoError(t, err)
	return zlog.NewAdapter(log)
}

// stubStrategy is a registrable strategy with no behavior, used to
// exercise selection mechanics in isolation
type stubStrategy struct {
	id core.StrategyID
}

func (s stubStrategy) Name() core.StrategyID { return s.id }
func (s stubStrategy) Timeframe() string     { return "1h" }
func (s stubStrategy) WarmupPeriod() int     { return 1 }
func (s stubStrategy) GenerateSignal([]core.Candle, string) core.Signal {
	return core.Neutral(s.id)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubStrategy{id: "alpha"}))
	require.Error(t, registry.Register(stubStrategy{id: "alpha"}))
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubStrategy{id: "alpha"}))
	require.NoError(t, registry.Register(stubStrategy{id: "beta"}))

	list := registry.List()
	require.Len(t, list, 2)
	require.Equal(t, core.StrategyID("alpha"), list[0].Name())
	require.Equal(t, core.StrategyID("beta"), list[1].Name())
}

func TestSelector_BreakoutOverrideWinsFirst(t *testing.T) {
	selector := NewSelector(DefaultRegistry(), testLogger(t))

	// Breakout and strong trend at once: breakout has higher priority
	snapshot := core.RegimeSnapshot{
		Breakout:      core.Breakout{IsBreakout: true, Direction: core.TrendBullish},
		MarketType:    core.MarketTrending,
		TrendStrength: 90,
	}

	require.Equal(t, Breakout, selector.Select(snapshot).Name())
}

func TestSelector_TrendingOverride(t *testing.T) {
	selector := NewSelector(DefaultRegistry(), testLogger(t))

	snapshot := core.RegimeSnapshot{
		MarketType:    core.MarketTrending,
		TrendStrength: 80,
	}

	require.Equal(t, TrendFollow, selector.Select(snapshot).Name())
}

func TestSelector_LongRangeOverride(t *testing.T) {
	selector := NewSelector(DefaultRegistry(), testLogger(t))

	snapshot := core.RegimeSnapshot{
		MarketType:      core.MarketRanging,
		RangeLengthDays: 14,
	}

	require.Equal(t, MeanReversion, selector.Select(snapshot).Name())
}

func TestSelector_VolatilitySpikeOverride(t *testing.T) {
	selector := NewSelector(DefaultRegistry(), testLogger(t))

	snapshot := core.RegimeSnapshot{
		Volatility:       core.VolatilityHigh,
		VolatilityChange: core.VolatilityIncreasingFast,
		TrendStrength:    50,
	}

	require.Equal(t, Momentum, selector.Select(snapshot).Name())
}

func TestSelector_WeightsDecideWithoutOverride(t *testing.T) {
	selector := NewSelector(DefaultRegistry(), testLogger(t))

	// Ranging but not long enough for the override rule
	snapshot := core.RegimeSnapshot{
		MarketType:      core.MarketRanging,
		RangeLengthDays: 11,
	}

	require.Equal(t, MeanReversion, selector.Select(snapshot).Name())

	weights := selector.Weights()
	require.Equal(t, BaseWeight+meanRevRangingBonus+meanRevLongRangeBonus, weights[MeanReversion])
	require.Equal(t, BaseWeight, weights[TrendFollow])
}

func TestSelector_TieBreakByRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(stubStrategy{id: "alpha"}))
	require.NoError(t, registry.Register(stubStrategy{id: "beta"}))

	selector := NewSelector(registry, testLogger(t))

	// Unknown strategies keep the base weight, so both tie
	chosen := selector.Select(core.RegimeSnapshot{MarketType: core.MarketRanging})
	require.Equal(t, core.StrategyID("alpha"), chosen.Name())
}

func TestClampWeight_Bounds(t *testing.T) {
	require.Equal(t, MinWeight, clampWeight(-10))
	require.Equal(t, MinWeight, clampWeight(MinWeight-1))
	require.Equal(t, MaxWeight, clampWeight(MaxWeight+30))
	require.Equal(t, 42, clampWeight(42))
}
