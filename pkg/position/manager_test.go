package position

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/indicator"
	"github.com/raykavin/regimerun/pkg/logger"
	zlog "github.com/raykavin/regimerun/pkg/logger/zerolog"
	"github.com/raykavin/regimerun/pkg/storage"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := zlog.New("error", "2006-01-02 15:04:05", false, false)
	require.NoError(t, err)
	return zlog.NewAdapter(log)
}

// fakeExchange records every order and serves a configurable last
// quote, so lifecycle tests can drive prices without a live gateway
type fakeExchange struct {
	mu         sync.Mutex
	quote      float64
	balance    float64
	failMarket bool
	remote     []core.ExchangePosition

	marketOrders   []core.Order
	stopOrders     []core.Order
	targetOrders   []core.Order
	trailingOrders []core.Order
	cancelledPairs []string
}

func (f *fakeExchange) AssetsInfo(pair string) (core.AssetInfo, error) {
	return core.AssetInfo{
		MinQuantity: 0.001,
		MaxQuantity: 10000,
		StepSize:    0.001,
		TickSize:    0.01,
		MinNotional: 5,
	}, nil
}

func (f *fakeExchange) AccountBalance(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeExchange) LastQuote(ctx context.Context, pair string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quote, nil
}

func (f *fakeExchange) CandlesByLimit(ctx context.Context, pair, timeframe string, limit int) ([]core.Candle, error) {
	return nil, nil
}

func (f *fakeExchange) OpenPositions(ctx context.Context) ([]core.ExchangePosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote, nil
}

func (f *fakeExchange) CreateOrderMarket(ctx context.Context, side core.SideType, pair string, quantity float64) (core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMarket {
		return core.Order{}, errors.New("exchange unavailable")
	}
	order := core.Order{
		Pair:     pair,
		Side:     side,
		Type:     core.OrderTypeMarket,
		Status:   "FILLED",
		Price:    f.quote,
		Quantity: quantity,
	}
	f.marketOrders = append(f.marketOrders, order)
	return order, nil
}

func (f *fakeExchange) CreateOrderStop(ctx context.Context, side core.SideType, pair string, quantity, stopPrice float64) (core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := core.Order{Pair: pair, Side: side, Type: core.OrderTypeStopMarket, Price: stopPrice, Quantity: quantity}
	f.stopOrders = append(f.stopOrders, order)
	return order, nil
}

func (f *fakeExchange) CreateOrderTakeProfit(ctx context.Context, side core.SideType, pair string, quantity, stopPrice float64) (core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := core.Order{Pair: pair, Side: side, Type: core.OrderTypeTakeProfit, Price: stopPrice, Quantity: quantity}
	f.targetOrders = append(f.targetOrders, order)
	return order, nil
}

func (f *fakeExchange) CreateOrderTrailingStop(ctx context.Context, side core.SideType, pair string, quantity, activationPrice, callbackRate float64) (core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order := core.Order{Pair: pair, Side: side, Type: core.OrderTypeTrailingStop, Price: activationPrice, Quantity: quantity}
	f.trailingOrders = append(f.trailingOrders, order)
	return order, nil
}

func (f *fakeExchange) CancelOpenOrders(ctx context.Context, pair string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledPairs = append(f.cancelledPairs, pair)
	return nil
}

func (f *fakeExchange) setQuote(price float64) {
	f.mu.Lock()
	f.quote = price
	f.mu.Unlock()
}

// hookedStorage runs a one-shot callback after the next Positions
// call, so a test can interleave work between a snapshot query and
// the code acting on it
type hookedStorage struct {
	core.PositionStorage
	mu   sync.Mutex
	hook func()
}

func (h *hookedStorage) setHook(hook func()) {
	h.mu.Lock()
	h.hook = hook
	h.mu.Unlock()
}

func (h *hookedStorage) Positions(filters ...core.PositionFilter) ([]*core.Position, error) {
	positions, err := h.PositionStorage.Positions(filters...)
	h.mu.Lock()
	hook := h.hook
	h.hook = nil
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	return positions, err
}

type countingRecorder struct {
	mu     sync.Mutex
	closes []core.Position
}

func (c *countingRecorder) RecordClose(pos core.Position) {
	c.mu.Lock()
	c.closes = append(c.closes, pos)
	c.mu.Unlock()
}

func testSettings() *core.Settings {
	settings := core.DefaultSettings()
	settings.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	settings.Timeframes = []string{"15m", "1h"}
	settings.Leverage = 5
	settings.StaticAllocation = 100
	settings.MaxOpenPositions = 5
	settings.BreakEvenPercent = 0
	settings.MaxDrawdownPercent = 0
	settings.TrailingStop.Enabled = false
	return &settings
}

func newTestManager(t *testing.T, settings *core.Settings) (*Manager, *fakeExchange) {
	t.Helper()
	exchange := &fakeExchange{quote: 100}
	store, err := storage.FromMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(exchange, store, settings, testLogger(t)), exchange
}

func buySignal(stopLoss, takeProfit float64) core.Signal {
	return core.Signal{
		Direction:      core.SignalBuy,
		StopLoss:       stopLoss,
		TakeProfit:     takeProfit,
		AllocationHint: 1.0,
		StrategyID:     "trend_follow",
	}
}

func TestOpenFromSignal_SizesFromAllocationAndHints(t *testing.T) {
	manager, exchange := newTestManager(t, testSettings())

	pos, err := manager.OpenFromSignal(context.Background(), "BTCUSDT", buySignal(95, 110), 100)
	require.NoError(t, err)
	require.NotNil(t, pos)

	require.Equal(t, core.SideTypeBuy, pos.Side)
	require.InDelta(t, 5.0, pos.Quantity, 1e-9)
	require.InDelta(t, 100.0, pos.TotalAllocation, 1e-9)
	require.Equal(t, 95.0, pos.StopLoss)
	require.Equal(t, 110.0, pos.TakeProfit)
	require.Equal(t, core.StrategyID("trend_follow"), pos.StrategyUsed)
	require.True(t, pos.IsActive)

	require.Len(t, exchange.marketOrders, 1)
	require.Len(t, exchange.stopOrders, 1)
	require.Len(t, exchange.targetOrders, 1)
	require.Equal(t, 95.0, exchange.stopOrders[0].Price)
	require.Equal(t, 110.0, exchange.targetOrders[0].Price)
}

func TestOpenFromSignal_RiskPerTradeOverridesStaticAllocation(t *testing.T) {
	settings := testSettings()
	settings.RiskPerTrade = 0.1
	manager, exchange := newTestManager(t, settings)
	exchange.balance = 2000

	pos, err := manager.OpenFromSignal(context.Background(), "BTCUSDT", buySignal(95, 110), 100)
	require.NoError(t, err)

	// 10% of the 2000 balance at 5x leverage buys 10 units at 100
	require.InDelta(t, 200.0, pos.TotalAllocation, 1e-9)
	require.InDelta(t, 10.0, pos.Quantity, 1e-9)
}

func TestOpenFromSignal_DerivesLevelsFromPercentages(t *testing.T) {
	settings := testSettings()
	settings.StopLossPercent = 2.0
	settings.TakeProfitPercent = 4.0
	manager, _ := newTestManager(t, settings)

	signal := buySignal(0, 0)
	pos, err := manager.OpenFromSignal(context.Background(), "BTCUSDT", signal, 100)
	require.NoError(t, err)
	require.InDelta(t, 98.0, pos.StopLoss, 1e-9)
	require.InDelta(t, 104.0, pos.TakeProfit, 1e-9)
}

func TestOpenFromSignal_IgnoresWeakSignals(t *testing.T) {
	manager, exchange := newTestManager(t, testSettings())

	signal := buySignal(95, 110)
	signal.Direction = core.SignalWeakBuy

	pos, err := manager.OpenFromSignal(context.Background(), "BTCUSDT", signal, 100)
	require.NoError(t, err)
	require.Nil(t, pos)
	require.Empty(t, exchange.marketOrders)
}

func TestOpenFromSignal_RejectsDuplicateDirection(t *testing.T) {
	manager, _ := newTestManager(t, testSettings())
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(95, 110), 100)
	require.NoError(t, err)

	_, err = manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(95, 110), 100)
	require.ErrorIs(t, err, core.ErrDuplicatePosition)

	// opposite direction on the same symbol is allowed
	short := buySignal(0, 0)
	short.Direction = core.SignalSell
	pos, err := manager.OpenFromSignal(ctx, "BTCUSDT", short, 100)
	require.NoError(t, err)
	require.Equal(t, core.SideTypeSell, pos.Side)
}

func TestOpenFromSignal_EnforcesPositionCap(t *testing.T) {
	settings := testSettings()
	settings.MaxOpenPositions = 1
	manager, _ := newTestManager(t, settings)
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(95, 110), 100)
	require.NoError(t, err)

	_, err = manager.OpenFromSignal(ctx, "ETHUSDT", buySignal(95, 110), 100)
	require.ErrorIs(t, err, core.ErrMaxPositions)
}

func TestOpenFromSignal_RejectsBelowMinNotional(t *testing.T) {
	settings := testSettings()
	settings.StaticAllocation = 0.05
	manager, exchange := newTestManager(t, settings)

	_, err := manager.OpenFromSignal(context.Background(), "BTCUSDT", buySignal(95, 110), 100)
	require.ErrorIs(t, err, core.ErrMinNotional)
	require.Empty(t, exchange.marketOrders)
}

func TestManageSymbol_StopLossClosesAtLevel(t *testing.T) {
	manager, exchange := newTestManager(t, testSettings())
	ctx := context.Background()

	pos, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(95, 110), 100)
	require.NoError(t, err)

	exchange.setQuote(94)
	err = manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 94})
	require.NoError(t, err)

	closed := requireClosed(t, manager, pos.Symbol)
	require.Equal(t, ReasonStopLoss, closed.ExitReason)
	require.Equal(t, 95.0, closed.ClosedPrice)
	require.InDelta(t, -25.0, closed.PnLPercent, 1e-9) // -5% move at 5x
	require.InDelta(t, -25.0, closed.PnLAmount, 1e-9)
}

func TestManageSymbol_TakeProfitClosesAtLevel(t *testing.T) {
	manager, exchange := newTestManager(t, testSettings())
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(95, 110), 100)
	require.NoError(t, err)

	exchange.setQuote(111)
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 111}))

	closed := requireClosed(t, manager, "BTCUSDT")
	require.Equal(t, ReasonTakeProfit, closed.ExitReason)
	require.Equal(t, 110.0, closed.ClosedPrice)
	require.InDelta(t, 50.0, closed.PnLPercent, 1e-9)
}

func TestManageSymbol_TrailingActivatesRatchetsAndCloses(t *testing.T) {
	settings := testSettings()
	settings.TrailingStop = core.TrailingStopSettings{
		Enabled:            true,
		DistancePercent:    1.0,
		ActivationFraction: 0.5,
	}
	manager, exchange := newTestManager(t, settings)
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(90, 110), 100)
	require.NoError(t, err)

	// +5% covers half the 10% distance to target: trailing activates
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 105}))
	require.Len(t, exchange.trailingOrders, 1)
	requireActive(t, manager, "BTCUSDT")

	// new high moves the level up, never down
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 107}))
	requireActive(t, manager, "BTCUSDT")

	// retreat through the ratcheted level closes at the level itself
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 104}))
	closed := requireClosed(t, manager, "BTCUSDT")
	require.Equal(t, ReasonTrailingStop, closed.ExitReason)
	require.InDelta(t, 105.93, closed.ClosedPrice, 1e-9)
	require.InDelta(t, 29.65, closed.PnLPercent, 1e-9)
}

func TestManageSymbol_BreakEvenMovesStopOnce(t *testing.T) {
	settings := testSettings()
	settings.BreakEvenPercent = 1.0
	manager, exchange := newTestManager(t, settings)
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(95, 120), 100)
	require.NoError(t, err)

	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 101.5}))
	pos := requireActive(t, manager, "BTCUSDT")
	require.Equal(t, 100.0, pos.StopLoss)
	require.Len(t, exchange.stopOrders, 2)
	require.Equal(t, 100.0, exchange.stopOrders[1].Price)

	// a later profitable tick does not re-trigger the move
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 102}))
	require.Len(t, exchange.stopOrders, 2)

	// price falling through the moved stop exits flat
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 99.9}))
	closed := requireClosed(t, manager, "BTCUSDT")
	require.Equal(t, ReasonStopLoss, closed.ExitReason)
	require.Equal(t, 100.0, closed.ClosedPrice)
	require.InDelta(t, 0.0, closed.PnLPercent, 1e-9)
}

func TestManageSymbol_DrawdownFromPeakCloses(t *testing.T) {
	settings := testSettings()
	settings.MaxDrawdownPercent = 2.0
	manager, _ := newTestManager(t, settings)
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(90, 120), 100)
	require.NoError(t, err)

	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 105}))
	requireActive(t, manager, "BTCUSDT")

	// (105-102.8)/105 is a 2.09% retreat from the peak
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 102.8}))
	closed := requireClosed(t, manager, "BTCUSDT")
	require.Equal(t, ReasonMaxDrawdown, closed.ExitReason)
	require.Equal(t, 102.8, closed.ClosedPrice)
}

func TestManageSymbol_TechnicalExitOnExhaustedTrend(t *testing.T) {
	manager, _ := newTestManager(t, testSettings())
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(90, 120), 100)
	require.NoError(t, err)

	data := MarketData{
		Price: 101,
		Bundles: map[string]*indicator.Bundle{
			"1h": {
				Timeframe:   "1h",
				Momentum:    indicator.MomentumOscillator{Value: 55},
				Trend:       indicator.TrendOscillator{MACDLine: 0.5, SignalLine: 0.2, Histogram: 0.3},
				Directional: indicator.DirectionalIndex{Value: 15, PlusDI: 18, MinusDI: 16},
			},
		},
	}
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", data))

	closed := requireClosed(t, manager, "BTCUSDT")
	require.Contains(t, closed.ExitReason, "trend exhausted")
	require.Equal(t, 101.0, closed.ClosedPrice)
}

func TestManageSymbol_ScaleInSizesAndCaps(t *testing.T) {
	settings := testSettings()
	settings.MaxScaleIns = 2
	settings.ScaleSizeFraction = 0.5
	manager, exchange := newTestManager(t, settings)
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(90, 200), 100)
	require.NoError(t, err)

	favorable := MarketData{
		Price: 100,
		Bundles: map[string]*indicator.Bundle{
			"15m": {
				Timeframe:   "15m",
				Band:        indicator.VolatilityBand{PercentB: 0.05},
				Momentum:    indicator.MomentumOscillator{Value: 30},
				Directional: indicator.DirectionalIndex{Value: 30, PlusDI: 30, MinusDI: 10},
			},
		},
	}

	// pullback and strength both hold: step sized with the bonus
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", favorable))
	pos := requireActive(t, manager, "BTCUSDT")
	require.Equal(t, 1, pos.ScaleStep)
	require.InDelta(t, 8.75, pos.Quantity, 1e-6)
	require.InDelta(t, 175.0, pos.TotalAllocation, 1e-6)
	require.Len(t, pos.EntryPrices, 2)

	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", favorable))
	pos = requireActive(t, manager, "BTCUSDT")
	require.Equal(t, 2, pos.ScaleStep)
	require.InDelta(t, 12.031, pos.Quantity, 1e-6)

	// cap reached: further ticks leave the position untouched
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", favorable))
	pos = requireActive(t, manager, "BTCUSDT")
	require.Equal(t, 2, pos.ScaleStep)
	require.InDelta(t, 12.031, pos.Quantity, 1e-6)
	require.Len(t, exchange.marketOrders, 3) // entry plus two scale-ins
}

func TestManageSymbol_NoScaleInWithoutConditions(t *testing.T) {
	manager, exchange := newTestManager(t, testSettings())
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(90, 200), 100)
	require.NoError(t, err)

	neutral := MarketData{
		Price: 100,
		Bundles: map[string]*indicator.Bundle{
			"15m": {
				Timeframe:   "15m",
				Band:        indicator.VolatilityBand{PercentB: 0.5},
				Momentum:    indicator.MomentumOscillator{Value: 50},
				Directional: indicator.DirectionalIndex{Value: 18, PlusDI: 20, MinusDI: 19},
			},
		},
	}
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", neutral))

	pos := requireActive(t, manager, "BTCUSDT")
	require.Equal(t, 0, pos.ScaleStep)
	require.Len(t, exchange.marketOrders, 1)
}

func TestReconcile_ClosesMissingAndAdoptsExternal(t *testing.T) {
	manager, exchange := newTestManager(t, testSettings())
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(95, 110), 100)
	require.NoError(t, err)

	exchange.setQuote(98)
	exchange.remote = []core.ExchangePosition{{
		Pair:       "ETHUSDT",
		Side:       core.SideTypeSell,
		Quantity:   0.5,
		EntryPrice: 2000,
		Leverage:   10,
	}}

	require.NoError(t, manager.Reconcile(ctx))

	closed := requireClosed(t, manager, "BTCUSDT")
	require.Equal(t, ReasonClosedExternal, closed.ExitReason)
	require.Equal(t, 98.0, closed.ClosedPrice)

	adopted := requireActive(t, manager, "ETHUSDT")
	require.Equal(t, core.SideTypeSell, adopted.Side)
	require.Equal(t, core.StrategyID("external"), adopted.StrategyUsed)
	require.Equal(t, 10, adopted.Leverage)
	require.InDelta(t, 100.0, adopted.TotalAllocation, 1e-9)
	require.InDelta(t, 2020.0, adopted.StopLoss, 1e-9)
	require.InDelta(t, 1960.0, adopted.TakeProfit, 1e-9)

	// a second pass with unchanged exchange state mutates nothing
	require.NoError(t, manager.Reconcile(ctx))
	active, err := manager.ActivePositions()
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Len(t, exchange.marketOrders, 1) // reconcile never trades
}

func TestReconcile_SkipsPositionClosedDuringSnapshot(t *testing.T) {
	settings := testSettings()
	exchange := &fakeExchange{quote: 100}
	store, err := storage.FromMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hooked := &hookedStorage{PositionStorage: store}
	manager := NewManager(exchange, hooked, settings, testLogger(t))
	recorder := &countingRecorder{}
	manager.SetRecorder(recorder)
	ctx := context.Background()

	_, err = manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(95, 110), 100)
	require.NoError(t, err)

	// the exchange reports nothing open, and a stop-loss tick lands
	// right after reconciliation snapshots the active records
	hooked.setHook(func() {
		exchange.setQuote(94)
		require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 94}))
	})
	require.NoError(t, manager.Reconcile(ctx))

	closed := requireClosed(t, manager, "BTCUSDT")
	require.Equal(t, ReasonStopLoss, closed.ExitReason)
	require.Equal(t, 95.0, closed.ClosedPrice)
	require.Len(t, recorder.closes, 1)
}

func TestOpenFromSignal_CapHoldsUnderConcurrentEntries(t *testing.T) {
	settings := testSettings()
	settings.MaxOpenPositions = 1
	manager, _ := newTestManager(t, settings)

	symbols := []string{"BTCUSDT", "ETHUSDT"}
	errs := make(chan error, len(symbols))
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			_, err := manager.OpenFromSignal(context.Background(), symbol, buySignal(95, 110), 100)
			errs <- err
		}(symbol)
	}
	wg.Wait()
	close(errs)

	rejected := 0
	for err := range errs {
		if errors.Is(err, core.ErrMaxPositions) {
			rejected++
			continue
		}
		require.NoError(t, err)
	}
	require.Equal(t, 1, rejected)

	active, err := manager.ActivePositions()
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestBreakEven_KeepsActiveTrailingOrder(t *testing.T) {
	settings := testSettings()
	settings.BreakEvenPercent = 6.0
	settings.TrailingStop = core.TrailingStopSettings{
		Enabled:            true,
		DistancePercent:    1.0,
		ActivationFraction: 0.5,
	}
	manager, exchange := newTestManager(t, settings)
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(90, 110), 100)
	require.NoError(t, err)

	// +5% activates trailing, still short of the break-even threshold
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 105}))
	require.Len(t, exchange.trailingOrders, 1)

	// break-even replaces the protective orders; the cancel swept the
	// trailing order, so it must come back too
	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 106}))
	pos := requireActive(t, manager, "BTCUSDT")
	require.Equal(t, 100.0, pos.StopLoss)
	require.Len(t, exchange.trailingOrders, 2)
	require.Equal(t, 106.0, exchange.trailingOrders[1].Price)
}

func TestFinalize_RecordClosesEvenWhenExchangeFails(t *testing.T) {
	manager, exchange := newTestManager(t, testSettings())
	ctx := context.Background()

	_, err := manager.OpenFromSignal(ctx, "BTCUSDT", buySignal(95, 110), 100)
	require.NoError(t, err)

	exchange.mu.Lock()
	exchange.failMarket = true
	exchange.mu.Unlock()

	require.NoError(t, manager.ManageSymbol(ctx, "BTCUSDT", MarketData{Price: 94}))

	closed := requireClosed(t, manager, "BTCUSDT")
	require.Equal(t, ReasonStopLoss, closed.ExitReason)
	require.NotNil(t, closed.ClosedAt)
}

func TestManageSymbol_NoActivePositionIsNoOp(t *testing.T) {
	manager, exchange := newTestManager(t, testSettings())

	require.NoError(t, manager.ManageSymbol(context.Background(), "BTCUSDT", MarketData{Price: 100}))
	require.Empty(t, exchange.marketOrders)
}

func requireActive(t *testing.T, manager *Manager, symbol string) *core.Position {
	t.Helper()
	positions, err := manager.ActivePositions()
	require.NoError(t, err)
	for _, pos := range positions {
		if pos.Symbol == symbol {
			return pos
		}
	}
	t.Fatalf("no active position for %s", symbol)
	return nil
}

func requireClosed(t *testing.T, manager *Manager, symbol string) *core.Position {
	t.Helper()
	positions, err := manager.storage.Positions(core.WithSymbol(symbol), core.WithActive(false))
	require.NoError(t, err)
	require.NotEmpty(t, positions)
	return positions[len(positions)-1]
}
