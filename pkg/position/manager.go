package position

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/indicator"
	"github.com/raykavin/regimerun/pkg/logger"
)

// MarketData is the per-symbol snapshot handed to a management tick
type MarketData struct {
	Price   float64
	Bundles map[string]*indicator.Bundle
}

// Recorder receives finalized positions for performance attribution
type Recorder interface {
	RecordClose(position core.Position)
}

// Manager owns every open position: entry, reconciliation against the
// exchange, exit/scale/trailing/break-even rules and finalization of
// the durable record. Lifecycle transitions are not idempotent, so all
// work for one symbol is serialized behind a per-symbol mutex.
type Manager struct {
	exchange core.Exchange
	storage  core.PositionStorage
	settings *core.Settings
	log      logger.Logger
	notifier core.Notifier
	recorder Recorder

	mu      sync.Mutex
	entryMu sync.Mutex
	locks   map[string]*sync.Mutex
	runtime map[string]*RuntimeState
}

func NewManager(exchange core.Exchange, storage core.PositionStorage,
	settings *core.Settings, log logger.Logger) *Manager {

	return &Manager{
		exchange: exchange,
		storage:  storage,
		settings: settings,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
		runtime:  make(map[string]*RuntimeState),
	}
}

// SetNotifier configures the operator alert channel
func (m *Manager) SetNotifier(notifier core.Notifier) { m.notifier = notifier }

// SetRecorder configures the trade attribution sink
func (m *Manager) SetRecorder(recorder Recorder) { m.recorder = recorder }

// ActivePositions returns all currently open durable positions
func (m *Manager) ActivePositions() ([]*core.Position, error) {
	return m.storage.Positions(core.WithActive(true))
}

// OpenFromSignal enters a new position from an accepted directional
// signal. Weak and neutral signals are ignored. Entry is refused when
// an active position already exists for the symbol in the same
// direction or the global open-position cap is reached.
func (m *Manager) OpenFromSignal(ctx context.Context, symbol string, signal core.Signal, price float64) (*core.Position, error) {
	if !signal.Actionable() {
		return nil, nil
	}

	lock := m.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	// entries for different symbols run concurrently; the cap check and
	// the create must not interleave across them
	m.entryMu.Lock()
	defer m.entryMu.Unlock()

	side := signal.Direction.Side()

	active, err := m.storage.Positions(core.WithActive(true))
	if err != nil {
		return nil, fmt.Errorf("query active positions: %w", err)
	}
	for _, p := range active {
		if p.Symbol == symbol && p.Side == side {
			return nil, core.ErrDuplicatePosition
		}
	}
	if len(active) >= m.settings.MaxOpenPositions {
		return nil, core.ErrMaxPositions
	}

	quantity, allocation, err := m.entryQuantity(ctx, symbol, signal, price)
	if err != nil {
		return nil, err
	}

	order, err := m.exchange.CreateOrderMarket(ctx, side, symbol, quantity)
	if err != nil {
		m.notifyError(fmt.Errorf("entry order for %s: %w", symbol, err))
		return nil, err
	}

	entryPrice := order.Price
	if entryPrice == 0 {
		entryPrice = price
	}

	pos := &core.Position{
		Symbol:          symbol,
		Side:            side,
		EntryPrices:     []float64{entryPrice},
		Quantity:        order.Quantity,
		TotalAllocation: allocation,
		Leverage:        m.settings.Leverage,
		StopLoss:        m.stopLevel(signal.StopLoss, entryPrice, side, m.settings.StopLossPercent),
		TakeProfit:      m.targetLevel(signal.TakeProfit, entryPrice, side, m.settings.TakeProfitPercent),
		StrategyUsed:    signal.StrategyID,
		IsActive:        true,
		OpenedAt:        time.Now(),
	}

	if err := m.storage.CreatePosition(pos); err != nil {
		return nil, fmt.Errorf("persist position: %w", err)
	}

	m.mu.Lock()
	m.runtime[symbol] = newRuntimeState(entryPrice)
	m.mu.Unlock()

	m.placeProtectiveOrders(ctx, pos)

	m.log.WithFields(map[string]any{
		"symbol":   symbol,
		"side":     side,
		"quantity": pos.Quantity,
		"strategy": pos.StrategyUsed,
	}).Info("position opened")
	m.notifyPosition(*pos)

	return pos, nil
}

// Reconcile diffs the exchange's open positions against the local
// records. Locally active positions absent on the exchange are
// finalized as closed externally; positions the exchange reports but
// we never recorded are adopted with conservative protective levels.
// Running it twice with unchanged exchange state makes no further
// mutations.
func (m *Manager) Reconcile(ctx context.Context) error {
	remote, err := m.exchange.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch open positions: %w", err)
	}

	local, err := m.storage.Positions(core.WithActive(true))
	if err != nil {
		return fmt.Errorf("query active positions: %w", err)
	}

	remoteBySymbol := make(map[string]core.ExchangePosition, len(remote))
	for _, p := range remote {
		remoteBySymbol[p.Pair] = p
	}

	localSymbols := make(map[string]bool, len(local))
	for _, pos := range local {
		localSymbols[pos.Symbol] = true

		if _, stillOpen := remoteBySymbol[pos.Symbol]; stillOpen {
			continue
		}

		lock := m.symbolLock(pos.Symbol)
		lock.Lock()
		current, err := m.refreshPosition(pos)
		if err != nil {
			m.log.WithError(err).Errorf("failed to re-check position for %s", pos.Symbol)
			lock.Unlock()
			continue
		}
		if current == nil {
			// closed by a manage tick since the snapshot
			lock.Unlock()
			continue
		}
		m.log.WithField("symbol", current.Symbol).Warn("active position missing on exchange, closing record")
		m.finalize(ctx, current, m.lastPriceOr(ctx, current.Symbol, current.AvgEntryPrice()), ReasonClosedExternal, false)
		lock.Unlock()
	}

	for symbol, remotePos := range remoteBySymbol {
		if localSymbols[symbol] {
			continue
		}

		lock := m.symbolLock(symbol)
		lock.Lock()
		if err := m.adopt(remotePos); err != nil {
			m.log.WithError(err).Errorf("failed to adopt external position for %s", symbol)
		}
		lock.Unlock()
	}

	return nil
}

// ManageSymbol runs one management tick for a symbol: update extremes,
// evaluate exits in priority order, then break-even, trailing stop and
// scale-in rules
func (m *Manager) ManageSymbol(ctx context.Context, symbol string, data MarketData) error {
	lock := m.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	pos, err := m.activePosition(symbol)
	if err != nil {
		return err
	}
	if pos == nil {
		m.discardRuntime(symbol)
		return nil
	}

	rt := m.runtimeState(symbol, data.Price)
	rt.observe(data.Price)

	if decision, exit := m.evaluateExit(pos, rt, data); exit {
		m.finalize(ctx, pos, decision.exitPrice, decision.reason, true)
		return nil
	}

	m.applyBreakEven(ctx, pos, rt, data.Price)
	m.updateTrailing(ctx, pos, rt)

	if err := m.maybeScaleIn(ctx, pos, data); err != nil {
		m.log.WithError(err).Warnf("scale-in failed for %s", symbol)
	}

	return nil
}

// applyBreakEven moves the stop to the entry price once the unrealized
// profit reaches the configured threshold. One-shot per position: the
// flag never resets for the life of the position.
func (m *Manager) applyBreakEven(ctx context.Context, pos *core.Position, rt *RuntimeState, price float64) {
	threshold := m.settings.BreakEvenPercent
	if threshold <= 0 || rt.BreakEvenActive {
		return
	}
	if pos.ProfitPercent(price) < threshold {
		return
	}

	rt.BreakEvenActive = true
	pos.StopLoss = pos.AvgEntryPrice()
	if err := m.storage.UpdatePosition(pos); err != nil {
		m.notifyError(fmt.Errorf("persist break-even stop for %s: %w", pos.Symbol, err))
		return
	}

	m.replaceStopOrder(ctx, pos, rt)
	m.log.WithField("symbol", pos.Symbol).Infof("break-even reached, stop moved to %f", pos.StopLoss)
	m.notify(fmt.Sprintf("[BREAK-EVEN] %s stop moved to entry %.4f", pos.Symbol, pos.StopLoss))
}

// updateTrailing activates the trailing stop once profit covers the
// configured fraction of the distance to take-profit, then ratchets
// the level only on new favorable extremes. The level is monotonic:
// it never retreats for the life of the position.
func (m *Manager) updateTrailing(ctx context.Context, pos *core.Position, rt *RuntimeState) {
	cfg := m.settings.TrailingStop
	if !cfg.Enabled || pos.TakeProfit <= 0 {
		return
	}

	entry := pos.AvgEntryPrice()
	if entry == 0 {
		return
	}

	extreme := rt.HighestPrice
	if !pos.IsLong() {
		extreme = rt.LowestPrice
	}

	if !rt.TrailingActive {
		targetDistance := math.Abs(pos.TakeProfit-entry) / entry * 100
		if pos.ProfitPercent(extreme) < targetDistance*cfg.ActivationFraction {
			return
		}

		rt.TrailingActive = true
		rt.TrailingLevel = trailingLevel(extreme, cfg.DistancePercent, pos.IsLong())
		m.placeTrailingOrder(ctx, pos, extreme)
		m.log.WithField("symbol", pos.Symbol).Infof("trailing stop activated at %f", rt.TrailingLevel)
		return
	}

	level := trailingLevel(extreme, cfg.DistancePercent, pos.IsLong())
	if pos.IsLong() && level > rt.TrailingLevel {
		rt.TrailingLevel = level
	} else if !pos.IsLong() && level < rt.TrailingLevel {
		rt.TrailingLevel = level
	}
}

// finalize transitions the position to closed and persists the result.
// The durable record is finalized even when the exchange close call
// fails, so a dead exchange cannot leave permanently stuck open
// records behind.
func (m *Manager) finalize(ctx context.Context, pos *core.Position, exitPrice float64, reason string, closeOnExchange bool) {
	if closeOnExchange {
		if err := m.exchange.CancelOpenOrders(ctx, pos.Symbol); err != nil {
			m.log.WithError(err).Warnf("cancel open orders for %s", pos.Symbol)
		}
		if _, err := m.exchange.CreateOrderMarket(ctx, pos.Side.Opposite(), pos.Symbol, pos.Quantity); err != nil {
			m.notifyError(fmt.Errorf("close order for %s: %w", pos.Symbol, err))
		}
	}

	now := time.Now()
	pos.IsActive = false
	pos.ClosedAt = &now
	pos.ClosedPrice = exitPrice
	pos.ExitReason = reason
	pos.PnLPercent = pos.ProfitPercent(exitPrice) * float64(pos.Leverage)
	pos.PnLAmount = pos.TotalAllocation * pos.PnLPercent / 100

	if err := m.storage.UpdatePosition(pos); err != nil {
		m.notifyError(fmt.Errorf("persist closed position for %s: %w", pos.Symbol, err))
	}

	m.discardRuntime(pos.Symbol)

	if m.recorder != nil {
		m.recorder.RecordClose(*pos)
	}

	m.log.WithFields(map[string]any{
		"symbol": pos.Symbol,
		"reason": reason,
		"pnl":    pos.PnLPercent,
	}).Info("position closed")
	m.notifyPosition(*pos)
}

// adopt records a position the exchange reports but we never opened,
// with conservative default protective levels around its entry price
func (m *Manager) adopt(remote core.ExchangePosition) error {
	const adoptStopPercent, adoptTargetPercent = 1.0, 2.0

	pos := &core.Position{
		Symbol:          remote.Pair,
		Side:            remote.Side,
		EntryPrices:     []float64{remote.EntryPrice},
		Quantity:        remote.Quantity,
		TotalAllocation: remote.EntryPrice * remote.Quantity / math.Max(remote.Leverage, 1),
		Leverage:        int(math.Max(remote.Leverage, 1)),
		StopLoss:        m.stopLevel(0, remote.EntryPrice, remote.Side, adoptStopPercent),
		TakeProfit:      m.targetLevel(0, remote.EntryPrice, remote.Side, adoptTargetPercent),
		StrategyUsed:    "external",
		IsActive:        true,
		OpenedAt:        time.Now(),
	}

	if err := m.storage.CreatePosition(pos); err != nil {
		return fmt.Errorf("persist adopted position: %w", err)
	}

	m.mu.Lock()
	m.runtime[pos.Symbol] = newRuntimeState(remote.EntryPrice)
	m.mu.Unlock()

	m.log.WithField("symbol", pos.Symbol).Warn("adopted position found on exchange")
	m.notify(fmt.Sprintf("[ADOPTED] %s %s %.6f @ %.4f", pos.Symbol, pos.Side, pos.Quantity, remote.EntryPrice))
	return nil
}

// Helpers

// entryQuantity sizes the entry from the configured allocation and the
// strategy hint, rounds to the instrument precision and rejects orders
// below the exchange minimum notional locally. When risk-per-trade is
// set it overrides the static allocation with a fraction of the
// available account balance.
func (m *Manager) entryQuantity(ctx context.Context, symbol string, signal core.Signal, price float64) (quantity, allocation float64, err error) {
	if price <= 0 {
		return 0, 0, core.ErrInvalidQuantity
	}

	allocation = m.settings.StaticAllocation
	if m.settings.RiskPerTrade > 0 {
		balance, err := m.exchange.AccountBalance(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("fetch account balance: %w", err)
		}
		allocation = balance * m.settings.RiskPerTrade
	}
	if signal.AllocationHint > 0 {
		allocation *= signal.AllocationHint
	}

	info, err := m.exchange.AssetsInfo(symbol)
	if err != nil {
		return 0, 0, err
	}

	quantity = roundToStep(allocation*float64(m.settings.Leverage)/price, info.StepSize)
	if quantity <= 0 {
		return 0, 0, core.ErrInvalidQuantity
	}
	if info.MinNotional > 0 && quantity*price < info.MinNotional {
		return 0, 0, fmt.Errorf("%w: %s notional %.4f < %.4f",
			core.ErrMinNotional, symbol, quantity*price, info.MinNotional)
	}

	return quantity, allocation, nil
}

// placeProtectiveOrders submits the stop-loss and take-profit orders.
// Failures are alerted but do not fail the entry: the local exit rules
// still protect the position on every tick.
func (m *Manager) placeProtectiveOrders(ctx context.Context, pos *core.Position) {
	closeSide := pos.Side.Opposite()

	if pos.StopLoss > 0 {
		if _, err := m.exchange.CreateOrderStop(ctx, closeSide, pos.Symbol, pos.Quantity, pos.StopLoss); err != nil {
			m.notifyError(fmt.Errorf("stop order for %s: %w", pos.Symbol, err))
		}
	}
	if pos.TakeProfit > 0 {
		if _, err := m.exchange.CreateOrderTakeProfit(ctx, closeSide, pos.Symbol, pos.Quantity, pos.TakeProfit); err != nil {
			m.notifyError(fmt.Errorf("take-profit order for %s: %w", pos.Symbol, err))
		}
	}
}

// replaceStopOrder re-submits the protective orders after a stop move.
// The cancel sweeps every open order for the symbol, so an already
// active trailing order must be re-placed too.
func (m *Manager) replaceStopOrder(ctx context.Context, pos *core.Position, rt *RuntimeState) {
	if err := m.exchange.CancelOpenOrders(ctx, pos.Symbol); err != nil {
		m.log.WithError(err).Warnf("cancel orders before stop replace for %s", pos.Symbol)
	}
	m.placeProtectiveOrders(ctx, pos)

	if rt.TrailingActive {
		extreme := rt.HighestPrice
		if !pos.IsLong() {
			extreme = rt.LowestPrice
		}
		m.placeTrailingOrder(ctx, pos, extreme)
	}
}

// placeTrailingOrder mirrors the locally tracked trailing stop on the
// exchange as a safety net
func (m *Manager) placeTrailingOrder(ctx context.Context, pos *core.Position, activation float64) {
	_, err := m.exchange.CreateOrderTrailingStop(ctx, pos.Side.Opposite(), pos.Symbol,
		pos.Quantity, activation, m.settings.TrailingStop.DistancePercent)
	if err != nil {
		m.log.WithError(err).Warnf("trailing stop order for %s", pos.Symbol)
	}
}

// refreshPosition re-reads a position's durable record and returns nil
// when it is no longer active
func (m *Manager) refreshPosition(pos *core.Position) (*core.Position, error) {
	positions, err := m.storage.Positions(core.WithSymbol(pos.Symbol), core.WithActive(true))
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if p.ID == pos.ID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *Manager) activePosition(symbol string) (*core.Position, error) {
	positions, err := m.storage.Positions(core.WithSymbol(symbol), core.WithActive(true))
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return positions[0], nil
}

func (m *Manager) symbolLock(symbol string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[symbol] = lock
	}
	return lock
}

func (m *Manager) runtimeState(symbol string, price float64) *RuntimeState {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.runtime[symbol]
	if !ok {
		rt = newRuntimeState(price)
		m.runtime[symbol] = rt
	}
	return rt
}

func (m *Manager) discardRuntime(symbol string) {
	m.mu.Lock()
	delete(m.runtime, symbol)
	m.mu.Unlock()
}

func (m *Manager) lastPriceOr(ctx context.Context, symbol string, fallback float64) float64 {
	price, err := m.exchange.LastQuote(ctx, symbol)
	if err != nil || price <= 0 {
		return fallback
	}
	return price
}

// stopLevel uses the strategy hint when present, otherwise derives the
// stop from the entry price and the configured percentage
func (m *Manager) stopLevel(hint, entry float64, side core.SideType, percent float64) float64 {
	if hint > 0 {
		return hint
	}
	if side == core.SideTypeBuy {
		return entry * (1 - percent/100)
	}
	return entry * (1 + percent/100)
}

func (m *Manager) targetLevel(hint, entry float64, side core.SideType, percent float64) float64 {
	if hint > 0 {
		return hint
	}
	if side == core.SideTypeBuy {
		return entry * (1 + percent/100)
	}
	return entry * (1 - percent/100)
}

func (m *Manager) notify(message string) {
	if m.notifier != nil {
		m.notifier.Notify(message)
	}
}

func (m *Manager) notifyPosition(pos core.Position) {
	if m.notifier != nil {
		m.notifier.OnPosition(pos)
	}
}

func (m *Manager) notifyError(err error) {
	m.log.Error(err)
	if m.notifier != nil {
		m.notifier.OnError(err)
	}
}

func trailingLevel(extreme, distancePercent float64, long bool) float64 {
	if long {
		return extreme * (1 - distancePercent/100)
	}
	return extreme * (1 + distancePercent/100)
}

func roundToStep(quantity, step float64) float64 {
	if step <= 0 {
		return quantity
	}
	return math.Floor(quantity/step) * step
}
