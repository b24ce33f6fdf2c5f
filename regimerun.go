// Package regimerun wires the market-regime trading engine: indicator
// computation, regime classification, strategy selection and position
// lifecycle management over Binance futures.
package regimerun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/exchange"
	"github.com/raykavin/regimerun/pkg/indicator"
	"github.com/raykavin/regimerun/pkg/logger"
	"github.com/raykavin/regimerun/pkg/logger/zerolog"
	"github.com/raykavin/regimerun/pkg/notification"
	"github.com/raykavin/regimerun/pkg/position"
	"github.com/raykavin/regimerun/pkg/regime"
	"github.com/raykavin/regimerun/pkg/scheduler"
	"github.com/raykavin/regimerun/pkg/storage"
	"github.com/raykavin/regimerun/pkg/strategy"
	"github.com/raykavin/regimerun/pkg/summary"
)

const (
	defaultDatabase = "regimerun.db"

	// candleWindow is the number of closed candles fetched per
	// timeframe for indicator computation
	candleWindow = 100

	// dailyWindow covers the daily history the regime classifier needs
	dailyWindow = 60

	dailyTimeframe = "1d"
)

// Engine is the top-level trading engine
type Engine struct {
	settings core.Settings
	exchange core.Exchange
	storage  core.PositionStorage
	log      logger.Logger
	notifier core.Notifier
	telegram core.NotifierWithStart

	registry   *strategy.Registry
	classifier *regime.Classifier
	selector   *strategy.Selector
	manager    *position.Manager
	recorder   *summary.Recorder
	scheduler  *scheduler.Scheduler
}

type Option func(*Engine)

// NewEngine creates a new engine instance with the provided settings
// and exchange gateway
func NewEngine(ctx context.Context, settings core.Settings, exch core.Exchange, options ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	if err := validateSymbols(settings.Symbols); err != nil {
		return nil, err
	}

	engine := &Engine{
		settings: settings,
		exchange: exch,
	}

	if err := initializeLogger(engine); err != nil {
		return nil, err
	}

	for _, option := range options {
		option(engine)
	}

	if err := initializeStorage(engine); err != nil {
		return nil, err
	}

	if engine.registry == nil {
		engine.registry = strategy.DefaultRegistry()
	}

	engine.classifier = regime.NewClassifier(engine.log)
	engine.selector = strategy.NewSelector(engine.registry, engine.log)
	engine.recorder = summary.NewRecorder()

	engine.manager = position.NewManager(exch, engine.storage, &engine.settings, engine.log)
	engine.manager.SetRecorder(engine.recorder)
	if engine.notifier != nil {
		engine.manager.SetNotifier(engine.notifier)
	}

	if err := initializeNotifications(engine); err != nil {
		return nil, err
	}

	engine.scheduler = scheduler.New(&engine.settings, engine.log, engine.scanSymbol, engine.manageSymbol)

	return engine, nil
}

// validateSymbols ensures all trading symbols have valid asset and quote components
func validateSymbols(symbols []string) error {
	for _, symbol := range symbols {
		asset, quote := exchange.SplitAssetQuote(symbol)
		if asset == "" || quote == "" {
			return fmt.Errorf("invalid symbol: %s", symbol)
		}
	}
	return nil
}

// initializeStorage sets up the engine's position storage
func initializeStorage(engine *Engine) error {
	var err error
	if engine.storage == nil {
		engine.storage, err = storage.FromFile(defaultDatabase)
		if err != nil {
			return err
		}
	}
	return nil
}

// initializeLogger sets up the logging system
func initializeLogger(engine *Engine) error {
	log, err := zerolog.New("info", "2006-01-02 15:04:05", true, false)
	if err != nil {
		return err
	}
	engine.log = zerolog.NewAdapter(log)
	return nil
}

// initializeNotifications sets up notification systems like Telegram
func initializeNotifications(engine *Engine) error {
	if engine.settings.Telegram.Enabled {
		telegram, err := notification.NewTelegram(engine.manager, &engine.settings,
			notification.WithRecorder(engine.recorder))
		if err != nil {
			return err
		}
		engine.telegram = telegram
		WithNotifier(telegram)(engine)
	}
	return nil
}

// WithStorage sets the storage for the engine, by default it uses a
// local file called regimerun.db
func WithStorage(storage core.PositionStorage) Option {
	return func(engine *Engine) {
		engine.storage = storage
	}
}

// WithRegistry replaces the default strategy registry
func WithRegistry(registry *strategy.Registry) Option {
	return func(engine *Engine) {
		engine.registry = registry
	}
}

// WithNotifier registers a notifier to the engine
func WithNotifier(notifier core.Notifier) Option {
	return func(engine *Engine) {
		engine.notifier = notifier
		if engine.manager != nil {
			engine.manager.SetNotifier(notifier)
		}
	}
}

// WithLogLevel sets the log level
func WithLogLevel(level logger.Level) Option {
	return func(engine *Engine) {
		engine.log.SetLevel(level)
	}
}

// Manager exposes the position lifecycle manager
func (e *Engine) Manager() *position.Manager {
	return e.manager
}

// Run reconciles stored state against the exchange, starts the
// notification service and runs the scan and manage loops until the
// context is cancelled
func (e *Engine) Run(ctx context.Context) error {
	reconcileCtx, cancel := context.WithTimeout(ctx, e.settings.CallTimeout)
	err := e.manager.Reconcile(reconcileCtx)
	cancel()
	if err != nil {
		// not fatal, the periodic loop retries until the exchange answers
		e.log.WithError(err).Error("startup reconciliation failed")
	}

	if e.telegram != nil {
		e.telegram.Start()
	}

	go e.reconcileLoop(ctx)

	e.log.Infof("engine started with %d symbols and %d strategies",
		len(e.settings.Symbols), len(e.registry.List()))

	e.scheduler.Start(ctx)
	return nil
}

// reconcileLoop re-runs reconciliation periodically so externally
// closed or opened positions are picked up during operation
func (e *Engine) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(e.settings.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, e.settings.CallTimeout)
			if err := e.manager.Reconcile(callCtx); err != nil {
				e.log.WithError(err).Error("periodic reconciliation failed")
			}
			cancel()
		}
	}
}

// scanSymbol runs one entry scan for a symbol: classify the regime,
// select a strategy, generate a signal and hand it to the lifecycle
// manager
func (e *Engine) scanSymbol(ctx context.Context, symbol string) error {
	bundles, err := e.computeBundles(ctx, symbol)
	if err != nil {
		if errors.Is(err, core.ErrInsufficientData) {
			e.log.WithField("symbol", symbol).Warn("not enough candles for indicators, skipping scan")
			return nil
		}
		return err
	}

	daily, err := e.exchange.CandlesByLimit(ctx, symbol, dailyTimeframe, dailyWindow)
	if err != nil {
		return fmt.Errorf("fetch daily candles for %s: %w", symbol, err)
	}

	hist, err := regime.BuildHistory(daily)
	if err != nil {
		e.log.WithError(err).WithField("symbol", symbol).Warn("regime history unavailable, using fallbacks")
	}

	snapshot := e.classifier.Classify(bundles, hist)
	selected := e.selector.Select(snapshot)
	if selected == nil {
		return nil
	}

	candles, err := e.strategyCandles(ctx, symbol, selected)
	if err != nil {
		return err
	}

	signal := selected.GenerateSignal(candles, symbol)
	if !signal.Actionable() {
		if len(signal.UnmetConditions) > 0 {
			e.log.WithFields(map[string]any{
				"symbol":   symbol,
				"strategy": selected.Name(),
				"unmet":    signal.UnmetConditions,
			}).Debug("signal not actionable")
		}
		return nil
	}

	price, err := e.exchange.LastQuote(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch last quote for %s: %w", symbol, err)
	}

	_, err = e.manager.OpenFromSignal(ctx, symbol, signal, price)
	if errors.Is(err, core.ErrDuplicatePosition) || errors.Is(err, core.ErrMaxPositions) {
		e.log.WithField("symbol", symbol).Debugf("entry skipped: %v", err)
		return nil
	}
	return err
}

// manageSymbol runs one management tick for a symbol's open position
func (e *Engine) manageSymbol(ctx context.Context, symbol string) error {
	price, err := e.exchange.LastQuote(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch last quote for %s: %w", symbol, err)
	}

	bundles, err := e.computeBundles(ctx, symbol)
	if err != nil {
		if errors.Is(err, core.ErrInsufficientData) {
			bundles = map[string]*indicator.Bundle{}
		} else {
			return err
		}
	}

	return e.manager.ManageSymbol(ctx, symbol, position.MarketData{
		Price:   price,
		Bundles: bundles,
	})
}

// computeBundles fetches candles and computes the indicator bundle for
// every configured timeframe
func (e *Engine) computeBundles(ctx context.Context, symbol string) (map[string]*indicator.Bundle, error) {
	bundles := make(map[string]*indicator.Bundle, len(e.settings.Timeframes))

	for _, timeframe := range e.settings.Timeframes {
		candles, err := e.exchange.CandlesByLimit(ctx, symbol, timeframe, candleWindow)
		if err != nil {
			return nil, fmt.Errorf("fetch %s candles for %s: %w", timeframe, symbol, err)
		}

		bundle, err := indicator.ComputeBundle(candles, timeframe)
		if err != nil {
			return nil, err
		}
		bundles[timeframe] = bundle
	}

	return bundles, nil
}

// strategyCandles fetches the candle window the selected strategy
// needs on its own timeframe
func (e *Engine) strategyCandles(ctx context.Context, symbol string, selected strategy.Strategy) ([]core.Candle, error) {
	limit := selected.WarmupPeriod()
	if limit < candleWindow {
		limit = candleWindow
	}

	candles, err := e.exchange.CandlesByLimit(ctx, symbol, selected.Timeframe(), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s candles for %s: %w", selected.Timeframe(), symbol, err)
	}
	return candles, nil
}

// Summary prints per-strategy trade statistics to stdout
func (e *Engine) Summary() {
	fmt.Println(e.recorder.String())
}
