package strategy

import (
	"fmt"

	"github.com/raykavin/regimerun/pkg/core"
)

// Well-known strategy identifiers. The registry is a closed set of
// tagged variants behind one capability interface; strategies are
// resolved through it, never by string switches elsewhere.
const (
	Breakout      core.StrategyID = "breakout"
	TrendFollow   core.StrategyID = "trend-following"
	MeanReversion core.StrategyID = "mean-reversion"
	Momentum      core.StrategyID = "momentum"
)

// Strategy is the uniform capability every trading heuristic implements
type Strategy interface {
	// Name is the identifier used for selection weighting and
	// performance attribution
	Name() core.StrategyID
	// Timeframe is the candle interval the strategy evaluates. eg: 15m, 1h
	Timeframe() string
	// WarmupPeriod is the number of candles required before the
	// strategy can produce a signal
	WarmupPeriod() int
	// GenerateSignal evaluates the candle window and produces a trade
	// signal with stop-loss/take-profit hints
	GenerateSignal(candles []core.Candle, symbol string) core.Signal
}

// Registry holds the registered strategies preserving registration
// order, which breaks selection ties deterministically
type Registry struct {
	order []core.StrategyID
	byID  map[core.StrategyID]Strategy
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[core.StrategyID]Strategy)}
}

// Register adds a strategy to the registry. Duplicate registrations
// are rejected.
func (r *Registry) Register(s Strategy) error {
	if _, exists := r.byID[s.Name()]; exists {
		return fmt.Errorf("strategy %q already registered", s.Name())
	}
	r.byID[s.Name()] = s
	r.order = append(r.order, s.Name())
	return nil
}

// Get returns a strategy by id
func (r *Registry) Get(id core.StrategyID) (Strategy, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// List returns the registered strategies in registration order
func (r *Registry) List() []Strategy {
	strategies := make([]Strategy, 0, len(r.order))
	for _, id := range r.order {
		strategies = append(strategies, r.byID[id])
	}
	return strategies
}

// DefaultRegistry builds the standard four-strategy registry
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	for _, s := range []Strategy{
		NewBreakout(),
		NewTrendFollow(),
		NewMeanReversion(),
		NewMomentum(),
	} {
		// Registration of fresh instances cannot collide
		_ = registry.Register(s)
	}
	return registry
}
