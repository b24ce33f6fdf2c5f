package strategy

import (
	"sync"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/logger"
)

// Weight bounds and bonuses. Weights are integers clamped to
// [MinWeight, MaxWeight] after every update.
const (
	MinWeight  = 5
	MaxWeight  = 100
	BaseWeight = 25

	meanRevRangingBonus   = 30
	meanRevLongRangeBonus = 20
	meanRevPenalty        = 5
	momentumHighVolBonus  = 20
	momentumRisingBonus   = 10
	momentumFastBonus     = 15
	trendMarketBonus      = 20
	trendStrengthBonus    = 10
	breakoutBonus         = 50
	breakoutPrecursor     = 25

	longRangeDays      = 10
	precursorRangeDays = 15
)

// Selector picks exactly one strategy per scan. Deterministic override
// rules run first in fixed priority order; when none matches, weights
// recomputed from the regime snapshot decide, ties broken by
// registration order.
type Selector struct {
	registry *Registry
	log      logger.Logger

	mu      sync.Mutex
	weights map[core.StrategyID]int
}

func NewSelector(registry *Registry, log logger.Logger) *Selector {
	weights := make(map[core.StrategyID]int, len(registry.List()))
	for _, s := range registry.List() {
		weights[s.Name()] = BaseWeight
	}
	return &Selector{registry: registry, log: log, weights: weights}
}

// Select returns the strategy to execute for this scan
func (s *Selector) Select(snapshot core.RegimeSnapshot) Strategy {
	if chosen := s.override(snapshot); chosen != nil {
		s.log.WithField("strategy", chosen.Name()).Debug("override rule selected strategy")
		return chosen
	}

	s.UpdateWeights(snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()

	var best Strategy
	bestWeight := -1
	for _, candidate := range s.registry.List() {
		// Strictly greater keeps the earliest registration on ties
		if w := s.weights[candidate.Name()]; w > bestWeight {
			best = candidate
			bestWeight = w
		}
	}
	return best
}

// override evaluates the deterministic rules in fixed priority order;
// the first matching rule wins and skips weighting entirely
func (s *Selector) override(snapshot core.RegimeSnapshot) Strategy {
	rules := []struct {
		match func() bool
		id    core.StrategyID
	}{
		{func() bool { return snapshot.Breakout.IsBreakout }, Breakout},
		{func() bool {
			return snapshot.MarketType == core.MarketTrending && snapshot.TrendStrength > 75
		}, TrendFollow},
		{func() bool {
			return snapshot.MarketType == core.MarketRanging && snapshot.RangeLengthDays > 12
		}, MeanReversion},
		{func() bool {
			return snapshot.Volatility == core.VolatilityHigh &&
				snapshot.VolatilityChange == core.VolatilityIncreasingFast
		}, Momentum},
	}

	for _, rule := range rules {
		if !rule.match() {
			continue
		}
		if chosen, ok := s.registry.Get(rule.id); ok {
			return chosen
		}
	}
	return nil
}

// UpdateWeights recomputes every strategy weight from the regime
// snapshot, starting from the base weight and clamping to
// [MinWeight, MaxWeight]
func (s *Selector) UpdateWeights(snapshot core.RegimeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, candidate := range s.registry.List() {
		id := candidate.Name()
		weight := BaseWeight

		switch id {
		case MeanReversion:
			if snapshot.MarketType == core.MarketRanging {
				weight += meanRevRangingBonus
				if snapshot.RangeLengthDays > longRangeDays {
					weight += meanRevLongRangeBonus
				}
			} else {
				weight -= meanRevPenalty
			}

		case Momentum:
			if snapshot.Volatility == core.VolatilityHigh {
				weight += momentumHighVolBonus
			}
			switch snapshot.VolatilityChange {
			case core.VolatilityIncreasing:
				weight += momentumRisingBonus
			case core.VolatilityIncreasingFast:
				weight += momentumFastBonus
			}

		case TrendFollow:
			if snapshot.MarketType == core.MarketTrending {
				weight += trendMarketBonus
			}
			if snapshot.TrendStrength > 60 {
				weight += trendStrengthBonus
			}
			if snapshot.TrendStrength > 80 {
				weight += trendStrengthBonus
			}

		case Breakout:
			if snapshot.Breakout.IsBreakout {
				weight += breakoutBonus
			} else if snapshot.RangeLengthDays > precursorRangeDays {
				weight += breakoutPrecursor
			}
		}

		s.weights[id] = clampWeight(weight)
	}
}

// Weights returns a copy of the current weight map
func (s *Selector) Weights() map[core.StrategyID]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	weights := make(map[core.StrategyID]int, len(s.weights))
	for id, w := range s.weights {
		weights[id] = w
	}
	return weights
}

func clampWeight(w int) int {
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}
