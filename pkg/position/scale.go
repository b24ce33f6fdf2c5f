package position

import (
	"context"
	"fmt"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/indicator"
)

const (
	scalePercentBLong  = 0.1
	scalePercentBShort = 0.9
	scaleRSILong       = 35.0
	scaleRSIShort      = 65.0
	scaleDISpread      = 10.0
	scaleADXFloor      = 25.0
	scaleBothBonus     = 1.5
)

// maybeScaleIn adds to an existing position when the short-timeframe
// indicators show a favorable pullback or a strengthening directional
// move. Each step is sized from the average base-step quantity so
// repeated adds do not compound, and the number of steps is capped.
func (m *Manager) maybeScaleIn(ctx context.Context, pos *core.Position, data MarketData) error {
	if m.settings.MaxScaleIns <= 0 || pos.ScaleStep >= m.settings.MaxScaleIns {
		return nil
	}

	bundle := m.shortBundle(data)
	if bundle == nil {
		return nil
	}

	pullback := scalePullback(bundle, pos.IsLong())
	strength := scaleStrength(bundle, pos.IsLong())
	if !pullback && !strength {
		return nil
	}

	multiplier := 1.0
	if pullback && strength {
		multiplier = scaleBothBonus
	}

	info, err := m.exchange.AssetsInfo(pos.Symbol)
	if err != nil {
		return err
	}

	baseStep := pos.Quantity / float64(1+pos.ScaleStep)
	quantity := roundToStep(baseStep*m.settings.ScaleSizeFraction*multiplier, info.StepSize)
	if quantity <= 0 {
		return nil
	}
	if info.MinNotional > 0 && quantity*data.Price < info.MinNotional {
		return nil
	}

	order, err := m.exchange.CreateOrderMarket(ctx, pos.Side, pos.Symbol, quantity)
	if err != nil {
		return fmt.Errorf("scale-in order for %s: %w", pos.Symbol, err)
	}

	fillPrice := order.Price
	if fillPrice == 0 {
		fillPrice = data.Price
	}

	pos.EntryPrices = append(pos.EntryPrices, fillPrice)
	pos.Quantity += order.Quantity
	pos.TotalAllocation += fillPrice * order.Quantity / float64(pos.Leverage)
	pos.ScaleStep++

	if err := m.storage.UpdatePosition(pos); err != nil {
		return fmt.Errorf("persist scaled position: %w", err)
	}

	m.log.WithFields(map[string]any{
		"symbol":   pos.Symbol,
		"step":     pos.ScaleStep,
		"quantity": order.Quantity,
	}).Info("scaled into position")
	m.notify(fmt.Sprintf("[SCALE-IN] %s step %d/%d +%.6f @ %.4f",
		pos.Symbol, pos.ScaleStep, m.settings.MaxScaleIns, order.Quantity, fillPrice))

	return nil
}

// scalePullback reports whether price has retraced to the far band
// while the oscillator confirms the stretch
func scalePullback(b *indicator.Bundle, long bool) bool {
	if long {
		return b.Band.PercentB < scalePercentBLong && b.Momentum.Value < scaleRSILong
	}
	return b.Band.PercentB > scalePercentBShort && b.Momentum.Value > scaleRSIShort
}

// scaleStrength reports a strong directional move in the position's
// favor
func scaleStrength(b *indicator.Bundle, long bool) bool {
	spread := b.Directional.PlusDI - b.Directional.MinusDI
	if !long {
		spread = -spread
	}
	return spread > scaleDISpread && b.Directional.Value > scaleADXFloor
}

func (m *Manager) shortBundle(data MarketData) *indicator.Bundle {
	if len(m.settings.Timeframes) == 0 {
		return nil
	}
	if b, ok := data.Bundles[m.settings.Timeframes[0]]; ok {
		return b
	}
	return nil
}
