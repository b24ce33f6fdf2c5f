// Package summary aggregates closed-trade statistics per strategy.
package summary

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/regimerun/pkg/core"
)

// StrategySummary collects statistics about one strategy's closed trades
type StrategySummary struct {
	Strategy         core.StrategyID
	WinLong          []float64
	WinLongPercent   []float64
	WinShort         []float64
	WinShortPercent  []float64
	LoseLong         []float64
	LoseLongPercent  []float64
	LoseShort        []float64
	LoseShortPercent []float64
	Volume           float64
}

// Win returns all winning trades (both long and short)
func (s StrategySummary) Win() []float64 {
	return append(s.WinLong, s.WinShort...)
}

// WinPercent returns the percentage gains of all winning trades
func (s StrategySummary) WinPercent() []float64 {
	return append(s.WinLongPercent, s.WinShortPercent...)
}

// Lose returns all losing trades (both long and short)
func (s StrategySummary) Lose() []float64 {
	return append(s.LoseLong, s.LoseShort...)
}

// LosePercent returns the percentage losses of all losing trades
func (s StrategySummary) LosePercent() []float64 {
	return append(s.LoseLongPercent, s.LoseShortPercent...)
}

// Profit calculates the total profit across all trades
func (s StrategySummary) Profit() float64 {
	allTrades := append(s.Win(), s.Lose()...)
	return sumSlice(allTrades)
}

// SQN (System Quality Number) calculates the quality of the trading system
// SQN = sqrt(n) * (average profit / standard deviation)
func (s StrategySummary) SQN() float64 {
	allTrades := append(s.Win(), s.Lose()...)
	totalTrades := float64(len(allTrades))

	if totalTrades == 0 {
		return 0
	}

	avgProfit := s.Profit() / totalTrades

	variance := 0.0
	for _, profit := range allTrades {
		variance += math.Pow(profit-avgProfit, 2)
	}

	stdDev := math.Sqrt(variance / totalTrades)
	if stdDev == 0 {
		return 0
	}

	return math.Sqrt(totalTrades) * (avgProfit / stdDev)
}

// Payoff calculates the ratio of average win to average loss
func (s StrategySummary) Payoff() float64 {
	winPercentages := s.WinPercent()
	losePercentages := s.LosePercent()

	if len(winPercentages) == 0 || len(losePercentages) == 0 {
		return 0
	}

	avgLoss := average(losePercentages)
	if avgLoss == 0 {
		return 0
	}

	return average(winPercentages) / math.Abs(avgLoss)
}

// ProfitFactor calculates the ratio of gross profits to gross losses
func (s StrategySummary) ProfitFactor() float64 {
	grossLoss := sumSlice(s.LosePercent())
	if grossLoss == 0 {
		return 0
	}

	return sumSlice(s.WinPercent()) / math.Abs(grossLoss)
}

// WinPercentage calculates the percentage of winning trades
func (s StrategySummary) WinPercentage() float64 {
	winCount := len(s.Win())
	totalTrades := winCount + len(s.Lose())

	if totalTrades == 0 {
		return 0
	}

	return float64(winCount) / float64(totalTrades) * 100
}

// Recorder accumulates closed positions keyed by the strategy that
// opened them. Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	summaries map[core.StrategyID]*StrategySummary
	returns   []float64
}

func NewRecorder() *Recorder {
	return &Recorder{
		summaries: make(map[core.StrategyID]*StrategySummary),
	}
}

// RecordClose attributes a finalized position to its strategy's summary
func (r *Recorder) RecordClose(position core.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary, ok := r.summaries[position.StrategyUsed]
	if !ok {
		summary = &StrategySummary{Strategy: position.StrategyUsed}
		r.summaries[position.StrategyUsed] = summary
	}

	profit := position.PnLAmount
	percent := position.PnLPercent
	long := position.IsLong()

	switch {
	case profit >= 0 && long:
		summary.WinLong = append(summary.WinLong, profit)
		summary.WinLongPercent = append(summary.WinLongPercent, percent)
	case profit >= 0:
		summary.WinShort = append(summary.WinShort, profit)
		summary.WinShortPercent = append(summary.WinShortPercent, percent)
	case long:
		summary.LoseLong = append(summary.LoseLong, profit)
		summary.LoseLongPercent = append(summary.LoseLongPercent, percent)
	default:
		summary.LoseShort = append(summary.LoseShort, profit)
		summary.LoseShortPercent = append(summary.LoseShortPercent, percent)
	}

	summary.Volume += position.TotalAllocation * float64(position.Leverage)
	r.returns = append(r.returns, percent)
}

// Summary returns a copy of one strategy's statistics
func (r *Recorder) Summary(id core.StrategyID) (StrategySummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary, ok := r.summaries[id]
	if !ok {
		return StrategySummary{}, false
	}
	return *summary, true
}

// String renders the per-strategy performance table followed by a
// histogram of all trade returns
func (r *Recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	builder := &strings.Builder{}
	table := tablewriter.NewWriter(builder)
	table.SetHeader([]string{"Strategy", "Trades", "Win", "Loss", "% Win", "Payoff", "Pr.Fact", "SQN", "Profit"})

	ids := make([]core.StrategyID, 0, len(r.summaries))
	for id := range r.summaries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		s := r.summaries[id]
		table.Append([]string{
			string(id),
			strconv.Itoa(len(s.Win()) + len(s.Lose())),
			strconv.Itoa(len(s.Win())),
			strconv.Itoa(len(s.Lose())),
			fmt.Sprintf("%.1f", s.WinPercentage()),
			fmt.Sprintf("%.2f", s.Payoff()),
			fmt.Sprintf("%.2f", s.ProfitFactor()),
			fmt.Sprintf("%.1f", s.SQN()),
			fmt.Sprintf("%.4f", s.Profit()),
		})
	}
	table.Render()

	if len(r.returns) > 1 {
		builder.WriteString("------ RETURN -------\n")
		hist := histogram.Hist(15, r.returns)
		_ = histogram.Fprint(builder, hist, histogram.Linear(10))
	}

	return builder.String()
}

// Helper functions

func sumSlice(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sumSlice(values) / float64(len(values))
}
