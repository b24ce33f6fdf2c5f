package position

// RuntimeState holds the per-symbol fields derived from observed market
// data: price extremes, trailing stop and break-even flags. These are
// rebuildable from the market and intentionally kept out of the durable
// record, so a process restart cannot desynchronize them. On restart
// they are reseeded from the current price, never from invented
// history.
type RuntimeState struct {
	HighestPrice float64
	LowestPrice  float64

	TrailingActive  bool
	TrailingLevel   float64
	BreakEvenActive bool
}

// newRuntimeState seeds the state from the price observed when the
// position is first seen in a tick
func newRuntimeState(price float64) *RuntimeState {
	return &RuntimeState{
		HighestPrice: price,
		LowestPrice:  price,
	}
}

// observe folds a new price into the tracked extremes
func (r *RuntimeState) observe(price float64) {
	if price > r.HighestPrice {
		r.HighestPrice = price
	}
	if price < r.LowestPrice {
		r.LowestPrice = price
	}
}
