package indicator

// Votes counts the bullish/bearish sub-signals of a bundle.
// Five sub-signals are polled: band position, momentum oscillator,
// trend-oscillator histogram, directional index, and stochastic.
type Votes struct {
	Bullish int
	Bearish int
}

// Total returns the number of votes cast
func (v Votes) Total() int { return v.Bullish + v.Bearish }

// VoteBundle polls the five sub-signals of a single timeframe bundle.
// Exactly tied sub-signals abstain.
func VoteBundle(b *Bundle) Votes {
	var votes Votes

	vote := func(bullish, bearish bool) {
		switch {
		case bullish:
			votes.Bullish++
		case bearish:
			votes.Bearish++
		}
	}

	vote(b.LastClose > b.Band.Basis, b.LastClose < b.Band.Basis)
	vote(b.Momentum.Value > 50, b.Momentum.Value < 50)
	vote(b.Trend.Histogram > 0, b.Trend.Histogram < 0)
	vote(b.Directional.PlusDI > b.Directional.MinusDI, b.Directional.PlusDI < b.Directional.MinusDI)
	vote(b.Stoch.K > b.Stoch.D, b.Stoch.K < b.Stoch.D)

	return votes
}

// VoteAll aggregates votes across every available timeframe bundle
func VoteAll(bundles map[string]*Bundle) Votes {
	var total Votes
	for _, bundle := range bundles {
		votes := VoteBundle(bundle)
		total.Bullish += votes.Bullish
		total.Bearish += votes.Bearish
	}
	return total
}
