// Package exchange provides shared helpers for exchange gateway
// implementations.
package exchange

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
	"github.com/raykavin/regimerun/pkg/core"
)

// OrderError represents an error that occurred during order creation or execution
type OrderError struct {
	Err      error
	Pair     string
	Quantity float64
}

// Error implements the error interface for OrderError
func (e *OrderError) Error() string {
	return fmt.Sprintf("order error: %v, pair: %s, quantity: %f", e.Err, e.Pair, e.Quantity)
}

func (e *OrderError) Unwrap() error { return e.Err }

// Known quote currencies for pair splitting
var quotes = []string{
	"USDT",
	"BTC",
	"BNB",
	"ETH",
	"BUSD",
	"USDC",
	"EUR",
	"TRY",
	"AUD",
	"BRL",
	"GBP",
	"USD",
	"NGN",
}

// SplitAssetQuote splits a trading pair into base asset and quote asset
func SplitAssetQuote(pair string) (asset, quote string) {
	for i := len(pair) - 1; i >= 0; i-- {
		for _, q := range quotes {
			if i >= len(q)-1 && pair[i-len(q)+1:i+1] == q {
				return pair[:i-len(q)+1], pair[i-len(q)+1:]
			}
		}
	}
	return pair[:len(pair)/2], pair[len(pair)/2:]
}

// FormatQuantity formats a quantity according to the pair's precision
func FormatQuantity(assetsInfo map[string]core.AssetInfo, pair string, value float64) string {
	info, ok := assetsInfo[pair]
	if !ok {
		return strconv.FormatFloat(value, 'f', 8, 64)
	}

	precision := info.QuantityPrecision
	if precision == 0 && info.StepSize > 0 {
		precision = precisionFromStep(info.StepSize)
	}

	return strconv.FormatFloat(value, 'f', precision, 64)
}

// FormatPrice formats a price according to the pair's precision
func FormatPrice(assetsInfo map[string]core.AssetInfo, pair string, value float64) string {
	info, ok := assetsInfo[pair]
	if !ok {
		return strconv.FormatFloat(value, 'f', 8, 64)
	}

	precision := info.PricePrecision
	if precision == 0 && info.TickSize > 0 {
		precision = precisionFromStep(info.TickSize)
	}

	return strconv.FormatFloat(value, 'f', precision, 64)
}

func precisionFromStep(step float64) int {
	precision := 0
	for step < 1 {
		step *= 10
		precision++
	}
	return precision
}

// ValidateOrder checks if an order quantity is valid for a pair
func ValidateOrder(assetsInfo map[string]core.AssetInfo, pair string, quantity float64) error {
	info, ok := assetsInfo[pair]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrAssetInfoNotFound, pair)
	}

	if info.MinQuantity > 0 && quantity < info.MinQuantity {
		return &OrderError{
			Err:      fmt.Errorf("%w: below minimum %f", core.ErrInvalidQuantity, info.MinQuantity),
			Pair:     pair,
			Quantity: quantity,
		}
	}

	if info.MaxQuantity > 0 && quantity > info.MaxQuantity {
		return &OrderError{
			Err:      fmt.Errorf("%w: above maximum %f", core.ErrInvalidQuantity, info.MaxQuantity),
			Pair:     pair,
			Quantity: quantity,
		}
	}

	return nil
}

// NewBackoff creates a retry backoff with sensible defaults for
// transient API failures
func NewBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}
