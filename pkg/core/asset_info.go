package core

// AssetInfo contains market information about a trading pair
type AssetInfo struct {
	BaseAsset  string
	QuoteAsset string

	MinQuantity float64
	MaxQuantity float64
	StepSize    float64
	TickSize    float64
	MinNotional float64

	QuantityPrecision int
	PricePrecision    int
}

// GetBaseAsset returns the base asset of the trading pair
func (a AssetInfo) GetBaseAsset() string { return a.BaseAsset }

// GetQuoteAsset returns the quote asset of the trading pair
func (a AssetInfo) GetQuoteAsset() string { return a.QuoteAsset }

// GetMinQuantity returns the minimum quantity allowed for the trading pair
func (a AssetInfo) GetMinQuantity() float64 { return a.MinQuantity }

// GetStepSize returns the step size for quantity increments
func (a AssetInfo) GetStepSize() float64 { return a.StepSize }

// GetTickSize returns the tick size for price increments
func (a AssetInfo) GetTickSize() float64 { return a.TickSize }

// GetMinNotional returns the minimum order notional for the trading pair
func (a AssetInfo) GetMinNotional() float64 { return a.MinNotional }
