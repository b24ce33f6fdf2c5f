package core

import "errors"

var (
	// ErrInsufficientData is returned when a candle window is shorter
	// than an indicator requires. Recovered locally, never fatal.
	ErrInsufficientData = errors.New("insufficient candle data")

	// ErrInvalidQuantity flags a non-positive or out-of-range order quantity
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrMinNotional flags an order below the exchange minimum notional,
	// rejected locally before submission
	ErrMinNotional = errors.New("order below minimum notional")

	// ErrMaxPositions is returned when the open-position cap is reached
	ErrMaxPositions = errors.New("max concurrent positions reached")

	// ErrDuplicatePosition is returned when an active position already
	// exists for the symbol in the same direction
	ErrDuplicatePosition = errors.New("active position already exists for symbol")

	// ErrAssetInfoNotFound is returned for symbols unknown to the exchange
	ErrAssetInfoNotFound = errors.New("asset info not found")
)
