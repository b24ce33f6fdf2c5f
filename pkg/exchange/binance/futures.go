// Package binance implements the exchange gateway on the Binance
// USD-M futures API.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/exchange"
)

// MarginType represents the margin type for futures
type MarginType = futures.MarginType

const (
	MarginTypeIsolated MarginType = "ISOLATED"
	MarginTypeCrossed  MarginType = "CROSSED"

	// ErrNoNeedChangeMarginType is returned when margin type change is not needed
	ErrNoNeedChangeMarginType int64 = -4046

	candleFetchAttempts = 3
)

// PairOption represents configuration for a specific trading pair
type PairOption struct {
	Pair       string
	Leverage   int
	MarginType futures.MarginType
}

// Futures is the Binance USD-M futures gateway implementing
// core.Exchange
type Futures struct {
	client      *futures.Client
	assetsInfo  map[string]core.AssetInfo
	pairOptions []PairOption
}

// FuturesOption is a function that configures a Futures client
type FuturesOption func(*Futures)

// WithCredentials sets the API credentials for the Futures client
func WithCredentials(key, secret string) FuturesOption {
	return func(f *Futures) {
		f.client = futures.NewClient(key, secret)
	}
}

// WithTestnet routes all calls to the Binance futures testnet
func WithTestnet() FuturesOption {
	return func(*Futures) {
		futures.UseTestnet = true
	}
}

// WithLeverage sets the leverage and margin type for a trading pair
func WithLeverage(pair string, leverage int, marginType MarginType) FuturesOption {
	return func(f *Futures) {
		f.pairOptions = append(f.pairOptions, PairOption{
			Pair:       strings.ToUpper(pair),
			Leverage:   leverage,
			MarginType: marginType,
		})
	}
}

// NewFutures creates a new Binance futures exchange client
func NewFutures(ctx context.Context, options ...FuturesOption) (*Futures, error) {
	binance.WebsocketKeepalive = true

	gateway := &Futures{
		client:      futures.NewClient("", ""),
		assetsInfo:  make(map[string]core.AssetInfo),
		pairOptions: make([]PairOption, 0),
	}

	for _, option := range options {
		option(gateway)
	}

	if err := gateway.validateConnection(ctx); err != nil {
		return nil, err
	}

	if err := gateway.configurePairs(ctx); err != nil {
		return nil, err
	}

	if err := gateway.initializeAssetInfo(ctx); err != nil {
		return nil, err
	}

	return gateway, nil
}

// validateConnection tests the connection to the Binance Futures API
func (f *Futures) validateConnection(ctx context.Context) error {
	err := f.client.NewPingService().Do(ctx)
	if err != nil {
		return fmt.Errorf("binance futures ping fail: %w", err)
	}
	return nil
}

// configurePairs sets leverage and margin type for all configured trading pairs
func (f *Futures) configurePairs(ctx context.Context) error {
	for _, option := range f.pairOptions {
		_, err := f.client.NewChangeLeverageService().
			Symbol(option.Pair).
			Leverage(option.Leverage).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to set leverage for %s: %w", option.Pair, err)
		}

		err = f.client.NewChangeMarginTypeService().
			Symbol(option.Pair).
			MarginType(option.MarginType).
			Do(ctx)
		if err != nil {
			// Ignore "no need to change" error
			if apiError, ok := err.(*common.APIError); !ok || apiError.Code != ErrNoNeedChangeMarginType {
				return fmt.Errorf("failed to set margin type for %s: %w", option.Pair, err)
			}
		}
	}
	return nil
}

// initializeAssetInfo fetches exchange information and initializes asset data
func (f *Futures) initializeAssetInfo(ctx context.Context) error {
	exchangeInfo, err := f.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get futures exchange info: %w", err)
	}

	for _, info := range exchangeInfo.Symbols {
		assetInfo, err := createAssetInfo(info)
		if err != nil {
			return err
		}
		f.assetsInfo[info.Symbol] = assetInfo
	}

	return nil
}

// AssetsInfo returns information about an asset
func (f *Futures) AssetsInfo(pair string) (core.AssetInfo, error) {
	if val, ok := f.assetsInfo[pair]; ok {
		return val, nil
	}
	return core.AssetInfo{}, fmt.Errorf("%w: %s", core.ErrAssetInfoNotFound, pair)
}

// LastQuote gets the latest traded price for a pair
func (f *Futures) LastQuote(ctx context.Context, pair string) (float64, error) {
	prices, err := f.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price returned for %s", pair)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

// CandlesByLimit gets the most recent closed candles for a pair.
// The still-forming candle is dropped so every returned candle is
// complete. Transient API failures are retried with backoff.
func (f *Futures) CandlesByLimit(ctx context.Context, pair, period string, limit int) ([]core.Candle, error) {
	retry := exchange.NewBackoff()

	var data []*futures.Kline
	var err error
	for attempt := 0; attempt < candleFetchAttempts; attempt++ {
		data, err = f.client.NewKlinesService().
			Symbol(pair).
			Interval(period).
			Limit(limit + 1).
			Do(ctx)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retry.Duration()):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch candles for %s %s: %w", pair, period, err)
	}

	candles := make([]core.Candle, 0, len(data))
	for i, d := range data {
		// Last candle is still forming
		if i == len(data)-1 {
			break
		}
		candles = append(candles, convertKlineToCandle(pair, *d))
	}

	return candles, nil
}

// AccountBalance returns the available USDT wallet balance. USD-M
// futures margin is settled in USDT regardless of the traded pair.
func (f *Futures) AccountBalance(ctx context.Context) (float64, error) {
	balances, err := f.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch account balance: %w", err)
	}

	for _, balance := range balances {
		if balance.Asset != "USDT" {
			continue
		}
		return strconv.ParseFloat(balance.AvailableBalance, 64)
	}

	return 0, fmt.Errorf("no USDT balance in futures account")
}

// OpenPositions returns every non-zero position held on the exchange
func (f *Futures) OpenPositions(ctx context.Context) ([]core.ExchangePosition, error) {
	risks, err := f.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch position risk: %w", err)
	}

	positions := make([]core.ExchangePosition, 0)
	for _, risk := range risks {
		amount, err := strconv.ParseFloat(risk.PositionAmt, 64)
		if err != nil || amount == 0 {
			continue
		}

		entryPrice, _ := strconv.ParseFloat(risk.EntryPrice, 64)
		leverage, _ := strconv.ParseFloat(risk.Leverage, 64)
		unrealized, _ := strconv.ParseFloat(risk.UnRealizedProfit, 64)

		side := core.SideTypeBuy
		quantity := amount
		if amount < 0 {
			side = core.SideTypeSell
			quantity = -amount
		}

		positions = append(positions, core.ExchangePosition{
			Pair:          risk.Symbol,
			Side:          side,
			Quantity:      quantity,
			EntryPrice:    entryPrice,
			Leverage:      leverage,
			UnrealizedPnL: unrealized,
		})
	}

	return positions, nil
}

// CreateOrderMarket creates a market order
func (f *Futures) CreateOrderMarket(ctx context.Context, side core.SideType, pair string, quantity float64) (core.Order, error) {
	if err := f.validate(pair, quantity); err != nil {
		return core.Order{}, err
	}

	order, err := f.client.NewCreateOrderService().
		Symbol(pair).
		Type(futures.OrderTypeMarket).
		Side(futures.SideType(side)).
		Quantity(f.formatQuantity(pair, quantity)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		return core.Order{}, &exchange.OrderError{Err: err, Pair: pair, Quantity: quantity}
	}

	cost, _ := strconv.ParseFloat(order.CumQuote, 64)
	executed, err := strconv.ParseFloat(order.ExecutedQuantity, 64)
	if err != nil {
		return core.Order{}, err
	}

	price := 0.0
	if executed > 0 {
		price = cost / executed
	}

	return core.Order{
		ExchangeID: order.OrderID,
		CreatedAt:  time.Unix(0, order.UpdateTime*int64(time.Millisecond)),
		UpdatedAt:  time.Unix(0, order.UpdateTime*int64(time.Millisecond)),
		Pair:       order.Symbol,
		Side:       core.SideType(order.Side),
		Type:       core.OrderType(order.Type),
		Status:     string(order.Status),
		Price:      price,
		Quantity:   executed,
	}, nil
}

// CreateOrderStop creates a stop-market order triggered at stopPrice
func (f *Futures) CreateOrderStop(ctx context.Context, side core.SideType, pair string, quantity, stopPrice float64) (core.Order, error) {
	if err := f.validate(pair, quantity); err != nil {
		return core.Order{}, err
	}

	order, err := f.client.NewCreateOrderService().
		Symbol(pair).
		Type(futures.OrderTypeStopMarket).
		TimeInForce(futures.TimeInForceTypeGTC).
		Side(futures.SideType(side)).
		Quantity(f.formatQuantity(pair, quantity)).
		StopPrice(f.formatPrice(pair, stopPrice)).
		Do(ctx)
	if err != nil {
		return core.Order{}, &exchange.OrderError{Err: err, Pair: pair, Quantity: quantity}
	}

	return convertCreateResponse(pair, order, stopPrice), nil
}

// CreateOrderTakeProfit creates a take-profit-market order triggered at stopPrice
func (f *Futures) CreateOrderTakeProfit(ctx context.Context, side core.SideType, pair string, quantity, stopPrice float64) (core.Order, error) {
	if err := f.validate(pair, quantity); err != nil {
		return core.Order{}, err
	}

	order, err := f.client.NewCreateOrderService().
		Symbol(pair).
		Type(futures.OrderTypeTakeProfitMarket).
		TimeInForce(futures.TimeInForceTypeGTC).
		Side(futures.SideType(side)).
		Quantity(f.formatQuantity(pair, quantity)).
		StopPrice(f.formatPrice(pair, stopPrice)).
		Do(ctx)
	if err != nil {
		return core.Order{}, &exchange.OrderError{Err: err, Pair: pair, Quantity: quantity}
	}

	return convertCreateResponse(pair, order, stopPrice), nil
}

// CreateOrderTrailingStop creates an exchange-side trailing stop that
// activates at activationPrice and trails by callbackRate percent
func (f *Futures) CreateOrderTrailingStop(ctx context.Context, side core.SideType, pair string, quantity, activationPrice, callbackRate float64) (core.Order, error) {
	if err := f.validate(pair, quantity); err != nil {
		return core.Order{}, err
	}

	order, err := f.client.NewCreateOrderService().
		Symbol(pair).
		Type(futures.OrderTypeTrailingStopMarket).
		Side(futures.SideType(side)).
		Quantity(f.formatQuantity(pair, quantity)).
		ActivationPrice(f.formatPrice(pair, activationPrice)).
		CallbackRate(strconv.FormatFloat(callbackRate, 'f', 1, 64)).
		Do(ctx)
	if err != nil {
		return core.Order{}, &exchange.OrderError{Err: err, Pair: pair, Quantity: quantity}
	}

	return convertCreateResponse(pair, order, activationPrice), nil
}

// CancelOpenOrders cancels all open orders for a pair
func (f *Futures) CancelOpenOrders(ctx context.Context, pair string) error {
	return f.client.NewCancelAllOpenOrdersService().
		Symbol(pair).
		Do(ctx)
}

// formatQuantity formats a quantity according to the pair's precision
func (f *Futures) formatQuantity(pair string, value float64) string {
	return exchange.FormatQuantity(f.assetsInfo, pair, value)
}

// formatPrice formats a price according to the pair's precision
func (f *Futures) formatPrice(pair string, value float64) string {
	return exchange.FormatPrice(f.assetsInfo, pair, value)
}

// validate checks if an order quantity is valid for a pair
func (f *Futures) validate(pair string, quantity float64) error {
	return exchange.ValidateOrder(f.assetsInfo, pair, quantity)
}

func convertCreateResponse(pair string, order *futures.CreateOrderResponse, triggerPrice float64) core.Order {
	quantity, _ := strconv.ParseFloat(order.OrigQuantity, 64)

	return core.Order{
		ExchangeID: order.OrderID,
		CreatedAt:  time.Unix(0, order.UpdateTime*int64(time.Millisecond)),
		UpdatedAt:  time.Unix(0, order.UpdateTime*int64(time.Millisecond)),
		Pair:       pair,
		Side:       core.SideType(order.Side),
		Type:       core.OrderType(order.Type),
		Status:     string(order.Status),
		Price:      triggerPrice,
		Quantity:   quantity,
	}
}

// convertKlineToCandle converts a Binance futures kline to a core.Candle
func convertKlineToCandle(pair string, k futures.Kline) core.Candle {
	candle := core.Candle{
		Pair:     pair,
		Time:     time.Unix(0, k.OpenTime*int64(time.Millisecond)),
		Complete: true,
	}

	candle.Open, _ = strconv.ParseFloat(k.Open, 64)
	candle.Close, _ = strconv.ParseFloat(k.Close, 64)
	candle.High, _ = strconv.ParseFloat(k.High, 64)
	candle.Low, _ = strconv.ParseFloat(k.Low, 64)
	candle.Volume, _ = strconv.ParseFloat(k.Volume, 64)

	return candle
}

// createAssetInfo builds a core.AssetInfo from futures symbol metadata
func createAssetInfo(info futures.Symbol) (core.AssetInfo, error) {
	assetInfo := core.AssetInfo{
		BaseAsset:         info.BaseAsset,
		QuoteAsset:        info.QuoteAsset,
		QuantityPrecision: info.QuantityPrecision,
		PricePrecision:    info.PricePrecision,
	}

	if lotSize := info.LotSizeFilter(); lotSize != nil {
		var err error
		if assetInfo.MinQuantity, err = strconv.ParseFloat(lotSize.MinQuantity, 64); err != nil {
			return core.AssetInfo{}, fmt.Errorf("parse minQty for %s: %w", info.Symbol, err)
		}
		if assetInfo.MaxQuantity, err = strconv.ParseFloat(lotSize.MaxQuantity, 64); err != nil {
			return core.AssetInfo{}, fmt.Errorf("parse maxQty for %s: %w", info.Symbol, err)
		}
		if assetInfo.StepSize, err = strconv.ParseFloat(lotSize.StepSize, 64); err != nil {
			return core.AssetInfo{}, fmt.Errorf("parse stepSize for %s: %w", info.Symbol, err)
		}
	}

	if priceFilter := info.PriceFilter(); priceFilter != nil {
		tickSize, err := strconv.ParseFloat(priceFilter.TickSize, 64)
		if err != nil {
			return core.AssetInfo{}, fmt.Errorf("parse tickSize for %s: %w", info.Symbol, err)
		}
		assetInfo.TickSize = tickSize
	}

	if minNotional := info.MinNotionalFilter(); minNotional != nil {
		notional, err := strconv.ParseFloat(minNotional.Notional, 64)
		if err != nil {
			return core.AssetInfo{}, fmt.Errorf("parse minNotional for %s: %w", info.Symbol, err)
		}
		assetInfo.MinNotional = notional
	}

	return assetInfo, nil
}
