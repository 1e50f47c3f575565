package data

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"quant-engine/internal/model"
)

// MarketType selects the instrument family an adapter serves.
type MarketType string

const (
	MarketSpot     MarketType = "spot"
	MarketFutures  MarketType = "futures"  // USDT-margined perpetuals
	MarketDelivery MarketType = "delivery" // coin-margined, unused by the engine core
)

// Adapter is the market-data capability every exchange source implements.
// Implementations normalize symbols on output, return bars sorted by open
// time ascending and never more than limit bars. startMs/endMs of zero mean
// "unbounded".
type Adapter interface {
	Name() string
	GetKlines(ctx context.Context, symbol, interval string, limit int, startMs, endMs int64) ([]model.KLine, error)
	GetTicker(ctx context.Context, symbol string) (model.Ticker, error)
	Close() error
}

// FuturesAdapter extends Adapter with perpetual-specific reads.
type FuturesAdapter interface {
	Adapter
	GetMarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetFundingRate(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// OrderRequest and Order exist for trading-capable adapters. The engine core
// never routes orders; live mode implementers plug in here.
type OrderRequest struct {
	Symbol   string
	Side     string // BUY | SELL
	Type     string // MARKET | LIMIT
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

type Order struct {
	OrderID  string
	Symbol   string
	Side     string
	Status   string
	Quantity decimal.Decimal
	Filled   decimal.Decimal
	Price    decimal.Decimal
}

// TradingAdapter is the order-routing capability set. Futures-capable
// implementations additionally support SetLeverage and position reads.
type TradingAdapter interface {
	Adapter
	GetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetOrder(ctx context.Context, symbol, orderID string) (Order, error)
}

var knownQuotes = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH"}

// NormalizeSymbol canonicalizes exchange-native forms: "BTCUSDT" and
// "btc-usdt" both become "BTC/USDT". Already-normalized input passes through.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "-", "/")
	s = strings.ReplaceAll(s, "_", "/")
	if strings.Contains(s, "/") {
		return s
	}
	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return s[:len(s)-len(quote)] + "/" + quote
		}
	}
	return s
}

// ExchangeSymbol converts the normal form back to the exchange-native form:
// "BTC/USDT" -> "BTCUSDT".
func ExchangeSymbol(symbol string) string {
	return strings.ReplaceAll(strings.ToUpper(symbol), "/", "")
}
