package binance

import (
	"context"
	"time"
)

const (
	OrderTypeMarket = "MARKET"
	OrderSideBuy    = "BUY"
	OrderSideSell   = "SELL"
)

// Candle is one OHLCV bar for a fixed interval.
type Candle struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Balance is the free/locked split for a single asset.
type Balance struct {
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
	Total  float64 `json:"total"`
}

// OrderResult is the normalized outcome of a market order.
type OrderResult struct {
	OrderID     string
	Status      string
	FillPrice   float64
	ExecutedQty float64
}

// Filled reports whether the order fully executed.
func (r *OrderResult) Filled() bool {
	return r != nil && r.Status == "FILLED"
}

// Client is the exchange capability set the engine consumes. The live
// implementation talks to the Binance REST API; the paper implementation
// simulates fills against live market data.
type Client interface {
	GetServerTime(ctx context.Context) (int64, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
	CreateOrder(ctx context.Context, symbol, side string, quantity float64) (*OrderResult, error)
	GetAccountBalance(ctx context.Context) (map[string]Balance, error)

	// IsPaper reports whether orders are simulated rather than routed to the
	// exchange. Every consumer can tell the two modes apart through this.
	IsPaper() bool
}
