package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaperClient simulates order execution against live market data. It
// delegates all read-only calls to a real data client, fills market orders
// at the live ticker price, and tracks an isolated virtual balance. No call
// ever reaches the real order endpoint.
type PaperClient struct {
	data   Client
	logger *zap.Logger

	mu       sync.Mutex
	balances map[string]float64 // asset -> free quantity
}

var _ Client = (*PaperClient)(nil)

// NewPaperClient wraps a live data client with simulated execution.
// The virtual account starts with startingUSDT quote currency.
func NewPaperClient(data Client, startingUSDT float64, logger *zap.Logger) *PaperClient {
	return &PaperClient{
		data:   data,
		logger: logger,
		balances: map[string]float64{
			"USDT": startingUSDT,
		},
	}
}

// IsPaper always reports true.
func (p *PaperClient) IsPaper() bool {
	return true
}

func (p *PaperClient) GetServerTime(ctx context.Context) (int64, error) {
	return p.data.GetServerTime(ctx)
}

func (p *PaperClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	return p.data.GetKlines(ctx, symbol, interval, limit)
}

func (p *PaperClient) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return p.data.GetTickerPrice(ctx, symbol)
}

// GetAccountBalance returns the virtual balances, never the real account's.
func (p *PaperClient) GetAccountBalance(ctx context.Context) (map[string]Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	balances := make(map[string]Balance, len(p.balances))
	for asset, free := range p.balances {
		if free > 0 {
			balances[asset] = Balance{Free: free, Total: free}
		}
	}
	return balances, nil
}

// CreateOrder simulates a market order filled at the current live price and
// settles it against the virtual balance.
func (p *PaperClient) CreateOrder(ctx context.Context, symbol, side string, quantity float64) (*OrderResult, error) {
	price, err := p.data.GetTickerPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("paper order: could not get current price for %s: %w", symbol, err)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("paper order: invalid quantity %f for %s", quantity, symbol)
	}

	base, quote := splitSymbol(symbol)
	cost := quantity * price

	p.mu.Lock()
	defer p.mu.Unlock()

	switch side {
	case OrderSideBuy:
		if p.balances[quote] < cost {
			return nil, fmt.Errorf("paper order: insufficient %s balance: have %.8f, need %.8f",
				quote, p.balances[quote], cost)
		}
		p.balances[quote] -= cost
		p.balances[base] += quantity
	case OrderSideSell:
		if p.balances[base] < quantity {
			return nil, fmt.Errorf("paper order: insufficient %s balance: have %.8f, need %.8f",
				base, p.balances[base], quantity)
		}
		p.balances[base] -= quantity
		p.balances[quote] += cost
	default:
		return nil, fmt.Errorf("paper order: unknown side %q", side)
	}

	order := &OrderResult{
		OrderID:     "paper-" + uuid.NewString(),
		Status:      "FILLED",
		FillPrice:   price,
		ExecutedQty: quantity,
	}

	p.logger.Info("PAPER TRADE: simulated fill",
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("quantity", quantity),
		zap.Float64("price", price),
		zap.String("order_id", order.OrderID),
	)
	return order, nil
}

// splitSymbol separates a pair like BTCUSDT into base and quote assets.
// Quote detection covers the quote currencies this system trades against.
func splitSymbol(symbol string) (base, quote string) {
	for _, q := range []string{"USDT", "BUSD", "USDC", "BTC", "ETH"} {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return symbol[:len(symbol)-len(q)], q
		}
	}
	return symbol, "USDT"
}
