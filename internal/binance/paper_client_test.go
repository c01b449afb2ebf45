package binance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// stubDataClient answers market-data reads with canned values and fails hard
// if the order endpoint is ever touched.
type stubDataClient struct {
	t        *testing.T
	price    float64
	priceErr error
}

func (s *stubDataClient) GetServerTime(ctx context.Context) (int64, error) {
	return 1723456789000, nil
}

func (s *stubDataClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	return []Candle{{Close: s.price}}, nil
}

func (s *stubDataClient) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return s.price, s.priceErr
}

func (s *stubDataClient) CreateOrder(ctx context.Context, symbol, side string, quantity float64) (*OrderResult, error) {
	s.t.Fatal("paper client must never forward orders to the real client")
	return nil, nil
}

func (s *stubDataClient) GetAccountBalance(ctx context.Context) (map[string]Balance, error) {
	return map[string]Balance{"BTC": {Free: 99, Total: 99}}, nil
}

func (s *stubDataClient) IsPaper() bool { return false }

func newPaperUnderTest(t *testing.T, price float64, startingUSDT float64) (*PaperClient, *stubDataClient) {
	t.Helper()
	stub := &stubDataClient{t: t, price: price}
	return NewPaperClient(stub, startingUSDT, zap.NewNop()), stub
}

func TestPaperClient_Buy(t *testing.T) {
	paper, _ := newPaperUnderTest(t, 20000, 10000)

	order, err := paper.CreateOrder(context.Background(), "BTCUSDT", OrderSideBuy, 0.25)
	assert.NoError(t, err)
	assert.True(t, order.Filled())
	assert.Equal(t, 20000.0, order.FillPrice)
	assert.Equal(t, 0.25, order.ExecutedQty)
	assert.True(t, strings.HasPrefix(order.OrderID, "paper-"))

	balances, err := paper.GetAccountBalance(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, 5000.0, balances["USDT"].Free, 1e-9)
	assert.InDelta(t, 0.25, balances["BTC"].Free, 1e-9)
}

func TestPaperClient_SellRoundTrip(t *testing.T) {
	paper, stub := newPaperUnderTest(t, 20000, 10000)

	_, err := paper.CreateOrder(context.Background(), "BTCUSDT", OrderSideBuy, 0.25)
	assert.NoError(t, err)

	stub.price = 22000
	order, err := paper.CreateOrder(context.Background(), "BTCUSDT", OrderSideSell, 0.25)
	assert.NoError(t, err)
	assert.Equal(t, 22000.0, order.FillPrice)

	balances, err := paper.GetAccountBalance(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, 10500.0, balances["USDT"].Free, 1e-9)
	_, hasBTC := balances["BTC"]
	assert.False(t, hasBTC, "emptied assets are dropped from the view")
}

func TestPaperClient_InsufficientBalance(t *testing.T) {
	paper, _ := newPaperUnderTest(t, 20000, 100)

	_, err := paper.CreateOrder(context.Background(), "BTCUSDT", OrderSideBuy, 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient USDT balance")

	_, err = paper.CreateOrder(context.Background(), "BTCUSDT", OrderSideSell, 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient BTC balance")
}

func TestPaperClient_PriceFailureBlocksOrder(t *testing.T) {
	paper, stub := newPaperUnderTest(t, 20000, 10000)
	stub.priceErr = errors.New("exchange down")

	_, err := paper.CreateOrder(context.Background(), "BTCUSDT", OrderSideBuy, 0.1)
	assert.Error(t, err)

	// Nothing settled.
	stub.priceErr = nil
	balances, err := paper.GetAccountBalance(context.Background())
	assert.NoError(t, err)
	assert.InDelta(t, 10000.0, balances["USDT"].Free, 1e-9)
}

func TestPaperClient_VirtualBalanceOnly(t *testing.T) {
	paper, _ := newPaperUnderTest(t, 20000, 10000)

	// The delegate reports 99 BTC; the paper view must not.
	balances, err := paper.GetAccountBalance(context.Background())
	assert.NoError(t, err)
	assert.Len(t, balances, 1)
	assert.InDelta(t, 10000.0, balances["USDT"].Free, 1e-9)
}

func TestPaperClient_DelegatesReads(t *testing.T) {
	paper, _ := newPaperUnderTest(t, 12345, 10000)

	serverTime, err := paper.GetServerTime(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(1723456789000), serverTime)

	price, err := paper.GetTickerPrice(context.Background(), "BTCUSDT")
	assert.NoError(t, err)
	assert.Equal(t, 12345.0, price)

	candles, err := paper.GetKlines(context.Background(), "BTCUSDT", "1h", 1)
	assert.NoError(t, err)
	assert.Len(t, candles, 1)

	assert.True(t, paper.IsPaper())
}

func TestSplitSymbol(t *testing.T) {
	cases := []struct {
		symbol string
		base   string
		quote  string
	}{
		{"BTCUSDT", "BTC", "USDT"},
		{"ETHUSDT", "ETH", "USDT"},
		{"ETHBTC", "ETH", "BTC"},
		{"SOLBUSD", "SOL", "BUSD"},
		{"UNKNOWN", "UNKNOWN", "USDT"},
	}
	for _, tc := range cases {
		base, quote := splitSymbol(tc.symbol)
		assert.Equal(t, tc.base, base, tc.symbol)
		assert.Equal(t, tc.quote, quote, tc.symbol)
	}
}
