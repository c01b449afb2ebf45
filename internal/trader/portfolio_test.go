package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"bot-trading-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestAccountHoldings(t *testing.T) {
	t.Run("AggregatesOpenLots", func(t *testing.T) {
		engine, mockClient, db := setupEngine(t)
		account := createAccount(t, db, true)
		bot := createActiveBot(t, db, account.ID, "BTCUSDT")

		openTradeFor(t, db, bot, 20000, 0.5)
		openTradeFor(t, db, bot, 22000, 0.5)

		mockClient.On("GetTickerPrice", mock.Anything, "BTCUSDT").Return(23000.0, nil)

		holdings, err := engine.AccountHoldings(context.Background(), account.ID)
		assert.NoError(t, err)
		assert.Len(t, holdings, 1)

		h := holdings[0]
		assert.Equal(t, "BTCUSDT", h.Symbol)
		assert.InDelta(t, 1.0, h.Quantity, 1e-9)
		// Plain mean over lots, not quantity-weighted.
		assert.InDelta(t, 21000.0, h.AvgEntryPrice, 1e-9)
		assert.InDelta(t, 23000.0, h.CurrentPrice, 1e-9)
		assert.InDelta(t, 23000.0, h.CurrentValue, 1e-9)
		assert.InDelta(t, 21000.0, h.CostBasis, 1e-9)
		assert.InDelta(t, 2000.0, h.UnrealizedPnl, 1e-9)
		assert.InDelta(t, 2000.0/21000.0*100, h.PnlPercent, 1e-9)
	})

	t.Run("ClosedLotsExcluded", func(t *testing.T) {
		engine, mockClient, db := setupEngine(t)
		account := createAccount(t, db, true)
		bot := createActiveBot(t, db, account.ID, "BTCUSDT")

		trade := openTradeFor(t, db, bot, 20000, 0.5)
		now := time.Now().UTC()
		exit := 21000.0
		assert.NoError(t, db.Model(trade).Updates(map[string]interface{}{
			"exit_price": exit, "exit_time": now,
		}).Error)

		holdings, err := engine.AccountHoldings(context.Background(), account.ID)
		assert.NoError(t, err)
		assert.Empty(t, holdings)
		mockClient.AssertNotCalled(t, "GetTickerPrice", mock.Anything, mock.Anything)
	})

	t.Run("PriceFailureMarksAtEntry", func(t *testing.T) {
		engine, mockClient, db := setupEngine(t)
		account := createAccount(t, db, true)
		bot := createActiveBot(t, db, account.ID, "BTCUSDT")
		openTradeFor(t, db, bot, 20000, 0.5)

		mockClient.On("GetTickerPrice", mock.Anything, "BTCUSDT").Return(0.0, errors.New("exchange down"))

		holdings, err := engine.AccountHoldings(context.Background(), account.ID)
		assert.NoError(t, err)
		assert.Len(t, holdings, 1)
		assert.InDelta(t, 20000.0, holdings[0].CurrentPrice, 1e-9)
		assert.InDelta(t, 0.0, holdings[0].UnrealizedPnl, 1e-9)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		engine, _, _ := setupEngine(t)
		_, err := engine.AccountHoldings(context.Background(), 404)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("SymbolsSorted", func(t *testing.T) {
		engine, mockClient, db := setupEngine(t)
		account := createAccount(t, db, true)
		ethBot := createActiveBot(t, db, account.ID, "ETHUSDT")
		btcBot := createActiveBot(t, db, account.ID, "BTCUSDT")
		openTradeFor(t, db, ethBot, 3000, 1)
		openTradeFor(t, db, btcBot, 20000, 0.1)

		mockClient.On("GetTickerPrice", mock.Anything, "BTCUSDT").Return(20000.0, nil)
		mockClient.On("GetTickerPrice", mock.Anything, "ETHUSDT").Return(3000.0, nil)

		holdings, err := engine.AccountHoldings(context.Background(), account.ID)
		assert.NoError(t, err)
		assert.Len(t, holdings, 2)
		assert.Equal(t, "BTCUSDT", holdings[0].Symbol)
		assert.Equal(t, "ETHUSDT", holdings[1].Symbol)
	})
}

func TestPortfolioSummaryFor(t *testing.T) {
	engine, mockClient, db := setupEngine(t)

	account := createAccount(t, db, true)
	assert.NoError(t, db.Model(account).Update("balance_usdt", 5000.0).Error)
	bot := createActiveBot(t, db, account.ID, "BTCUSDT")

	// Open lot from yesterday: 0.1 BTC bought at 10000, 1000 USDT spent.
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	openLot := &models.Trade{
		UserID: 1, BotID: bot.ID, Symbol: "BTCUSDT", Side: models.OrderSideBuy,
		EntryPrice: 10000, Quantity: 0.1, AmountUSDT: 1000,
		Status: models.OrderStatusFilled, EntryTime: yesterday,
	}
	assert.NoError(t, db.Create(openLot).Error)

	// Manual SELL today for 500 USDT.
	sell := &models.Trade{
		UserID: 1, Symbol: "ETHUSDT", Side: models.OrderSideSell,
		EntryPrice: 2500, Quantity: 0.2, AmountUSDT: 500,
		Status: models.OrderStatusFilled, EntryTime: time.Now().UTC(),
	}
	assert.NoError(t, db.Create(sell).Error)

	mockClient.On("GetTickerPrice", mock.Anything, "BTCUSDT").Return(12000.0, nil)

	summary, err := engine.PortfolioSummaryFor(context.Background(), 1)
	assert.NoError(t, err)

	assert.InDelta(t, 5000.0, summary.TotalUSDTBalance, 1e-9)
	assert.Len(t, summary.Holdings, 1)
	assert.InDelta(t, 1200.0, summary.TotalHoldingsValue, 1e-9)
	assert.InDelta(t, 200.0, summary.UnrealizedPnl, 1e-9)
	// Realized is the literal flow difference: 500 sold minus 1000 bought.
	assert.InDelta(t, -500.0, summary.RealizedPnl, 1e-9)
	assert.InDelta(t, -300.0, summary.TotalPnl, 1e-9)
	// Today: 500 sell flow plus all current unrealized P&L.
	assert.InDelta(t, 700.0, summary.TodayPnl, 1e-9)
}

func TestPortfolioSummaryFor_NoActivity(t *testing.T) {
	engine, _, _ := setupEngine(t)

	summary, err := engine.PortfolioSummaryFor(context.Background(), 1)
	assert.NoError(t, err)
	assert.Empty(t, summary.Holdings)
	assert.Zero(t, summary.TotalPnl)
	assert.Zero(t, summary.TodayPnl)
}
