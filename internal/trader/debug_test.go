package trader

import (
	"context"
	"testing"

	"bot-trading-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestEvaluateSignal(t *testing.T) {
	t.Run("DryRun", func(t *testing.T) {
		engine, mockClient, db := setupEngine(t)
		account := createAccount(t, db, true)
		bot := createActiveBot(t, db, account.ID, "BTCUSDT")

		mockClient.On("GetKlines", mock.Anything, "BTCUSDT", "1h", 100).Return(buySeries(), nil)

		signal, err := engine.EvaluateSignal(context.Background(), bot.ID)
		assert.NoError(t, err)
		assert.Equal(t, bot.ID, signal.BotID)
		assert.Equal(t, "BTCUSDT", signal.Symbol)
		assert.Equal(t, 95.0, signal.CurrentPrice)
		assert.Equal(t, SignalBuy, signal.Signal.Kind)

		// Evaluation never trades or mutates the ledger.
		var count int64
		db.Model(&models.Trade{}).Count(&count)
		assert.Equal(t, int64(0), count)
		mockClient.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UnknownBot", func(t *testing.T) {
		engine, _, _ := setupEngine(t)
		_, err := engine.EvaluateSignal(context.Background(), 404)
		assert.ErrorIs(t, err, ErrBotNotFound)
	})

	t.Run("UnavailableStrategy", func(t *testing.T) {
		engine, _, db := setupEngine(t)
		account := createAccount(t, db, true)
		bot := createActiveBot(t, db, account.ID, "BTCUSDT")
		db.Model(bot).Update("strategy", models.StrategyRsiOversold)

		_, err := engine.EvaluateSignal(context.Background(), bot.ID)
		assert.ErrorIs(t, err, ErrStrategyUnavailable)
	})
}
