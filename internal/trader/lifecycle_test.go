package trader

import (
	"path/filepath"
	"testing"

	"bot-trading-go/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupManager(t *testing.T) (*BotManager, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "trader.db")), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(&models.ExchangeAccount{}, &models.BotConfig{}, &models.Trade{}))
	return NewBotManager(db, zap.NewNop()), db
}

func TestCreateBot(t *testing.T) {
	t.Run("AlwaysStartsPaused", func(t *testing.T) {
		manager, db := setupManager(t)
		account := createAccount(t, db, true)

		bot := &models.BotConfig{
			UserID:          1,
			AccountID:       account.ID,
			Name:            "dca",
			Strategy:        models.StrategyMeanReversion,
			Symbol:          "BTCUSDT",
			TradeAmountUSDT: 100,
			Status:          models.BotStatusActive, // requested state is ignored
		}
		assert.NoError(t, manager.CreateBot(bot))

		var fresh models.BotConfig
		assert.NoError(t, db.First(&fresh, bot.ID).Error)
		assert.Equal(t, models.BotStatusPaused, fresh.Status)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		manager, _ := setupManager(t)
		bot := &models.BotConfig{UserID: 1, AccountID: 999, Name: "dca", Symbol: "BTCUSDT"}
		assert.ErrorIs(t, manager.CreateBot(bot), ErrAccountNotFound)
	})
}

func TestBotTransitions(t *testing.T) {
	manager, db := setupManager(t)
	account := createAccount(t, db, true)
	bot := &models.BotConfig{UserID: 1, AccountID: account.ID, Name: "dca",
		Strategy: models.StrategyMeanReversion, Symbol: "BTCUSDT", TradeAmountUSDT: 100}
	assert.NoError(t, manager.CreateBot(bot))

	status := func() models.BotStatus {
		var fresh models.BotConfig
		assert.NoError(t, db.First(&fresh, bot.ID).Error)
		return fresh.Status
	}

	assert.NoError(t, manager.StartBot(bot.ID))
	assert.Equal(t, models.BotStatusActive, status())

	// Starting an already-active bot is a no-op, not an error.
	assert.NoError(t, manager.StartBot(bot.ID))
	assert.Equal(t, models.BotStatusActive, status())

	assert.NoError(t, manager.PauseBot(bot.ID))
	assert.Equal(t, models.BotStatusPaused, status())

	// ERROR is recoverable through an explicit start.
	assert.NoError(t, db.Model(&models.BotConfig{}).Where("id = ?", bot.ID).
		Update("status", models.BotStatusError).Error)
	assert.NoError(t, manager.StartBot(bot.ID))
	assert.Equal(t, models.BotStatusActive, status())

	assert.ErrorIs(t, manager.StartBot(999), ErrBotNotFound)
	assert.ErrorIs(t, manager.PauseBot(999), ErrBotNotFound)
}

func TestUpdateBot(t *testing.T) {
	manager, db := setupManager(t)
	account := createAccount(t, db, true)
	bot := &models.BotConfig{UserID: 1, AccountID: account.ID, Name: "dca",
		Strategy: models.StrategyMeanReversion, Symbol: "BTCUSDT",
		TradeAmountUSDT: 100, StopLossPercent: 3, TakeProfitPercent: 5}
	assert.NoError(t, manager.CreateBot(bot))
	assert.NoError(t, db.Model(bot).Updates(map[string]interface{}{
		"total_trades": 7, "total_profit_usdt": 42.0,
	}).Error)

	name := "dca-tuned"
	stop := 2.5
	updated, err := manager.UpdateBot(bot.ID, BotUpdate{
		Name:            &name,
		StopLossPercent: &stop,
		ConfigParams:    models.JSONMap{"rsi_oversold": 40},
	})
	assert.NoError(t, err)
	assert.Equal(t, "dca-tuned", updated.Name)
	assert.Equal(t, 2.5, updated.StopLossPercent)
	assert.Equal(t, 40.0, updated.ConfigParams["rsi_oversold"])

	// Untouched fields and stats survive a settings update.
	assert.Equal(t, 5.0, updated.TakeProfitPercent)
	assert.Equal(t, 100.0, updated.TradeAmountUSDT)
	assert.Equal(t, 7, updated.TotalTrades)
	assert.Equal(t, 42.0, updated.TotalProfitUSDT)
	assert.Equal(t, models.BotStatusPaused, updated.Status)

	t.Run("EmptyUpdateIsNoOp", func(t *testing.T) {
		same, err := manager.UpdateBot(bot.ID, BotUpdate{})
		assert.NoError(t, err)
		assert.Equal(t, "dca-tuned", same.Name)
	})

	t.Run("UnknownBot", func(t *testing.T) {
		_, err := manager.UpdateBot(999, BotUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrBotNotFound)
	})
}

func TestDeleteBot(t *testing.T) {
	manager, db := setupManager(t)
	account := createAccount(t, db, true)
	bot := &models.BotConfig{UserID: 1, AccountID: account.ID, Name: "dca",
		Strategy: models.StrategyMeanReversion, Symbol: "BTCUSDT", TradeAmountUSDT: 100}
	assert.NoError(t, manager.CreateBot(bot))

	assert.NoError(t, manager.StartBot(bot.ID))
	assert.ErrorIs(t, manager.DeleteBot(bot.ID), ErrInvalidStateTransition)

	assert.NoError(t, manager.PauseBot(bot.ID))
	assert.NoError(t, manager.DeleteBot(bot.ID))

	_, err := manager.GetBot(bot.ID)
	assert.ErrorIs(t, err, ErrBotNotFound)
}

func TestListBots(t *testing.T) {
	manager, db := setupManager(t)
	account := createAccount(t, db, true)

	for i, userID := range []uint{1, 1, 2} {
		bot := &models.BotConfig{UserID: userID, AccountID: account.ID,
			Name: "bot", Strategy: models.StrategyMeanReversion,
			Symbol: "BTCUSDT", TradeAmountUSDT: float64(100 + i)}
		assert.NoError(t, manager.CreateBot(bot))
	}

	all, err := manager.ListBots(0)
	assert.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := manager.ListBots(1)
	assert.NoError(t, err)
	assert.Len(t, mine, 2)
}
