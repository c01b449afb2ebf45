package models_test

import (
	"path/filepath"
	"testing"

	"bot-trading-go/internal/database"
	"bot-trading-go/internal/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "models.db")), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, database.AutoMigrate(db))
	return db
}

func TestBotConfigParamsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	bot := &models.BotConfig{
		UserID:          1,
		AccountID:       1,
		Name:            "tuned",
		Strategy:        models.StrategyMeanReversion,
		Symbol:          "BTCUSDT",
		TradeAmountUSDT: 100,
		ConfigParams: models.JSONMap{
			"rsi_period":   10,
			"rsi_oversold": 35,
		},
	}
	assert.NoError(t, db.Create(bot).Error)

	var fresh models.BotConfig
	assert.NoError(t, db.First(&fresh, bot.ID).Error)
	assert.Equal(t, 10.0, fresh.ConfigParams["rsi_period"])
	assert.Equal(t, 35.0, fresh.ConfigParams["rsi_oversold"])

	// A bot without overrides reads back as nil params.
	plain := &models.BotConfig{UserID: 1, AccountID: 1, Name: "plain",
		Strategy: models.StrategyMeanReversion, Symbol: "BTCUSDT", TradeAmountUSDT: 100}
	assert.NoError(t, db.Create(plain).Error)

	var freshPlain models.BotConfig
	assert.NoError(t, db.First(&freshPlain, plain.ID).Error)
	assert.Nil(t, freshPlain.ConfigParams)
}

func TestExchangeAccountActiveFlagPersists(t *testing.T) {
	db := openTestDB(t)

	deactivated := &models.ExchangeAccount{UserID: 1, Name: "off", APIKey: "k", APISecret: "s", IsActive: false}
	assert.NoError(t, db.Create(deactivated).Error)
	active := &models.ExchangeAccount{UserID: 1, Name: "on", APIKey: "k", APISecret: "s", IsActive: true}
	assert.NoError(t, db.Create(active).Error)

	var fresh models.ExchangeAccount
	assert.NoError(t, db.First(&fresh, deactivated.ID).Error)
	assert.False(t, fresh.IsActive, "a deactivated account must not come back active")

	var freshActive models.ExchangeAccount
	assert.NoError(t, db.First(&freshActive, active.ID).Error)
	assert.True(t, freshActive.IsActive)
}
