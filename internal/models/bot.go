package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// BotStatus is the bot lifecycle state.
type BotStatus string

const (
	BotStatusActive  BotStatus = "ACTIVE"
	BotStatusPaused  BotStatus = "PAUSED"
	BotStatusError   BotStatus = "ERROR"
	BotStatusStopped BotStatus = "STOPPED"
)

// Strategy variant tags. Only MeanReversion is implemented; the others are
// reserved tags that resolve to a "strategy not available" error.
const (
	StrategyMeanReversion  = "mean_reversion"
	StrategyRsiOversold    = "rsi_oversold"
	StrategyTrendFollowing = "trend_following"
	StrategyGridTrading    = "grid_trading"
)

// JSONMap stores per-bot strategy parameter overrides as a JSON column.
type JSONMap map[string]float64

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for JSONMap", value)
	}
	return json.Unmarshal(data, m)
}

// BotConfig is a single trading bot: one strategy on one symbol, funded from
// one exchange account.
type BotConfig struct {
	gorm.Model
	UserID            uint       `gorm:"index" json:"user_id"`
	AccountID         uint       `gorm:"index" json:"account_id"`
	Name              string     `gorm:"not null" json:"name"`
	Strategy          string     `gorm:"not null" json:"strategy"`
	Symbol            string     `gorm:"default:BTCUSDT" json:"symbol"`
	TradeAmountUSDT   float64    `json:"trade_amount_usdt"`
	MaxRiskPercent    float64    `gorm:"default:2" json:"max_risk_percent"`
	StopLossPercent   float64    `gorm:"default:3" json:"stop_loss_percent"`
	TakeProfitPercent float64    `gorm:"default:5" json:"take_profit_percent"`
	Status            BotStatus  `gorm:"default:PAUSED" json:"status"`
	ConfigParams      JSONMap    `gorm:"type:json" json:"config_params,omitempty"`
	TotalProfitUSDT   float64    `json:"total_profit_usdt"`
	TotalTrades       int        `json:"total_trades"`
	WinRate           float64    `json:"win_rate"`
	LastRun           *time.Time `json:"last_run,omitempty"`
}
