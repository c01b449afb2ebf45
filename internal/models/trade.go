package models

import (
	"time"

	"gorm.io/gorm"
)

// OrderSide is the direction of a trade.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderStatus tracks the exchange-side fate of a trade.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// Exit reasons set when the engine closes a position.
const (
	ExitReasonStopLoss   = "STOP_LOSS"
	ExitReasonTakeProfit = "TAKE_PROFIT"
)

// Trade is one row of the trade ledger. A BotID of zero means the trade was
// placed manually. A trade is open iff Status is FILLED and ExitPrice is nil;
// the profit fields are meaningful only once ExitPrice is set.
type Trade struct {
	gorm.Model
	UserID            uint        `gorm:"index" json:"user_id"`
	BotID             uint        `gorm:"index" json:"bot_id"`
	Symbol            string      `gorm:"not null" json:"symbol"`
	Side              OrderSide   `gorm:"not null" json:"side"`
	EntryPrice        float64     `json:"entry_price"`
	ExitPrice         *float64    `json:"exit_price,omitempty"`
	Quantity          float64     `gorm:"not null" json:"quantity"`
	AmountUSDT        float64     `json:"amount_usdt"`
	Status            OrderStatus `gorm:"default:PENDING" json:"status"`
	OrderID           string      `json:"order_id"`
	ExitReason        string      `json:"exit_reason,omitempty"`
	StrategySignal    string      `json:"strategy_signal,omitempty"`
	ProfitLossUSDT    float64     `json:"profit_loss_usdt"`
	ProfitLossPercent float64     `json:"profit_loss_percent"`
	EntryTime         time.Time   `json:"entry_time"`
	ExitTime          *time.Time  `json:"exit_time,omitempty"`
}

// IsOpen reports whether the trade is an open position.
func (t *Trade) IsOpen() bool {
	return t.Status == OrderStatusFilled && t.ExitPrice == nil
}
