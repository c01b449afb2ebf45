package models

import (
	"time"

	"gorm.io/gorm"
)

// ExchangeAccount stores the API credentials and cached balance for one
// exchange connection. A paper account uses live market data but never
// places real orders.
type ExchangeAccount struct {
	gorm.Model
	UserID      uint       `gorm:"index" json:"user_id"`
	Name        string     `gorm:"not null" json:"name"`
	APIKey      string     `gorm:"not null" json:"-"`
	APISecret   string     `gorm:"not null" json:"-"`
	Paper       bool       `json:"paper"`
	IsActive    bool       `json:"is_active"`
	BalanceUSDT float64    `json:"balance_usdt"`
	LastSync    *time.Time `json:"last_sync,omitempty"`
}
