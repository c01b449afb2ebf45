package trader

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"bot-trading-go/internal/models"
	"gorm.io/gorm"
)

// TradeFilter narrows a trade listing.
type TradeFilter struct {
	UserID uint
	BotID  uint
	Status models.OrderStatus
	Limit  int
	Offset int
}

// ListTrades returns the user's trades, most recent first, with the total
// matching count.
func (e *Engine) ListTrades(filter TradeFilter) ([]models.Trade, int64, error) {
	q := e.db.Model(&models.Trade{}).Where("user_id = ?", filter.UserID)
	if filter.BotID != 0 {
		q = q.Where("bot_id = ?", filter.BotID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("could not count trades: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var trades []models.Trade
	if err := q.Order("entry_time desc").Offset(filter.Offset).Limit(limit).Find(&trades).Error; err != nil {
		return nil, 0, fmt.Errorf("could not list trades: %w", err)
	}
	return trades, total, nil
}

// GetTrade returns one of the user's trades by id.
func (e *Engine) GetTrade(userID, tradeID uint) (*models.Trade, error) {
	var trade models.Trade
	err := e.db.Where("user_id = ?", userID).First(&trade, tradeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrTradeNotFound, tradeID)
		}
		return nil, fmt.Errorf("could not load trade %d: %w", tradeID, err)
	}
	return &trade, nil
}

// TradeRef identifies a single notable trade in the analytics response.
type TradeRef struct {
	ID         uint    `json:"id"`
	Symbol     string  `json:"symbol"`
	ProfitLoss float64 `json:"profit_loss"`
}

// DailyPnl is one day's realized profit bucket.
type DailyPnl struct {
	Date string  `json:"date"`
	Pnl  float64 `json:"pnl"`
}

// TradeAnalytics summarizes closed-trade performance over a window. Here the
// win rate is computed over closed trades only; the per-bot legacy figure
// lives on the bot record.
type TradeAnalytics struct {
	TotalTrades       int        `json:"total_trades"`
	ClosedTrades      int        `json:"closed_trades"`
	OpenTrades        int        `json:"open_trades"`
	WinningTrades     int        `json:"winning_trades"`
	LosingTrades      int        `json:"losing_trades"`
	TotalProfitLoss   float64    `json:"total_profit_loss"`
	WinRate           float64    `json:"win_rate"`
	AvgProfitPerTrade float64    `json:"avg_profit_per_trade"`
	BestTrade         *TradeRef  `json:"best_trade"`
	WorstTrade        *TradeRef  `json:"worst_trade"`
	DailyPnl          []DailyPnl `json:"daily_pnl"`
}

// Analytics computes trade statistics for a user over the last days days,
// optionally scoped to one bot.
func (e *Engine) Analytics(userID, botID uint, days int) (*TradeAnalytics, error) {
	if days <= 0 || days > 365 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	q := e.db.Where("user_id = ? AND entry_time >= ?", userID, since)
	if botID != 0 {
		q = q.Where("bot_id = ?", botID)
	}

	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("could not load trades for analytics: %w", err)
	}

	a := &TradeAnalytics{TotalTrades: len(trades), DailyPnl: []DailyPnl{}}
	daily := make(map[string]float64)

	for i := range trades {
		t := &trades[i]
		if t.ExitPrice == nil {
			continue
		}
		a.ClosedTrades++
		a.TotalProfitLoss += t.ProfitLossUSDT

		if t.ProfitLossUSDT > 0 {
			a.WinningTrades++
		} else {
			a.LosingTrades++
		}

		if a.BestTrade == nil || t.ProfitLossUSDT > a.BestTrade.ProfitLoss {
			a.BestTrade = &TradeRef{ID: t.ID, Symbol: t.Symbol, ProfitLoss: t.ProfitLossUSDT}
		}
		if a.WorstTrade == nil || t.ProfitLossUSDT < a.WorstTrade.ProfitLoss {
			a.WorstTrade = &TradeRef{ID: t.ID, Symbol: t.Symbol, ProfitLoss: t.ProfitLossUSDT}
		}

		if t.ExitTime != nil {
			daily[t.ExitTime.UTC().Format("2006-01-02")] += t.ProfitLossUSDT
		}
	}

	a.OpenTrades = a.TotalTrades - a.ClosedTrades
	if a.ClosedTrades > 0 {
		a.WinRate = float64(a.WinningTrades) / float64(a.ClosedTrades) * 100
		a.AvgProfitPerTrade = a.TotalProfitLoss / float64(a.ClosedTrades)
	}

	dates := make([]string, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		a.DailyPnl = append(a.DailyPnl, DailyPnl{Date: d, Pnl: daily[d]})
	}

	return a, nil
}
