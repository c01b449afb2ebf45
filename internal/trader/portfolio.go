package trader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bot-trading-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Holding is the reconstructed open position for one symbol: every open
// FILLED BUY lot collapsed into quantity, average entry and mark-to-market
// P&L. Derived on read, never persisted.
type Holding struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	CurrentValue  float64 `json:"current_value"`
	CostBasis     float64 `json:"cost_basis"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	PnlPercent    float64 `json:"pnl_percent"`
}

// PortfolioSummary is the cross-account view for one user.
type PortfolioSummary struct {
	TotalUSDTBalance   float64   `json:"total_usdt_balance"`
	TotalHoldingsValue float64   `json:"total_holdings_value"`
	RealizedPnl        float64   `json:"realized_pnl"`
	UnrealizedPnl      float64   `json:"unrealized_pnl"`
	TotalPnl           float64   `json:"total_pnl"`
	TodayPnl           float64   `json:"today_pnl"`
	Holdings           []Holding `json:"holdings"`
}

// AccountHoldings reconstructs the open positions for every bot linked to an
// account. A symbol whose live price cannot be fetched is marked at its
// average entry price, so it shows zero unrealized P&L instead of failing
// the whole view.
func (e *Engine) AccountHoldings(ctx context.Context, accountID uint) ([]Holding, error) {
	var account models.ExchangeAccount
	if err := e.db.First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, accountID)
		}
		return nil, fmt.Errorf("could not load account %d: %w", accountID, err)
	}

	var trades []models.Trade
	err := e.db.
		Joins("JOIN bot_configs ON bot_configs.id = trades.bot_id").
		Where("bot_configs.account_id = ? AND trades.side = ? AND trades.status = ? AND trades.exit_time IS NULL",
			accountID, models.OrderSideBuy, models.OrderStatusFilled).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("could not load open trades for account %d: %w", accountID, err)
	}

	client := e.clientFor(&account)
	return e.aggregateHoldings(ctx, trades, client.GetTickerPrice), nil
}

// aggregateHoldings groups open BUY lots by symbol. The average entry price
// is a plain mean over lots, not quantity-weighted, matching the system this
// replaces.
func (e *Engine) aggregateHoldings(ctx context.Context, trades []models.Trade, priceOf func(context.Context, string) (float64, error)) []Holding {
	type bucket struct {
		quantity float64
		entrySum float64
		lots     int
	}
	buckets := make(map[string]*bucket)
	for _, t := range trades {
		b, ok := buckets[t.Symbol]
		if !ok {
			b = &bucket{}
			buckets[t.Symbol] = b
		}
		b.quantity += t.Quantity
		b.entrySum += t.EntryPrice
		b.lots++
	}

	symbols := make([]string, 0, len(buckets))
	for s := range buckets {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	holdings := make([]Holding, 0, len(symbols))
	for _, symbol := range symbols {
		b := buckets[symbol]
		avgEntry := b.entrySum / float64(b.lots)

		currentPrice, err := priceOf(ctx, symbol)
		if err != nil || currentPrice <= 0 {
			e.logger.Warn("Could not fetch price for holding, marking at entry",
				zap.String("symbol", symbol), zap.Error(err))
			currentPrice = avgEntry
		}

		h := Holding{
			Symbol:        symbol,
			Quantity:      b.quantity,
			AvgEntryPrice: avgEntry,
			CurrentPrice:  currentPrice,
			CurrentValue:  b.quantity * currentPrice,
			CostBasis:     b.quantity * avgEntry,
		}
		h.UnrealizedPnl = h.CurrentValue - h.CostBasis
		if h.CostBasis != 0 {
			h.PnlPercent = h.UnrealizedPnl / h.CostBasis * 100
		}
		holdings = append(holdings, h)
	}
	return holdings
}

// PortfolioSummaryFor builds the cross-account summary for one user. The
// full current unrealized P&L is counted inside today's figure regardless of
// when a position was opened, matching the system this replaces.
func (e *Engine) PortfolioSummaryFor(ctx context.Context, userID uint) (*PortfolioSummary, error) {
	var accounts []models.ExchangeAccount
	if err := e.db.Where("user_id = ?", userID).Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("could not load accounts for user %d: %w", userID, err)
	}

	summary := &PortfolioSummary{Holdings: []Holding{}}
	for i := range accounts {
		summary.TotalUSDTBalance += accounts[i].BalanceUSDT

		holdings, err := e.AccountHoldings(ctx, accounts[i].ID)
		if err != nil {
			return nil, err
		}
		for _, h := range holdings {
			summary.Holdings = append(summary.Holdings, h)
			summary.TotalHoldingsValue += h.CurrentValue
			summary.UnrealizedPnl += h.UnrealizedPnl
		}
	}

	var trades []models.Trade
	if err := e.db.Where("user_id = ? AND status = ?", userID, models.OrderStatusFilled).
		Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("could not load trades for user %d: %w", userID, err)
	}

	todayStart := time.Now().UTC().Truncate(24 * time.Hour)
	var buyTotal, sellTotal, todayBuy, todaySell float64
	for _, t := range trades {
		switch t.Side {
		case models.OrderSideBuy:
			buyTotal += t.AmountUSDT
			if !t.EntryTime.Before(todayStart) {
				todayBuy += t.AmountUSDT
			}
		case models.OrderSideSell:
			sellTotal += t.AmountUSDT
			if !t.EntryTime.Before(todayStart) {
				todaySell += t.AmountUSDT
			}
		}
	}

	summary.RealizedPnl = sellTotal - buyTotal
	summary.TotalPnl = summary.RealizedPnl + summary.UnrealizedPnl
	summary.TodayPnl = (todaySell - todayBuy) + summary.UnrealizedPnl
	return summary, nil
}
