package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bot-trading-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManualTradeRequest is an on-demand market order outside any bot. A BUY is
// sized in quote currency; a SELL names the base quantity to liquidate.
type ManualTradeRequest struct {
	UserID     uint             `json:"user_id"`
	AccountID  uint             `json:"account_id"`
	Symbol     string           `json:"symbol"`
	Side       models.OrderSide `json:"side"`
	AmountUSDT float64          `json:"amount_usdt,omitempty"`
	Quantity   float64          `json:"quantity,omitempty"`
}

// ExecuteManualTrade places a manual market order. It shares the per-account
// lock with the cycle so concurrent balance updates cannot be lost. A SELL
// exceeding the holdings reconstructed from the trade ledger is rejected
// before any order is submitted.
func (e *Engine) ExecuteManualTrade(ctx context.Context, req ManualTradeRequest) (*models.Trade, error) {
	if req.Symbol == "" {
		return nil, errors.New("symbol is required")
	}
	if req.Side != models.OrderSideBuy && req.Side != models.OrderSideSell {
		return nil, fmt.Errorf("invalid side %q", req.Side)
	}

	var account models.ExchangeAccount
	if err := e.db.First(&account, req.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, req.AccountID)
		}
		return nil, fmt.Errorf("could not load account %d: %w", req.AccountID, err)
	}
	if !account.IsActive {
		return nil, fmt.Errorf("%w: id %d", ErrAccountInactive, req.AccountID)
	}

	client := e.clientFor(&account)

	mu := e.accountLock(account.ID)
	mu.Lock()
	defer mu.Unlock()

	var quantity float64
	switch req.Side {
	case models.OrderSideBuy:
		if req.AmountUSDT <= 0 {
			return nil, errors.New("amount_usdt must be positive for a BUY")
		}
		price, err := client.GetTickerPrice(ctx, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("could not get current price for %s: %w", req.Symbol, err)
		}
		quantity = req.AmountUSDT / price
	case models.OrderSideSell:
		if req.Quantity <= 0 {
			return nil, errors.New("quantity must be positive for a SELL")
		}
		available, err := e.availableQuantity(req.UserID, req.Symbol)
		if err != nil {
			return nil, err
		}
		if req.Quantity > available {
			return nil, fmt.Errorf("%w: requested %.8f %s, available %.8f",
				ErrInsufficientHoldings, req.Quantity, req.Symbol, available)
		}
		quantity = req.Quantity
	}

	order, err := client.CreateOrder(ctx, req.Symbol, string(req.Side), quantity)
	if err != nil {
		return nil, fmt.Errorf("order failed: %w", err)
	}
	if !order.Filled() {
		return nil, fmt.Errorf("order not filled, status %s", order.Status)
	}

	fillPrice := order.FillPrice
	filledQty := order.ExecutedQty
	if filledQty <= 0 {
		filledQty = quantity
	}
	amount := req.AmountUSDT
	if req.Side == models.OrderSideSell || amount <= 0 {
		amount = fillPrice * filledQty
	}

	trade := &models.Trade{
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		EntryPrice: fillPrice,
		Quantity:   filledQty,
		AmountUSDT: amount,
		Status:     models.OrderStatusFilled,
		OrderID:    order.OrderID,
		EntryTime:  time.Now().UTC(),
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(trade).Error; err != nil {
			return err
		}
		delta := amount
		if req.Side == models.OrderSideBuy {
			delta = -amount
		}
		return tx.Model(&account).Update("balance_usdt",
			gorm.Expr("balance_usdt + ?", delta)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record manual trade: %w", err)
	}

	e.logger.Info("Manual trade executed",
		zap.Uint("user_id", req.UserID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("quantity", filledQty),
		zap.Float64("fill_price", fillPrice),
		zap.Bool("paper", client.IsPaper()))
	return trade, nil
}

// availableQuantity reconstructs how much of a symbol the user still holds
// from the filled BUY minus SELL history.
func (e *Engine) availableQuantity(userID uint, symbol string) (float64, error) {
	var rows []models.Trade
	err := e.db.Where("user_id = ? AND symbol = ? AND status = ?",
		userID, symbol, models.OrderStatusFilled).Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("could not reconstruct holdings for %s: %w", symbol, err)
	}

	// Closed BUY rows carry their own exit; their quantity already left.
	available := 0.0
	for _, t := range rows {
		switch t.Side {
		case models.OrderSideBuy:
			if t.ExitTime == nil {
				available += t.Quantity
			}
		case models.OrderSideSell:
			available -= t.Quantity
		}
	}
	return available, nil
}
