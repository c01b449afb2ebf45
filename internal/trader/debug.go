package trader

import (
	"context"
	"errors"
	"fmt"

	"bot-trading-go/internal/models"
	"gorm.io/gorm"
)

// DebugSignal is the dry evaluation of a bot's strategy: what signal it
// would generate right now, without touching any state.
type DebugSignal struct {
	BotID        uint    `json:"bot_id"`
	BotName      string  `json:"bot_name"`
	Symbol       string  `json:"symbol"`
	Strategy     string  `json:"strategy"`
	CurrentPrice float64 `json:"current_price"`
	Signal       Signal  `json:"signal"`
}

// EvaluateSignal computes the signal a bot would act on right now. An
// unimplemented strategy variant comes back as ErrStrategyUnavailable.
func (e *Engine) EvaluateSignal(ctx context.Context, botID uint) (*DebugSignal, error) {
	var bot models.BotConfig
	if err := e.db.First(&bot, botID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrBotNotFound, botID)
		}
		return nil, fmt.Errorf("could not load bot %d: %w", botID, err)
	}

	var account models.ExchangeAccount
	if err := e.db.First(&account, bot.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, bot.AccountID)
		}
		return nil, fmt.Errorf("could not load account %d: %w", bot.AccountID, err)
	}

	strategy, err := e.registry.Get(bot.Strategy)
	if err != nil {
		return nil, err
	}

	client := e.clientFor(&account)
	candles, err := client.GetKlines(ctx, bot.Symbol, e.cfg.Trading.CandleInterval, e.cfg.Trading.CandleLimit)
	if err != nil {
		return nil, fmt.Errorf("could not fetch candles for %s: %w", bot.Symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candle data available for %s", bot.Symbol)
	}

	return &DebugSignal{
		BotID:        bot.ID,
		BotName:      bot.Name,
		Symbol:       bot.Symbol,
		Strategy:     bot.Strategy,
		CurrentPrice: candles[len(candles)-1].Close,
		Signal:       strategy.GenerateSignal(candles, bot.ConfigParams),
	}, nil
}
