package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bot-trading-go/internal/binance"
	"bot-trading-go/internal/config"
	"bot-trading-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ClientFactory builds an exchange client for one account. The engine caches
// the result per account so a paper account keeps its virtual balance across
// cycles.
type ClientFactory func(account *models.ExchangeAccount) binance.Client

// Engine is the tick orchestrator. Once per interval it walks every ACTIVE
// bot, decides entry or exit, executes the order and reconciles the ledger
// and bot stats. A failing bot never aborts the rest of the cycle.
type Engine struct {
	logger    *zap.Logger
	cfg       *config.Config
	db        *gorm.DB
	registry  *Registry
	newClient ClientFactory
	StartTime time.Time

	cycleMu sync.Mutex // one cycle at a time, scheduled or on-demand

	clientMu sync.Mutex
	clients  map[uint]binance.Client

	lockMu       sync.Mutex
	accountLocks map[uint]*sync.Mutex
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, db *gorm.DB, registry *Registry, factory ClientFactory) *Engine {
	return &Engine{
		logger:       logger,
		cfg:          cfg,
		db:           db,
		registry:     registry,
		newClient:    factory,
		StartTime:    time.Now(),
		clients:      make(map[uint]binance.Client),
		accountLocks: make(map[uint]*sync.Mutex),
	}
}

// Run starts the periodic cycle loop. An in-flight cycle always finishes;
// cancellation only stops further ticks.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting trading cycle loop", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-ticker.C:
			e.ExecuteCycle(context.Background())
		}
	}
}

// ExecuteCycle processes every ACTIVE bot once, in sequence. Per-bot errors
// are absorbed here: a faulted bot moves to ERROR and keeps its previous
// last_run, and the cycle continues. Nothing is reported to the caller.
func (e *Engine) ExecuteCycle(ctx context.Context) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	e.logger.Info("Starting trading cycle")

	var bots []models.BotConfig
	if err := e.db.Where("status = ?", models.BotStatusActive).Find(&bots).Error; err != nil {
		e.logger.Error("Could not load active bots", zap.Error(err))
		return
	}
	e.logger.Info("Found active bots", zap.Int("count", len(bots)))

	for i := range bots {
		bot := &bots[i]
		err := e.superviseBot(ctx, bot)

		switch {
		case err == nil:
			now := time.Now().UTC()
			if dbErr := e.db.Model(bot).Update("last_run", now).Error; dbErr != nil {
				e.logger.Error("Failed to update bot last_run",
					zap.Uint("bot_id", bot.ID), zap.Error(dbErr))
			}
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			// Abandoned for this cycle only. The stale last_run is the
			// operator's hint that the bot needs attention.
			e.logger.Warn("Bot processing interrupted, skipping until next cycle",
				zap.Uint("bot_id", bot.ID), zap.String("symbol", bot.Symbol), zap.Error(err))
		case errors.Is(err, ErrStrategyUnavailable):
			e.logger.Error("Bot has an unavailable strategy, configuration error",
				zap.Uint("bot_id", bot.ID), zap.String("strategy", bot.Strategy))
		default:
			e.logger.Error("Error processing bot, moving to ERROR",
				zap.Uint("bot_id", bot.ID), zap.String("name", bot.Name), zap.Error(err))
			if dbErr := e.db.Model(bot).Update("status", models.BotStatusError).Error; dbErr != nil {
				e.logger.Error("Failed to set bot status to ERROR",
					zap.Uint("bot_id", bot.ID), zap.Error(dbErr))
			}
		}
	}

	e.logger.Info("Trading cycle completed")
}

// ProcessBot runs the per-bot procedure for a single bot on demand. Unlike
// the cycle it surfaces the outcome to the caller. Other bots are untouched.
func (e *Engine) ProcessBot(ctx context.Context, botID uint) error {
	var bot models.BotConfig
	if err := e.db.First(&bot, botID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %d", ErrBotNotFound, botID)
		}
		return fmt.Errorf("could not load bot %d: %w", botID, err)
	}
	if bot.Status != models.BotStatusActive {
		return fmt.Errorf("%w: bot %d is %s, not ACTIVE", ErrInvalidStateTransition, botID, bot.Status)
	}

	if err := e.superviseBot(ctx, &bot); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) &&
			!errors.Is(err, ErrStrategyUnavailable) {
			if dbErr := e.db.Model(&bot).Update("status", models.BotStatusError).Error; dbErr != nil {
				e.logger.Error("Failed to set bot status to ERROR",
					zap.Uint("bot_id", bot.ID), zap.Error(dbErr))
			}
		}
		return err
	}

	now := time.Now().UTC()
	return e.db.Model(&bot).Update("last_run", now).Error
}

// superviseBot is the isolating boundary around one bot's processing: a
// bounded deadline, panic recovery, and error capture.
func (e *Engine) superviseBot(ctx context.Context, bot *models.BotConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing bot %d: %v", bot.ID, r)
		}
	}()

	botCtx := ctx
	if timeout := time.Duration(e.cfg.Trading.BotTimeout) * time.Second; timeout > 0 {
		var cancel context.CancelFunc
		botCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return e.processBot(botCtx, bot)
}

// processBot runs the decision procedure for one bot: entry check when flat,
// exit check when a position is open.
func (e *Engine) processBot(ctx context.Context, bot *models.BotConfig) error {
	l := e.logger.With(
		zap.Uint("bot_id", bot.ID),
		zap.String("name", bot.Name),
		zap.String("symbol", bot.Symbol),
	)
	l.Info("Processing bot")

	var account models.ExchangeAccount
	if err := e.db.First(&account, bot.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("Exchange account not found, skipping bot")
			return nil
		}
		return fmt.Errorf("could not load account %d: %w", bot.AccountID, err)
	}
	if !account.IsActive {
		l.Warn("Exchange account not active, skipping bot")
		return nil
	}

	client := e.clientFor(&account)

	var openTrade models.Trade
	err := e.db.Where("bot_id = ? AND status = ? AND exit_price IS NULL",
		bot.ID, models.OrderStatusFilled).First(&openTrade).Error
	switch {
	case err == nil:
		return e.manageOpenPosition(ctx, l, client, bot, &account, &openTrade)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return e.checkEntrySignal(ctx, l, client, bot, &account)
	default:
		return fmt.Errorf("could not query open trade for bot %d: %w", bot.ID, err)
	}
}

// checkEntrySignal fetches recent candles, evaluates the strategy and enters
// on a BUY signal. Missing market data is a benign no-op.
func (e *Engine) checkEntrySignal(ctx context.Context, l *zap.Logger, client binance.Client, bot *models.BotConfig, account *models.ExchangeAccount) error {
	candles, err := client.GetKlines(ctx, bot.Symbol, e.cfg.Trading.CandleInterval, e.cfg.Trading.CandleLimit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		l.Warn("Could not fetch candles", zap.Error(err))
		return nil
	}
	if len(candles) == 0 {
		l.Warn("No candle data available")
		return nil
	}

	strategy, err := e.registry.Get(bot.Strategy)
	if err != nil {
		return err
	}

	signal := strategy.GenerateSignal(candles, bot.ConfigParams)
	l.Info("Signal generated",
		zap.String("signal", string(signal.Kind)),
		zap.String("reason", signal.Reason))

	if signal.Kind != SignalBuy {
		return nil
	}
	return e.executeBuyOrder(ctx, l, client, bot, account, signal)
}

// executeBuyOrder submits the entry order and, on a fill, records the trade
// and increments the bot's trade count atomically.
func (e *Engine) executeBuyOrder(ctx context.Context, l *zap.Logger, client binance.Client, bot *models.BotConfig, account *models.ExchangeAccount, signal Signal) error {
	if signal.EntryPrice <= 0 {
		l.Warn("Signal has no usable entry price, skipping entry")
		return nil
	}
	quantity := bot.TradeAmountUSDT / signal.EntryPrice

	l.Info("Executing BUY order",
		zap.Float64("quantity", quantity),
		zap.Float64("entry_price", signal.EntryPrice))

	mu := e.accountLock(account.ID)
	mu.Lock()
	defer mu.Unlock()

	order, err := client.CreateOrder(ctx, bot.Symbol, binance.OrderSideBuy, quantity)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		// Order failure abandons this attempt; nothing is written.
		l.Error("BUY order failed", zap.Error(err))
		return nil
	}
	if !order.Filled() {
		l.Warn("BUY order not filled", zap.String("status", order.Status))
		return nil
	}

	entryPrice := order.FillPrice
	if entryPrice <= 0 {
		entryPrice = signal.EntryPrice
	}
	filledQty := order.ExecutedQty
	if filledQty <= 0 {
		filledQty = quantity
	}

	trade := models.Trade{
		UserID:         bot.UserID,
		BotID:          bot.ID,
		Symbol:         bot.Symbol,
		Side:           models.OrderSideBuy,
		EntryPrice:     entryPrice,
		Quantity:       filledQty,
		AmountUSDT:     bot.TradeAmountUSDT,
		Status:         models.OrderStatusFilled,
		OrderID:        order.OrderID,
		StrategySignal: signal.Reason,
		EntryTime:      time.Now().UTC(),
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&trade).Error; err != nil {
			return err
		}
		return tx.Model(bot).Update("total_trades", gorm.Expr("total_trades + 1")).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record BUY fill for bot %d: %w", bot.ID, err)
	}

	l.Info("BUY order executed",
		zap.Uint("trade_id", trade.ID),
		zap.Float64("fill_price", entryPrice),
		zap.Float64("quantity", filledQty))
	return nil
}

// manageOpenPosition checks the open trade against its stop and target and
// exits when the strategy says so. A missing price is a benign no-op.
func (e *Engine) manageOpenPosition(ctx context.Context, l *zap.Logger, client binance.Client, bot *models.BotConfig, account *models.ExchangeAccount, trade *models.Trade) error {
	currentPrice, err := client.GetTickerPrice(ctx, bot.Symbol)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		l.Warn("Could not get current price", zap.Error(err))
		return nil
	}

	stopLoss := trade.EntryPrice * (1 - bot.StopLossPercent/100)
	takeProfit := trade.EntryPrice * (1 + bot.TakeProfitPercent/100)

	strategy, err := e.registry.Get(bot.Strategy)
	if err != nil {
		return err
	}

	shouldExit, exitReason := strategy.ShouldExitPosition(trade.EntryPrice, currentPrice, stopLoss, takeProfit)
	if !shouldExit {
		l.Debug("Holding position",
			zap.Float64("current_price", currentPrice),
			zap.Float64("stop_loss", stopLoss),
			zap.Float64("take_profit", takeProfit))
		return nil
	}

	return e.executeSellOrder(ctx, l, client, bot, account, trade, currentPrice, exitReason)
}

// executeSellOrder closes the position and settles P&L and bot stats in one
// transaction.
func (e *Engine) executeSellOrder(ctx context.Context, l *zap.Logger, client binance.Client, bot *models.BotConfig, account *models.ExchangeAccount, trade *models.Trade, currentPrice float64, exitReason string) error {
	l.Info("Executing SELL order",
		zap.Float64("quantity", trade.Quantity),
		zap.Float64("current_price", currentPrice),
		zap.String("exit_reason", exitReason))

	mu := e.accountLock(account.ID)
	mu.Lock()
	defer mu.Unlock()

	order, err := client.CreateOrder(ctx, bot.Symbol, binance.OrderSideSell, trade.Quantity)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		l.Error("SELL order failed", zap.Error(err))
		return nil
	}
	if !order.Filled() {
		l.Warn("SELL order not filled", zap.String("status", order.Status))
		return nil
	}

	exitPrice := order.FillPrice
	if exitPrice <= 0 {
		exitPrice = currentPrice
	}

	profitLossUSDT := (exitPrice - trade.EntryPrice) * trade.Quantity
	profitLossPercent := (exitPrice - trade.EntryPrice) / trade.EntryPrice * 100
	now := time.Now().UTC()

	err = e.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"exit_price":          exitPrice,
			"exit_time":           now,
			"exit_reason":         exitReason,
			"profit_loss_usdt":    profitLossUSDT,
			"profit_loss_percent": profitLossPercent,
		}
		if err := tx.Model(trade).Updates(updates).Error; err != nil {
			return err
		}

		if err := tx.Model(bot).Update("total_profit_usdt",
			gorm.Expr("total_profit_usdt + ?", profitLossUSDT)).Error; err != nil {
			return err
		}

		// The win rate is only recomputed when the closing trade is
		// profitable, and the denominator counts still-open trades when the
		// basis is "total". Both quirks come from the system being replaced;
		// "closed" selects the corrected denominator.
		if profitLossUSDT > 0 {
			var wins int64
			if err := tx.Model(&models.Trade{}).
				Where("bot_id = ? AND profit_loss_usdt > 0 AND exit_price IS NOT NULL", bot.ID).
				Count(&wins).Error; err != nil {
				return err
			}

			var denominator int64
			if e.cfg.Trading.WinRateBasis == "closed" {
				if err := tx.Model(&models.Trade{}).
					Where("bot_id = ? AND exit_price IS NOT NULL", bot.ID).
					Count(&denominator).Error; err != nil {
					return err
				}
			} else {
				var fresh models.BotConfig
				if err := tx.First(&fresh, bot.ID).Error; err != nil {
					return err
				}
				denominator = int64(fresh.TotalTrades)
			}

			winRate := 0.0
			if denominator > 0 {
				winRate = float64(wins) / float64(denominator) * 100
			}
			if err := tx.Model(bot).Update("win_rate", winRate).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record SELL fill for bot %d: %w", bot.ID, err)
	}

	l.Info("SELL order executed",
		zap.Float64("exit_price", exitPrice),
		zap.Float64("profit_loss_usdt", profitLossUSDT),
		zap.Float64("profit_loss_percent", profitLossPercent))
	return nil
}

// clientFor returns the cached exchange client for an account, building it
// on first use.
func (e *Engine) clientFor(account *models.ExchangeAccount) binance.Client {
	e.clientMu.Lock()
	defer e.clientMu.Unlock()

	if c, ok := e.clients[account.ID]; ok {
		return c
	}
	c := e.newClient(account)
	e.clients[account.ID] = c
	return c
}

// accountLock returns the mutex serializing balance-affecting work for one
// account, shared between the cycle and manual trades.
func (e *Engine) accountLock(accountID uint) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()

	mu, ok := e.accountLocks[accountID]
	if !ok {
		mu = &sync.Mutex{}
		e.accountLocks[accountID] = mu
	}
	return mu
}
