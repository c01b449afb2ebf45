package trader

import (
	"errors"
	"fmt"

	"bot-trading-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BotManager owns the bot lifecycle state machine. Every status transition
// goes through here; the only transition it does not issue is the
// orchestrator's ACTIVE -> ERROR fault.
type BotManager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewBotManager creates a bot lifecycle manager.
func NewBotManager(db *gorm.DB, logger *zap.Logger) *BotManager {
	return &BotManager{db: db, logger: logger}
}

// CreateBot registers a new bot in the PAUSED state.
func (m *BotManager) CreateBot(bot *models.BotConfig) error {
	var account models.ExchangeAccount
	if err := m.db.First(&account, bot.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: id %d", ErrAccountNotFound, bot.AccountID)
		}
		return fmt.Errorf("could not load account %d: %w", bot.AccountID, err)
	}

	bot.Status = models.BotStatusPaused
	if err := m.db.Create(bot).Error; err != nil {
		return fmt.Errorf("could not create bot: %w", err)
	}
	m.logger.Info("Bot created", zap.Uint("bot_id", bot.ID), zap.String("name", bot.Name))
	return nil
}

// StartBot moves a bot to ACTIVE from any state. This is also the only way
// out of ERROR.
func (m *BotManager) StartBot(botID uint) error {
	return m.transition(botID, models.BotStatusActive)
}

// PauseBot moves a bot to PAUSED from any state.
func (m *BotManager) PauseBot(botID uint) error {
	return m.transition(botID, models.BotStatusPaused)
}

// DeleteBot removes a bot. An ACTIVE bot must be paused first.
func (m *BotManager) DeleteBot(botID uint) error {
	bot, err := m.load(botID)
	if err != nil {
		return err
	}
	if bot.Status == models.BotStatusActive {
		return fmt.Errorf("%w: cannot delete an active bot, pause it first", ErrInvalidStateTransition)
	}
	if err := m.db.Delete(bot).Error; err != nil {
		return fmt.Errorf("could not delete bot %d: %w", botID, err)
	}
	m.logger.Info("Bot deleted", zap.Uint("bot_id", botID))
	return nil
}

// BotUpdate carries the mutable bot settings. Nil fields are left unchanged.
// Status is not updatable here; transitions go through StartBot and PauseBot.
type BotUpdate struct {
	Name              *string        `json:"name"`
	TradeAmountUSDT   *float64       `json:"trade_amount_usdt"`
	StopLossPercent   *float64       `json:"stop_loss_percent"`
	TakeProfitPercent *float64       `json:"take_profit_percent"`
	ConfigParams      models.JSONMap `json:"config_params"`
}

// UpdateBot applies a partial settings update and returns the fresh record.
// Stats and status are untouched, so a bot keeps its history across tuning.
func (m *BotManager) UpdateBot(botID uint, upd BotUpdate) (*models.BotConfig, error) {
	bot, err := m.load(botID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.TradeAmountUSDT != nil {
		updates["trade_amount_usdt"] = *upd.TradeAmountUSDT
	}
	if upd.StopLossPercent != nil {
		updates["stop_loss_percent"] = *upd.StopLossPercent
	}
	if upd.TakeProfitPercent != nil {
		updates["take_profit_percent"] = *upd.TakeProfitPercent
	}
	if upd.ConfigParams != nil {
		updates["config_params"] = upd.ConfigParams
	}
	if len(updates) == 0 {
		return bot, nil
	}

	if err := m.db.Model(bot).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("could not update bot %d: %w", botID, err)
	}
	m.logger.Info("Bot settings updated", zap.Uint("bot_id", botID))
	return m.load(botID)
}

// ListBots returns all bots, optionally scoped to one user.
func (m *BotManager) ListBots(userID uint) ([]models.BotConfig, error) {
	var bots []models.BotConfig
	q := m.db.Order("id")
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Find(&bots).Error; err != nil {
		return nil, fmt.Errorf("could not list bots: %w", err)
	}
	return bots, nil
}

// GetBot returns one bot by id.
func (m *BotManager) GetBot(botID uint) (*models.BotConfig, error) {
	return m.load(botID)
}

func (m *BotManager) transition(botID uint, to models.BotStatus) error {
	bot, err := m.load(botID)
	if err != nil {
		return err
	}
	if bot.Status == to {
		return nil
	}
	if err := m.db.Model(bot).Update("status", to).Error; err != nil {
		return fmt.Errorf("could not transition bot %d to %s: %w", botID, to, err)
	}
	m.logger.Info("Bot state transition",
		zap.Uint("bot_id", botID),
		zap.String("from", string(bot.Status)),
		zap.String("to", string(to)))
	return nil
}

func (m *BotManager) load(botID uint) (*models.BotConfig, error) {
	var bot models.BotConfig
	if err := m.db.First(&bot, botID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrBotNotFound, botID)
		}
		return nil, fmt.Errorf("could not load bot %d: %w", botID, err)
	}
	return &bot, nil
}
