package trader

import (
	"fmt"

	"bot-trading-go/internal/binance"
	"bot-trading-go/internal/models"
)

// SignalKind is the outcome of a strategy evaluation.
type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"
	SignalSell SignalKind = "SELL"
	SignalHold SignalKind = "HOLD"
)

// Signal is the ephemeral result of evaluating a candle series. It is never
// persisted; the reason string ends up on the trade record as the entry
// annotation.
type Signal struct {
	Kind       SignalKind         `json:"signal"`
	Reason     string             `json:"reason"`
	EntryPrice float64            `json:"entry_price,omitempty"`
	StopLoss   float64            `json:"stop_loss,omitempty"`
	TakeProfit float64            `json:"take_profit,omitempty"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Strategy turns a price series into a Signal and decides when an open
// position should be closed.
type Strategy interface {
	// Name returns the variant tag the strategy is registered under.
	Name() string

	// GenerateSignal evaluates the candle series. params carries the per-bot
	// overrides of the strategy's tunables.
	GenerateSignal(candles []binance.Candle, params models.JSONMap) Signal

	// ShouldExitPosition decides whether an open position should be closed
	// at the current price, returning the exit reason when it should.
	ShouldExitPosition(entryPrice, currentPrice, stopLoss, takeProfit float64) (bool, string)
}

// Registry resolves strategy variant tags to implementations. Unregistered
// tags resolve to ErrStrategyUnavailable, never to a default.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates a registry with all implemented strategies registered.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(&MeanReversionStrategy{})
	return r
}

// Register adds a strategy under its own name.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get resolves a variant tag.
func (r *Registry) Get(tag string) (Strategy, error) {
	s, ok := r.strategies[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStrategyUnavailable, tag)
	}
	return s, nil
}
