package trader

import "errors"

// Sentinel errors surfaced by manual operations and the debug endpoints.
// The periodic cycle never escalates per-bot errors to its caller.
var (
	ErrBotNotFound            = errors.New("bot not found")
	ErrTradeNotFound          = errors.New("trade not found")
	ErrAccountNotFound        = errors.New("exchange account not found")
	ErrAccountInactive        = errors.New("exchange account is not active")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStrategyUnavailable    = errors.New("strategy not available")
	ErrInsufficientHoldings   = errors.New("insufficient holdings")
)
