package exception

import "errors"

var (
	ErrOrderSymbolNotAllowed   = errors.New("order: symbol not allowed")
	ErrOrderInvalidSide        = errors.New("order: invalid side")
	ErrOrderInvalidType        = errors.New("order: invalid type")
	ErrOrderInvalidTimeInForce = errors.New("order: invalid time in force")
	ErrOrderInvalidQuantity    = errors.New("order: quantity must be positive")
	ErrOrderPriceRequired      = errors.New("order: limit price required")
	ErrOrderStopPriceRequired  = errors.New("order: stop price required")
	ErrOrderLeverageExceeded   = errors.New("order: leverage exceeds limit")
	ErrOrderPositionLimit      = errors.New("order: position size exceeds limit")
	ErrOrderDailyLossLimit     = errors.New("order: daily loss limit reached")
	ErrOrderNoPosition         = errors.New("order: no open position")
	ErrOrderExecutorNotRunning = errors.New("order: executor not running")
	ErrOrderUnsupportedAction  = errors.New("order: unsupported action")
)
