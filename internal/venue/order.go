package venue

import (
	"time"

	"github.com/shopspring/decimal"

	"paperdesk/internal/schema"
)

// OrderType selects the fill algorithm.
type OrderType uint8

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStopMarket
	OrderTypeStopLimit
	_orderTypeEnd
)

func (t OrderType) IsAvailable() bool {
	return t > OrderTypeUnknown && t < _orderTypeEnd
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStopMarket:
		return "STOP_MARKET"
	case OrderTypeStopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

func (t OrderType) needsPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

func (t OrderType) needsStop() bool {
	return t == OrderTypeStopMarket || t == OrderTypeStopLimit
}

// TimeInForce controls how long an order may rest. Unknown is treated as GTC.
type TimeInForce uint8

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	_timeInForceEnd
)

func (t TimeInForce) String() string {
	switch t {
	case TimeInForceGTC:
		return "GTC"
	case TimeInForceIOC:
		return "IOC"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus tracks the lifecycle of an order.
type OrderStatus uint8

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusPending
	OrderStatusFilled
	OrderStatusPartiallyFilled
	OrderStatusCancelled
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "pending"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusPartiallyFilled:
		return "partially_filled"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether an order in status s can still change.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// OrderRequest is the caller's description of an order to place.
type OrderRequest struct {
	Symbol      string
	Side        schema.Side
	Type        OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	StopPrice   decimal.Decimal
	TimeInForce TimeInForce
}

// Order is the venue's record of a placed order.
type Order struct {
	ID             string
	Symbol         string
	Side           schema.Side
	Type           OrderType
	Quantity       decimal.Decimal
	Price          decimal.Decimal
	StopPrice      decimal.Decimal
	TimeInForce    TimeInForce
	Status         OrderStatus
	FilledQuantity decimal.Decimal
	AveragePrice   decimal.Decimal
	Fee            decimal.Decimal
	FeeBps         decimal.Decimal
	// Triggered latches once a stop condition has been observed.
	Triggered   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt time.Time
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Fill is an immutable record of one match.
type Fill struct {
	ID        string
	OrderID   string
	Symbol    string
	Side      schema.Side
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Fee       decimal.Decimal
	FeeBps    decimal.Decimal
	Timestamp time.Time
}
