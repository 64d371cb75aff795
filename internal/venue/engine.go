package venue

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"paperdesk/internal/ledger"
	"paperdesk/internal/schema"
	"paperdesk/pkg/exception"
)

var bpsDivisor = decimal.NewFromInt(10000)

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine is a single-venue paper matching engine. Every mutation of orders,
// fills and the ledger happens under one lock.
type Engine struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	risk     RiskConfig
	book     *ledger.Ledger
	orders   map[string]*Order
	orderIDs []string
	fills    []Fill
	price    decimal.Decimal
	orderSeq uint64
	fillSeq  uint64
	rng      *rand.Rand

	feedMu     sync.Mutex
	feedCancel context.CancelFunc
	feedDone   chan struct{}
}

// NewEngine creates an engine from a validated config.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Feed.Seed == 0 {
		cfg.Feed.Seed = time.Now().UTC().UnixNano()
	}
	e := &Engine{
		cfg:  cfg,
		now:  time.Now,
		book: ledger.New(cfg.InitialBalance),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reset()
	return e, nil
}

// Reset restores the initial balance and price and forgets every order,
// fill and position.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Engine) reset() {
	e.risk = e.cfg.Risk.clone()
	e.book.Reset(e.now())
	e.orders = make(map[string]*Order)
	e.orderIDs = nil
	e.fills = nil
	e.price = e.cfg.Feed.StartPrice
	e.orderSeq = 0
	e.fillSeq = 0
	e.rng = rand.New(rand.NewSource(e.cfg.Feed.Seed))
	e.book.Mark(e.price, e.now())
}

// PlaceOrder validates req, records the order and attempts an immediate
// fill. Refused requests return a *ValidationError and create nothing.
func (e *Engine) PlaceOrder(req OrderRequest) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	e.book.Roll(now)

	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.TimeInForce == TimeInForceUnknown {
		req.TimeInForce = TimeInForceGTC
	}
	if err := e.validate(req); err != nil {
		return Order{}, err
	}

	e.orderSeq++
	o := &Order{
		ID:          fmt.Sprintf("order_%d", e.orderSeq),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    req.Quantity,
		Price:       req.Price,
		StopPrice:   req.StopPrice,
		TimeInForce: req.TimeInForce,
		Status:      OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.orders[o.ID] = o
	e.orderIDs = append(e.orderIDs, o.ID)

	e.match(o, now)

	if o.TimeInForce == TimeInForceIOC {
		switch o.Status {
		case OrderStatusPending:
			o.Status = OrderStatusCancelled
			o.CancelledAt = now
			o.UpdatedAt = now
		case OrderStatusPartiallyFilled:
			o.CancelledAt = now
			o.UpdatedAt = now
		}
	}
	return *o, nil
}

func (e *Engine) validate(req OrderRequest) error {
	if !e.risk.Allows(req.Symbol) {
		return invalid("symbol", exception.ErrOrderSymbolNotAllowed, "%s not in %v", req.Symbol, e.risk.SymbolAllowlist)
	}
	if !req.Side.IsAvailable() {
		return invalid("side", exception.ErrOrderInvalidSide, "got %d", req.Side)
	}
	if !req.Type.IsAvailable() {
		return invalid("type", exception.ErrOrderInvalidType, "got %d", req.Type)
	}
	if req.TimeInForce >= _timeInForceEnd {
		return invalid("timeInForce", exception.ErrOrderInvalidTimeInForce, "got %d", req.TimeInForce)
	}
	if !req.Quantity.IsPositive() {
		return invalid("quantity", exception.ErrOrderInvalidQuantity, "got %s", req.Quantity)
	}
	if req.Type.needsPrice() && !req.Price.IsPositive() {
		return invalid("price", exception.ErrOrderPriceRequired, "%s order", req.Type)
	}
	if req.Type.needsStop() && !req.StopPrice.IsPositive() {
		return invalid("stopPrice", exception.ErrOrderStopPriceRequired, "%s order", req.Type)
	}

	balance := e.book.Account().Balance
	if e.risk.MaxLeverage.IsPositive() && balance.IsPositive() {
		leverage := req.Quantity.Mul(e.referencePrice(req)).Div(balance)
		if leverage.GreaterThan(e.risk.MaxLeverage) {
			return invalid("quantity", exception.ErrOrderLeverageExceeded, "leverage %s > %s", leverage.StringFixed(4), e.risk.MaxLeverage)
		}
	}

	if e.risk.MaxPositionSize.IsPositive() {
		delta := req.Quantity
		if req.Side == schema.SideSell {
			delta = delta.Neg()
		}
		projected := e.book.NetQuantity(req.Symbol).Add(delta).Abs()
		if projected.GreaterThan(e.risk.MaxPositionSize) {
			return invalid("quantity", exception.ErrOrderPositionLimit, "projected %s > %s", projected, e.risk.MaxPositionSize)
		}
	}

	if e.risk.MaxDailyLoss.IsPositive() {
		daily := e.book.Account().DailyPnL
		if daily.LessThanOrEqual(e.risk.MaxDailyLoss.Neg()) {
			return invalid("account", exception.ErrOrderDailyLossLimit, "daily pnl %s", daily)
		}
	}
	return nil
}

// referencePrice is the price used for leverage: limit, then stop, then the
// current synthetic price.
func (e *Engine) referencePrice(req OrderRequest) decimal.Decimal {
	switch {
	case req.Price.IsPositive():
		return req.Price
	case req.StopPrice.IsPositive():
		return req.StopPrice
	default:
		return e.price
	}
}

// CancelOrder cancels a pending order. It returns false for unknown or
// non-pending orders.
func (e *Engine) CancelOrder(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[id]
	if !ok || o.Status != OrderStatusPending {
		return false
	}
	now := e.now()
	o.Status = OrderStatusCancelled
	o.CancelledAt = now
	o.UpdatedAt = now
	return true
}

// Order returns a copy of one order.
func (e *Engine) Order(id string) (Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Orders returns copies of every order in placement order.
func (e *Engine) Orders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Order, 0, len(e.orderIDs))
	for _, id := range e.orderIDs {
		out = append(out, *e.orders[id])
	}
	return out
}

// Fills returns every fill in execution order.
func (e *Engine) Fills() []Fill {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Fill(nil), e.fills...)
}

// Positions returns the open positions ordered by symbol.
func (e *Engine) Positions() []ledger.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Positions()
}

// Position returns the open position in symbol.
func (e *Engine) Position(symbol string) (ledger.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Position(strings.ToUpper(symbol))
}

// Account returns the current account view.
func (e *Engine) Account() ledger.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.book.Roll(e.now())
	return e.book.Account()
}

// Snapshot returns the ledger state.
func (e *Engine) Snapshot() ledger.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Snapshot()
}

// RiskConfig returns the active limits.
func (e *Engine) RiskConfig() RiskConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.risk.clone()
}

// UpdateRiskConfig replaces the active limits.
func (e *Engine) UpdateRiskConfig(cfg RiskConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.risk = cfg.clone()
}

// CurrentPrice returns the synthetic price.
func (e *Engine) CurrentPrice() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.price
}
