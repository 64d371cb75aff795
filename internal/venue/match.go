package venue

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paperdesk/internal/ledger"
	"paperdesk/internal/schema"
)

// match attempts to fill o at the current price. Callers hold e.mu.
func (e *Engine) match(o *Order, now time.Time) {
	if o.Status.IsTerminal() {
		return
	}
	switch o.Type {
	case OrderTypeMarket:
		e.fill(o, e.price, e.risk.TakerFeeBps, now)
	case OrderTypeLimit:
		if e.crosses(o.Side, o.Price) {
			e.fill(o, o.Price, e.risk.MakerFeeBps, now)
		}
	case OrderTypeStopMarket:
		if e.trigger(o, now) {
			e.fill(o, e.price, e.risk.TakerFeeBps, now)
		}
	case OrderTypeStopLimit:
		if e.trigger(o, now) && e.crosses(o.Side, o.Price) {
			e.fill(o, o.Price, e.risk.MakerFeeBps, now)
		}
	}
}

// crosses reports whether a limit at limit is marketable: buys at or above
// the current price, sells at or below it.
func (e *Engine) crosses(side schema.Side, limit decimal.Decimal) bool {
	switch side {
	case schema.SideBuy:
		return e.price.LessThanOrEqual(limit)
	case schema.SideSell:
		return e.price.GreaterThanOrEqual(limit)
	default:
		return false
	}
}

// trigger latches o.Triggered once the stop condition holds.
func (e *Engine) trigger(o *Order, now time.Time) bool {
	if o.Triggered {
		return true
	}
	var hit bool
	switch o.Side {
	case schema.SideBuy:
		hit = e.price.GreaterThanOrEqual(o.StopPrice)
	case schema.SideSell:
		hit = e.price.LessThanOrEqual(o.StopPrice)
	}
	if hit {
		o.Triggered = true
		o.UpdatedAt = now
	}
	return hit
}

// fill executes the remaining quantity of o at price. The simulator has no
// depth, so a fill always completes the order.
func (e *Engine) fill(o *Order, price, feeBps decimal.Decimal, now time.Time) {
	qty := o.Remaining()
	if !qty.IsPositive() {
		return
	}
	fee := qty.Mul(price).Mul(feeBps).Div(bpsDivisor)

	e.fillSeq++
	f := Fill{
		ID:        fmt.Sprintf("fill_%d", e.fillSeq),
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Quantity:  qty,
		Price:     price,
		Fee:       fee,
		FeeBps:    feeBps,
		Timestamp: now,
	}
	e.fills = append(e.fills, f)

	prevQty := o.FilledQuantity
	o.FilledQuantity = prevQty.Add(qty)
	o.AveragePrice = o.AveragePrice.Mul(prevQty).Add(price.Mul(qty)).Div(o.FilledQuantity)
	o.Fee = o.Fee.Add(fee)
	o.FeeBps = feeBps
	o.UpdatedAt = now
	if o.FilledQuantity.GreaterThanOrEqual(o.Quantity) {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}

	e.book.ApplyFill(ledger.Trade{
		Symbol:   o.Symbol,
		Side:     o.Side,
		Quantity: qty,
		Price:    price,
		Fee:      fee,
		At:       now,
	})
	e.book.Mark(e.price, now)
}

// sweep re-evaluates resting orders in symbol. Callers hold e.mu.
func (e *Engine) sweep(symbol string, now time.Time) {
	for _, id := range e.orderIDs {
		o := e.orders[id]
		if o.Symbol != symbol || o.Status != OrderStatusPending || o.Type == OrderTypeMarket {
			continue
		}
		e.match(o, now)
	}
}
