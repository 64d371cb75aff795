package execution

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"paperdesk/internal/ledger"
	"paperdesk/internal/schema"
	"paperdesk/internal/venue"
	"paperdesk/pkg/exception"
)

const defaultMaxHistory = 1000

// Venue is the order surface the adapter trades against.
type Venue interface {
	PlaceOrder(venue.OrderRequest) (venue.Order, error)
	Position(symbol string) (ledger.Position, bool)
}

// Paper executes signals as market orders on a simulated venue.
type Paper struct {
	venue Venue
	now   func() time.Time

	running atomic.Bool
	active  atomic.Int64

	mu         sync.Mutex
	history    []schema.ProcessingResult
	maxHistory int
}

// NewPaper creates a stopped adapter. A nil clock falls back to time.Now.
func NewPaper(v Venue, now func() time.Time) *Paper {
	if now == nil {
		now = time.Now
	}
	return &Paper{venue: v, now: now, maxHistory: defaultMaxHistory}
}

// Start enables execution.
func (p *Paper) Start(context.Context) error {
	if p.venue == nil {
		return exception.ErrSignalNilDelegate
	}
	if !p.running.Swap(true) {
		logs.Info("paper executor started")
	}
	return nil
}

// Stop disables execution. Signals already executing complete.
func (p *Paper) Stop(context.Context) error {
	if p.running.Swap(false) {
		logs.Info("paper executor stopped")
	}
	return nil
}

// Running reports whether the adapter accepts signals.
func (p *Paper) Running() bool {
	return p.running.Load()
}

// ActiveSignals returns the number of signals currently executing.
func (p *Paper) ActiveSignals() int {
	return int(p.active.Load())
}

// Execute turns sig into at most one venue order. Refusals by the venue
// are reported through the result; the error is reserved for a cancelled
// context.
func (p *Paper) Execute(ctx context.Context, sig schema.Signal) (schema.ProcessingResult, error) {
	if err := ctx.Err(); err != nil {
		return schema.ProcessingResult{}, err
	}

	p.active.Add(1)
	defer p.active.Add(-1)

	start := p.now()
	res := schema.ProcessingResult{
		SignalID: sig.ID,
		Symbol:   sig.Symbol,
		Quantity: sig.Quantity,
	}

	if err := p.execute(sig, &res); err != nil {
		res.Success = false
		res.Status = schema.SignalStatusFailed
		res.Error = err.Error()
	}

	end := p.now()
	res.Duration = end.Sub(start)
	res.Timestamp = end
	p.record(res)
	return res, nil
}

func (p *Paper) execute(sig schema.Signal, res *schema.ProcessingResult) error {
	if !p.running.Load() {
		return exception.ErrOrderExecutorNotRunning
	}

	req := venue.OrderRequest{
		Symbol:   sig.Symbol,
		Type:     venue.OrderTypeMarket,
		Quantity: sig.Quantity,
	}
	switch sig.Action {
	case schema.ActionHold:
		res.Success = true
		res.Status = schema.SignalStatusExecuted
		return nil
	case schema.ActionBuy:
		req.Side = schema.SideBuy
	case schema.ActionSell:
		req.Side = schema.SideSell
	case schema.ActionClose:
		pos, ok := p.venue.Position(sig.Symbol)
		if !ok || pos.Quantity.IsZero() {
			return errors.Wrapf(exception.ErrOrderNoPosition, "close %s", sig.Symbol)
		}
		req.Quantity = pos.Quantity
		req.Side = schema.SideSell
		if pos.Side == schema.PositionSideShort {
			req.Side = schema.SideBuy
		}
	default:
		return errors.Wrapf(exception.ErrOrderUnsupportedAction, "action %s", sig.Action)
	}

	order, err := p.venue.PlaceOrder(req)
	if err != nil {
		return err
	}
	res.OrderID = order.ID
	res.Quantity = order.FilledQuantity
	res.Price = order.AveragePrice

	switch order.Status {
	case venue.OrderStatusFilled, venue.OrderStatusPartiallyFilled:
		res.Success = true
		res.Status = schema.SignalStatusExecuted
		return nil
	default:
		return errors.Errorf("order %s ended %s", order.ID, order.Status)
	}
}

func (p *Paper) record(res schema.ProcessingResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, res)
	if over := len(p.history) - p.maxHistory; over > 0 {
		p.history = append([]schema.ProcessingResult(nil), p.history[over:]...)
	}
}

// History returns up to limit of the most recent results, oldest first.
// A non-positive limit returns everything retained.
func (p *Paper) History(limit int) []schema.ProcessingResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	from := 0
	if limit > 0 && limit < len(p.history) {
		from = len(p.history) - limit
	}
	return append([]schema.ProcessingResult(nil), p.history[from:]...)
}
