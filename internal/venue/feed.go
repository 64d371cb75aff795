package venue

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

// Tick sets the synthetic price, re-evaluates resting orders in symbol and
// revalues the ledger. Non-positive prices are ignored.
func (e *Engine) Tick(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.apply(strings.ToUpper(symbol), price)
}

// Step advances the random walk by one step and returns the new price.
func (e *Engine) Step(symbol string) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()

	f := e.cfg.Feed
	delta := decimal.NewFromFloat((e.rng.Float64() - 0.5) * f.MaxStep.InexactFloat64())
	next := e.price.Add(delta).Round(2)
	next = decimal.Max(f.Floor, decimal.Min(f.Ceiling, next))
	e.apply(strings.ToUpper(symbol), next)
	return next
}

func (e *Engine) apply(symbol string, price decimal.Decimal) {
	now := e.now()
	e.price = price
	e.sweep(symbol, now)
	e.book.Mark(price, now)
}

// StartPriceFeed runs the random walk for symbol every feed interval until
// StopPriceFeed or ctx is done. It returns false when a feed is already running.
func (e *Engine) StartPriceFeed(ctx context.Context, symbol string) bool {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	if e.feedCancel != nil {
		return false
	}
	if symbol == "" {
		symbol = e.cfg.Feed.Symbol
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.feedCancel = cancel
	e.feedDone = done

	go e.runFeed(ctx, symbol, done)
	logs.Infof("price feed started, symbol: %s, interval: %s", symbol, e.cfg.Feed.Interval)
	return true
}

// StopPriceFeed stops a running feed and waits for it to exit.
func (e *Engine) StopPriceFeed() {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	if e.feedCancel == nil {
		return
	}
	e.feedCancel()
	<-e.feedDone
	e.feedCancel = nil
	e.feedDone = nil
	logs.Info("price feed stopped")
}

// FeedRunning reports whether the random walk is active.
func (e *Engine) FeedRunning() bool {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	return e.feedCancel != nil
}

func (e *Engine) runFeed(ctx context.Context, symbol string, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.Feed.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Step(symbol)
		}
	}
}
