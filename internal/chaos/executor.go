package chaos

import (
	"context"
	"time"

	"github.com/yanun0323/errors"

	"paperdesk/internal/schema"
)

// ErrInjected is returned by executions the engine chose to fail.
var ErrInjected = errors.New("chaos: injected execution failure")

// Delegate is the executor being disturbed.
type Delegate interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Execute(ctx context.Context, sig schema.Signal) (schema.ProcessingResult, error)
	ActiveSignals() int
}

// Executor wraps a Delegate with injected latency, failures and panics.
type Executor struct {
	Delegate
	engine *Engine
}

// WrapExecutor returns d unchanged when engine is nil.
func WrapExecutor(d Delegate, engine *Engine) Delegate {
	if engine == nil {
		return d
	}
	return &Executor{Delegate: d, engine: engine}
}

// Execute stalls, fails or panics as rolled, then delegates.
func (x *Executor) Execute(ctx context.Context, sig schema.Signal) (schema.ProcessingResult, error) {
	fail, panics, latency := x.engine.roll()
	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return schema.ProcessingResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	if panics {
		panic("chaos: injected executor panic")
	}
	if fail {
		return schema.ProcessingResult{}, errors.Wrapf(ErrInjected, "signal %s", sig.ID)
	}
	return x.Delegate.Execute(ctx, sig)
}
