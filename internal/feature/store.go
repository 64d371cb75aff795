package feature

import (
	"context"
	"errors"

	"paperdesk/internal/schema"
)

// Store records signals and their execution outcomes.
type Store interface {
	StoreSignal(ctx context.Context, sig schema.Signal) error
	StoreExecutionResult(ctx context.Context, res schema.ProcessingResult) error
}

// Fanout forwards every call to each store in order. All stores are
// called even when one fails; the failures are joined.
type Fanout []Store

func (f Fanout) StoreSignal(ctx context.Context, sig schema.Signal) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.StoreSignal(ctx, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) StoreExecutionResult(ctx context.Context, res schema.ProcessingResult) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.StoreExecutionResult(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
