package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/logs"
	"golang.org/x/sync/semaphore"

	"paperdesk/internal/bus"
	"paperdesk/internal/event"
	"paperdesk/internal/feature"
	"paperdesk/internal/obs"
	"paperdesk/internal/risk"
	"paperdesk/internal/schema"
	"paperdesk/internal/validator"
	"paperdesk/pkg/exception"
)

// Validator decides whether a submitted signal may be queued.
type Validator interface {
	Validate(ctx context.Context, sig schema.Signal) error
}

// RiskGuard vets dequeued signals before execution.
type RiskGuard interface {
	CheckSignal(ctx context.Context, sig schema.Signal) (risk.Decision, error)
	IncrementTradeCount()
	SetEmergencyStop(active bool)
	Status() risk.Status
	Alerts() []string
	UpdateConfig(patch risk.ConfigPatch) error
	Reset()
}

// Executor turns signals into trades.
type Executor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Execute(ctx context.Context, sig schema.Signal) (schema.ProcessingResult, error)
	ActiveSignals() int
}

// Deps are the orchestrator's collaborators. Queue, Validator and Executor
// are required; Risk is required when risk checks are enabled. A nil Hub
// is replaced by a private one. Metrics, when set, is subscribed to the hub.
type Deps struct {
	Queue     *bus.Queue
	Validator Validator
	Risk      RiskGuard
	Executor  Executor
	Store     feature.Store
	Hub       *event.Hub
	Metrics   *obs.Metrics
	Now       func() time.Time
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Running       bool
	QueueSize     int
	ActiveSignals int
	Metrics       obs.Snapshot
}

// Orchestrator drains the queue on a fixed interval and drives each
// signal through risk, execution and feature recording.
type Orchestrator struct {
	cfg       Config
	queue     *bus.Queue
	validator Validator
	risk      RiskGuard
	executor  Executor
	store     feature.Store
	hub       *event.Hub
	metrics   *obs.Metrics
	now       func() time.Time

	slots    *semaphore.Weighted
	inflight sync.WaitGroup

	// lifecycle serializes Start and Stop; mu guards the fields below.
	lifecycle sync.Mutex
	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New wires an orchestrator. It does not start it.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Queue == nil:
		return nil, fmt.Errorf("queue: %w", exception.ErrSignalNilDelegate)
	case deps.Validator == nil:
		return nil, fmt.Errorf("validator: %w", exception.ErrSignalNilDelegate)
	case deps.Executor == nil:
		return nil, fmt.Errorf("executor: %w", exception.ErrSignalNilDelegate)
	case cfg.RiskChecks && deps.Risk == nil:
		return nil, fmt.Errorf("risk guard: %w", exception.ErrSignalNilDelegate)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Hub == nil {
		deps.Hub = event.NewHub(deps.Now)
	}
	if deps.Metrics != nil {
		deps.Hub.Subscribe(deps.Metrics)
	}
	return &Orchestrator{
		cfg:       cfg,
		queue:     deps.Queue,
		validator: deps.Validator,
		risk:      deps.Risk,
		executor:  deps.Executor,
		store:     deps.Store,
		hub:       deps.Hub,
		metrics:   deps.Metrics,
		now:       deps.Now,
		slots:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}, nil
}

// Hub returns the hub lifecycle events are published to.
func (o *Orchestrator) Hub() *event.Hub {
	return o.hub
}

// Start starts the executor and arms the dispatch ticker. Starting a
// running orchestrator is a no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	if o.Running() {
		return nil
	}
	if err := o.executor.Start(ctx); err != nil {
		return fmt.Errorf("start executor: %w", err)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.mu.Lock()
	o.cancel = cancel
	o.done = done
	o.running = true
	o.mu.Unlock()
	go o.loop(loopCtx, done)

	logs.Infof("pipeline started, max concurrent: %d, interval: %s", o.cfg.MaxConcurrent, o.cfg.Interval)
	o.hub.Publish(event.Event{Kind: event.KindStarted})
	return nil
}

// Stop disarms the ticker and stops the executor. Signals already in
// flight keep running; use Wait to drain them. o.mu is released before
// waiting on the loop, so listeners may call Status while Stop runs.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	cancel()
	<-done
	err := o.executor.Stop(ctx)

	logs.Info("pipeline stopped")
	o.hub.Publish(event.Event{Kind: event.KindStopped})
	if err != nil {
		return fmt.Errorf("stop executor: %w", err)
	}
	return nil
}

// Running reports whether the dispatch ticker is armed.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Wait blocks until every dispatched signal has finished.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

func (o *Orchestrator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.dispatch(ctx)
		}
	}
}

// dispatch hands at most one queued signal to a worker. The slot is
// reserved before the dequeue so the ceiling holds across ticks.
func (o *Orchestrator) dispatch(ctx context.Context) bool {
	if o.executor.ActiveSignals() >= o.cfg.MaxConcurrent {
		return false
	}
	if !o.slots.TryAcquire(1) {
		return false
	}
	item, ok := o.queue.Dequeue()
	if !ok {
		o.slots.Release(1)
		return false
	}

	sig := item.Signal
	o.hub.Publish(event.Event{Kind: event.KindDequeued, SignalID: sig.ID, Signal: &sig, Priority: item.Priority, Count: item.Attempts})

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer o.slots.Release(1)
		o.process(context.WithoutCancel(ctx), item.Signal)
	}()
	return true
}

func (o *Orchestrator) process(ctx context.Context, sig schema.Signal) {
	if o.store != nil {
		if err := safely(func() error { return o.store.StoreSignal(ctx, sig) }); err != nil {
			o.collaboratorError(sig, event.StageFeatureSignal, err)
		}
	}

	if o.cfg.RiskChecks {
		var decision risk.Decision
		err := safely(func() (err error) {
			decision, err = o.risk.CheckSignal(ctx, sig)
			return err
		})
		if err != nil {
			o.collaboratorError(sig, event.StageRisk, err)
			o.hub.Publish(event.Event{Kind: event.KindRiskBlocked, SignalID: sig.ID, Signal: &sig, Reason: "risk_guard_error", Err: err})
			return
		}
		if !decision.Allowed {
			o.hub.Publish(event.Event{
				Kind:     event.KindRiskBlocked,
				SignalID: sig.ID,
				Signal:   &sig,
				Reason:   decision.Reason.String(),
				Score:    decision.Score,
				Err:      errors.New(decision.Detail),
			})
			return
		}
	}

	start := o.now()
	var res schema.ProcessingResult
	err := safely(func() (err error) {
		res, err = o.executor.Execute(ctx, sig)
		return err
	})
	if err != nil {
		o.collaboratorError(sig, event.StageExecution, err)
		now := o.now()
		res = schema.ProcessingResult{
			SignalID:  sig.ID,
			Symbol:    sig.Symbol,
			Status:    schema.SignalStatusFailed,
			Quantity:  sig.Quantity,
			Error:     err.Error(),
			Duration:  now.Sub(start),
			Timestamp: now,
		}
	}

	if res.Success {
		if o.risk != nil {
			o.risk.IncrementTradeCount()
		}
		o.hub.Publish(event.Event{Kind: event.KindExecuted, SignalID: sig.ID, Signal: &sig, Result: &res})
	} else {
		o.hub.Publish(event.Event{Kind: event.KindFailed, SignalID: sig.ID, Signal: &sig, Result: &res, Reason: res.Error})
	}

	if o.store != nil {
		if err := safely(func() error { return o.store.StoreExecutionResult(ctx, res) }); err != nil {
			o.collaboratorError(sig, event.StageFeatureResult, err)
		}
	}
}

func (o *Orchestrator) collaboratorError(sig schema.Signal, stage event.Stage, err error) {
	o.hub.Publish(event.Event{Kind: event.KindCollaboratorError, SignalID: sig.ID, Signal: &sig, Stage: stage, Err: err, Reason: err.Error()})
}

func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// Submit validates sig and queues it. Missing priority, quantity and
// timestamp are filled in first. A validation failure wraps
// exception.ErrSignalRejected. Submitted is published once validation
// passes and before the signal is queued, so it always precedes Queued
// or QueueFull; a full queue returns bus.ErrQueueFull.
func (o *Orchestrator) Submit(ctx context.Context, sig schema.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !sig.Priority.IsAvailable() {
		sig.Priority = schema.PriorityNormal
	}
	if sig.Quantity.IsZero() {
		sig.Quantity = o.cfg.DefaultQuantity
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = o.now()
	}

	if err := safely(func() error { return o.validator.Validate(ctx, sig) }); err != nil {
		reason := "validation_error"
		var re *validator.RejectionError
		if errors.As(err, &re) {
			reason = re.Reason()
		}
		o.hub.Publish(event.Event{Kind: event.KindRejected, SignalID: sig.ID, Signal: &sig, Priority: sig.Priority, Reason: reason, Err: err})
		return fmt.Errorf("%w: %w", exception.ErrSignalRejected, err)
	}

	o.hub.Publish(event.Event{Kind: event.KindSubmitted, SignalID: sig.ID, Signal: &sig, Priority: sig.Priority})
	return o.queue.Enqueue(sig)
}

// Status reports the running flag, queue depth, executor load and metrics.
func (o *Orchestrator) Status() Status {
	return Status{
		Running:       o.Running(),
		QueueSize:     o.queue.Len(),
		ActiveSignals: o.executor.ActiveSignals(),
		Metrics:       o.metrics.Snapshot(),
	}
}

// ClearQueue drops every queued signal and returns how many were dropped.
func (o *Orchestrator) ClearQueue() int {
	return o.queue.Clear()
}

// SetEmergencyStop toggles the risk guard's emergency stop.
func (o *Orchestrator) SetEmergencyStop(active bool) {
	if o.risk != nil {
		o.risk.SetEmergencyStop(active)
	}
}

// RiskStatus returns the risk guard's status.
func (o *Orchestrator) RiskStatus() risk.Status {
	if o.risk == nil {
		return risk.Status{}
	}
	return o.risk.Status()
}

// RiskAlerts returns the risk guard's retained alerts.
func (o *Orchestrator) RiskAlerts() []string {
	if o.risk == nil {
		return nil
	}
	return o.risk.Alerts()
}

// UpdateRiskConfig applies a partial risk config update.
func (o *Orchestrator) UpdateRiskConfig(patch risk.ConfigPatch) error {
	if o.risk == nil {
		return exception.ErrSignalNilDelegate
	}
	return o.risk.UpdateConfig(patch)
}

// ResetRiskGuard clears the risk guard's counters and alerts.
func (o *Orchestrator) ResetRiskGuard() {
	if o.risk != nil {
		o.risk.Reset()
	}
}
