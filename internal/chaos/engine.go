package chaos

import (
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"paperdesk/internal/schema"
)

// Config controls fault injection. Rates are probabilities in [0,1].
type Config struct {
	Seed          int64
	DropRate      float64
	DuplicateRate float64
	ReorderWindow int
	// MaxDelay ages signal timestamps by up to this much, so stale signals
	// reach the validator.
	MaxDelay time.Duration

	FailRate  float64
	PanicRate float64
	// MaxLatency stalls each execution by up to this much.
	MaxLatency time.Duration
}

// Enabled reports whether any fault is configured.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.DuplicateRate > 0 || c.ReorderWindow > 1 || c.MaxDelay > 0 ||
		c.FailRate > 0 || c.PanicRate > 0 || c.MaxLatency > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	for name, rate := range map[string]float64{
		"dropRate":      c.DropRate,
		"duplicateRate": c.DuplicateRate,
		"failRate":      c.FailRate,
		"panicRate":     c.PanicRate,
	} {
		if rate < 0 || rate > 1 {
			return errors.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.ReorderWindow <= 0 {
		return errors.New("reorderWindow must be >= 1")
	}
	if c.MaxDelay < 0 || c.MaxLatency < 0 {
		return errors.New("delays must be >= 0")
	}
	return nil
}

// Engine applies chaos rules to a signal stream. It is safe for
// concurrent use.
type Engine struct {
	cfg Config

	mu      sync.Mutex
	rng     *rand.Rand
	pending []schema.Signal
}

// NewEngine creates a chaos engine with validation.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Config returns the engine's settings.
func (e *Engine) Config() Config {
	return e.cfg
}

// Process applies chaos to one signal and returns the signals to submit,
// possibly none.
func (e *Engine) Process(sig schema.Signal) []schema.Signal {
	if e == nil {
		return []schema.Signal{sig}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.chance(e.cfg.DropRate) {
		return nil
	}
	sig = e.applyDelay(sig)
	if e.cfg.ReorderWindow <= 1 {
		return e.applyDuplicate(sig)
	}
	e.pending = append(e.pending, sig)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.applyDuplicate(e.take())
}

// Flush returns any buffered signals in random order.
func (e *Engine) Flush() []schema.Signal {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]schema.Signal, 0, len(e.pending))
	for len(e.pending) > 0 {
		out = append(out, e.applyDuplicate(e.take())...)
	}
	return out
}

func (e *Engine) take() schema.Signal {
	idx := e.rng.Intn(len(e.pending))
	sig := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return sig
}

func (e *Engine) chance(rate float64) bool {
	return rate > 0 && e.rng.Float64() < rate
}

func (e *Engine) applyDuplicate(sig schema.Signal) []schema.Signal {
	out := []schema.Signal{sig}
	if e.chance(e.cfg.DuplicateRate) {
		out = append(out, sig.Clone())
	}
	return out
}

func (e *Engine) applyDelay(sig schema.Signal) schema.Signal {
	delay := e.duration(e.cfg.MaxDelay)
	if delay == 0 || sig.Timestamp.IsZero() {
		return sig
	}
	sig.Timestamp = sig.Timestamp.Add(-delay)
	return sig
}

func (e *Engine) duration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(e.rng.Int63n(max.Nanoseconds() + 1))
}

// roll reports a failure and a panic decision plus a latency for one
// execution.
func (e *Engine) roll() (fail, panics bool, latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chance(e.cfg.FailRate), e.chance(e.cfg.PanicRate), e.duration(e.cfg.MaxLatency)
}
