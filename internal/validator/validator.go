package validator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"paperdesk/internal/schema"
)

const (
	RuleBasicFields         = "basic_fields"
	RuleConfidenceThreshold = "confidence_threshold"
	RuleSignalAge           = "signal_age"
	RuleSymbolFormat        = "symbol_format"
	RuleActionValidity      = "action_validity"
)

var defaultSymbolPattern = regexp.MustCompile(`^[A-Z]{3,10}USDT$`)

// Rule checks one property of a signal. A non-nil error fails the rule.
type Rule func(ctx context.Context, sig schema.Signal) error

// Config tunes the built-in rules.
type Config struct {
	MinConfidence float64       `json:"minConfidence"`
	MaxAge        time.Duration `json:"maxAge"`
	// Symbols are accepted verbatim in addition to the USDT pair pattern.
	Symbols []string `json:"symbols"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.6,
		MaxAge:        30 * time.Second,
		Symbols:       []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "ADAUSDT", "DOTUSDT"},
	}
}

type namedRule struct {
	name string
	rule Rule
}

// Validator runs an ordered, editable set of rules against signals.
type Validator struct {
	mu    sync.RWMutex
	cfg   Config
	rules []namedRule
	now   func() time.Time
}

// New creates a validator with the built-in rules. A nil clock falls back
// to time.Now.
func New(cfg Config, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := &Validator{cfg: cfg, now: now}
	v.cfg.MinConfidence = clamp01(cfg.MinConfidence)
	v.AddRule(RuleBasicFields, v.basicFields)
	v.AddRule(RuleConfidenceThreshold, v.confidence)
	v.AddRule(RuleSignalAge, v.age)
	v.AddRule(RuleSymbolFormat, v.symbol)
	v.AddRule(RuleActionValidity, v.action)
	return v
}

// AddRule appends rule, or replaces the rule already registered as name.
func (v *Validator) AddRule(name string, rule Rule) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.rules {
		if v.rules[i].name == name {
			v.rules[i].rule = rule
			return
		}
	}
	v.rules = append(v.rules, namedRule{name: name, rule: rule})
}

// RemoveRule drops the rule registered as name.
func (v *Validator) RemoveRule(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.rules {
		if v.rules[i].name == name {
			v.rules = append(v.rules[:i], v.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Rules lists rule names in evaluation order.
func (v *Validator) Rules() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.rules))
	for _, r := range v.rules {
		out = append(out, r.name)
	}
	return out
}

// SetMinConfidence changes the confidence floor, clamped to [0, 1].
func (v *Validator) SetMinConfidence(c float64) {
	v.mu.Lock()
	v.cfg.MinConfidence = clamp01(c)
	v.mu.Unlock()
}

// SetMaxAge changes the staleness limit.
func (v *Validator) SetMaxAge(d time.Duration) {
	v.mu.Lock()
	v.cfg.MaxAge = d
	v.mu.Unlock()
}

// Validate runs every rule and returns a *RejectionError listing each
// failure, or nil when the signal is accepted.
func (v *Validator) Validate(ctx context.Context, sig schema.Signal) error {
	v.mu.RLock()
	rules := append([]namedRule(nil), v.rules...)
	v.mu.RUnlock()

	var failures []Failure
	for _, r := range rules {
		if err := run(ctx, r.rule, sig); err != nil {
			failures = append(failures, Failure{Rule: r.name, Err: err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &RejectionError{SignalID: sig.ID, Failures: failures}
}

func run(ctx context.Context, rule Rule, sig schema.Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("rule panic: %v", r)
		}
	}()
	return rule(ctx, sig)
}

func (v *Validator) basicFields(_ context.Context, sig schema.Signal) error {
	var missing []string
	if sig.ID == "" {
		missing = append(missing, "id")
	}
	if sig.Symbol == "" {
		missing = append(missing, "symbol")
	}
	if sig.Action == schema.ActionUnknown {
		missing = append(missing, "action")
	}
	if strings.TrimSpace(sig.Reasoning) == "" {
		missing = append(missing, "reasoning")
	}
	if sig.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	if len(missing) != 0 {
		return errors.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (v *Validator) confidence(_ context.Context, sig schema.Signal) error {
	v.mu.RLock()
	floor := v.cfg.MinConfidence
	v.mu.RUnlock()
	if sig.Confidence < floor || sig.Confidence > 1 {
		return errors.Errorf("confidence %.3f outside [%.3f, 1]", sig.Confidence, floor)
	}
	return nil
}

func (v *Validator) age(_ context.Context, sig schema.Signal) error {
	v.mu.RLock()
	maxAge := v.cfg.MaxAge
	v.mu.RUnlock()
	if maxAge <= 0 || sig.Timestamp.IsZero() {
		return nil
	}
	if age := v.now().Sub(sig.Timestamp); age > maxAge {
		return errors.Errorf("signal age %s exceeds %s", age, maxAge)
	}
	return nil
}

func (v *Validator) symbol(_ context.Context, sig schema.Signal) error {
	v.mu.RLock()
	symbols := v.cfg.Symbols
	v.mu.RUnlock()
	for _, s := range symbols {
		if s == sig.Symbol {
			return nil
		}
	}
	if defaultSymbolPattern.MatchString(sig.Symbol) {
		return nil
	}
	return errors.Errorf("symbol %q is not a USDT pair", sig.Symbol)
}

func (v *Validator) action(_ context.Context, sig schema.Signal) error {
	if !sig.Action.IsAvailable() {
		return errors.Errorf("action %d not supported", sig.Action)
	}
	return nil
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// Failure is one failed rule.
type Failure struct {
	Rule string
	Err  error
}

// RejectionError reports why a signal was refused.
type RejectionError struct {
	SignalID string
	Failures []Failure
}

func (e *RejectionError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Rule, f.Err))
	}
	return fmt.Sprintf("signal %s rejected: %s", e.SignalID, strings.Join(parts, "; "))
}

// Reason returns the name of the first failed rule.
func (e *RejectionError) Reason() string {
	if len(e.Failures) == 0 {
		return ""
	}
	return e.Failures[0].Rule
}

// Failed reports whether the named rule failed.
func (e *RejectionError) Failed(rule string) bool {
	for _, f := range e.Failures {
		if f.Rule == rule {
			return true
		}
	}
	return false
}
