package feature

import (
	"context"
	"strings"
	"sync"
	"time"

	"paperdesk/internal/schema"
)

const defaultMaxHistory = 10000

// Performance summarises execution outcomes for one symbol.
type Performance struct {
	Symbol          string
	Total           int
	Succeeded       int
	Failed          int
	SuccessRate     float64
	AverageDuration time.Duration
}

// Memory is a bounded in-process store with simple analytics.
type Memory struct {
	mu         sync.RWMutex
	maxHistory int
	signals    []schema.Signal
	results    []schema.ProcessingResult
}

// NewMemory creates a store retaining at most maxHistory signals and
// maxHistory results. A non-positive value selects the default.
func NewMemory(maxHistory int) *Memory {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &Memory{maxHistory: maxHistory}
}

func (m *Memory) StoreSignal(_ context.Context, sig schema.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = appendBounded(m.signals, sig.Clone(), m.maxHistory)
	return nil
}

func (m *Memory) StoreExecutionResult(_ context.Context, res schema.ProcessingResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = appendBounded(m.results, res, m.maxHistory)
	return nil
}

// SignalHistory returns the newest signals for symbol, newest first. An
// empty symbol matches every signal; a non-positive limit returns all.
func (m *Memory) SignalHistory(symbol string, limit int) []schema.Signal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schema.Signal
	for i := len(m.signals) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if symbol == "" || strings.EqualFold(m.signals[i].Symbol, symbol) {
			out = append(out, m.signals[i].Clone())
		}
	}
	return out
}

// ExecutionHistory returns the newest results for signalID, newest first.
// An empty id matches every result.
func (m *Memory) ExecutionHistory(signalID string, limit int) []schema.ProcessingResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schema.ProcessingResult
	for i := len(m.results) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if signalID == "" || m.results[i].SignalID == signalID {
			out = append(out, m.results[i])
		}
	}
	return out
}

// Performance aggregates retained results for symbol. An empty symbol
// aggregates everything.
func (m *Memory) Performance(symbol string) Performance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := Performance{Symbol: symbol}
	var total time.Duration
	for _, r := range m.results {
		if symbol != "" && !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		p.Total++
		total += r.Duration
		if r.Success {
			p.Succeeded++
		} else {
			p.Failed++
		}
	}
	if p.Total > 0 {
		p.SuccessRate = float64(p.Succeeded) / float64(p.Total)
		p.AverageDuration = total / time.Duration(p.Total)
	}
	return p
}

// Len returns the retained signal and result counts.
func (m *Memory) Len() (signals, results int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.signals), len(m.results)
}

// Clear drops all history.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.signals = nil
	m.results = nil
	m.mu.Unlock()
}

func appendBounded[T any](s []T, v T, max int) []T {
	s = append(s, v)
	if over := len(s) - max; over > 0 {
		s = append(s[:0:0], s[over:]...)
	}
	return s
}
