package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the trade intent carried by a signal.
type Action uint8

const (
	ActionUnknown Action = iota
	ActionBuy
	ActionSell
	ActionHold
	ActionClose
	_actionEnd
)

func (a Action) IsAvailable() bool {
	return a > ActionUnknown && a < _actionEnd
}

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	case ActionHold:
		return "hold"
	case ActionClose:
		return "close"
	default:
		return "unknown"
	}
}

// ParseAction maps a lower-case action name to an Action.
func ParseAction(s string) Action {
	for a := ActionBuy; a < _actionEnd; a++ {
		if a.String() == s {
			return a
		}
	}
	return ActionUnknown
}

// Priority orders signals in the dispatch queue. Higher values are served first.
type Priority uint8

const (
	PriorityUnknown Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityCritical
	_priorityEnd
)

func (p Priority) IsAvailable() bool {
	return p > PriorityUnknown && p < _priorityEnd
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Priorities lists every valid priority from lowest to highest.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}
}

// SignalStatus is the processing state of a signal.
type SignalStatus uint8

const (
	SignalStatusUnknown SignalStatus = iota
	SignalStatusPending
	SignalStatusValidating
	SignalStatusQueued
	SignalStatusProcessing
	SignalStatusExecuted
	SignalStatusFailed
	SignalStatusCancelled
	SignalStatusRiskBlocked
)

func (s SignalStatus) String() string {
	switch s {
	case SignalStatusPending:
		return "pending"
	case SignalStatusValidating:
		return "validating"
	case SignalStatusQueued:
		return "queued"
	case SignalStatusProcessing:
		return "processing"
	case SignalStatusExecuted:
		return "executed"
	case SignalStatusFailed:
		return "failed"
	case SignalStatusCancelled:
		return "cancelled"
	case SignalStatusRiskBlocked:
		return "risk_blocked"
	default:
		return "unknown"
	}
}

// Signal is an inbound trading instruction produced by a strategy.
type Signal struct {
	ID         string
	Symbol     string
	Action     Action
	Confidence float64
	Reasoning  string
	StrategyID string
	Priority   Priority
	// Quantity is optional. Zero means the pipeline default.
	Quantity  decimal.Decimal
	Timestamp time.Time
	Metadata  map[string]string
}

// Clone returns a copy that does not share the metadata map.
func (s Signal) Clone() Signal {
	if s.Metadata != nil {
		md := make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			md[k] = v
		}
		s.Metadata = md
	}
	return s
}

// ProcessingResult describes the outcome of executing one signal.
type ProcessingResult struct {
	SignalID  string
	Symbol    string
	Success   bool
	Status    SignalStatus
	OrderID   string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}
