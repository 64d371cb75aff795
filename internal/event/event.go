package event

import (
	"time"

	"paperdesk/internal/schema"
)

// Kind identifies a lifecycle event. The set is closed.
type Kind uint16

const (
	KindUnknown Kind = iota
	KindStarted
	KindStopped
	KindSubmitted
	KindRejected
	KindQueued
	KindQueueFull
	KindDequeued
	KindRemoved
	KindReprioritized
	KindQueueCleared
	KindRiskBlocked
	KindRiskWarning
	KindRiskAlert
	KindEmergencyStop
	KindExecuted
	KindFailed
	KindCollaboratorError
	_kindEnd
)

// MaxKind is the highest defined kind, for fixed-size counters.
const MaxKind = int(_kindEnd) - 1

func (k Kind) IsAvailable() bool {
	return k > KindUnknown && k < _kindEnd
}

func (k Kind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindStopped:
		return "stopped"
	case KindSubmitted:
		return "submitted"
	case KindRejected:
		return "rejected"
	case KindQueued:
		return "queued"
	case KindQueueFull:
		return "queue_full"
	case KindDequeued:
		return "dequeued"
	case KindRemoved:
		return "removed"
	case KindReprioritized:
		return "reprioritized"
	case KindQueueCleared:
		return "queue_cleared"
	case KindRiskBlocked:
		return "risk_blocked"
	case KindRiskWarning:
		return "risk_warning"
	case KindRiskAlert:
		return "risk_alert"
	case KindEmergencyStop:
		return "emergency_stop"
	case KindExecuted:
		return "executed"
	case KindFailed:
		return "failed"
	case KindCollaboratorError:
		return "collaborator_error"
	default:
		return "unknown"
	}
}

// Stage names the pipeline step a collaborator error came from.
type Stage string

const (
	StageFeatureSignal Stage = "feature_store.signal"
	StageFeatureResult Stage = "feature_store.result"
	StageRisk          Stage = "risk_guard"
	StageExecution     Stage = "execution"
)

// Event is a single lifecycle notification. Fields that do not apply to a
// kind are left zero.
type Event struct {
	Kind     Kind
	Seq      uint64
	At       time.Time
	Signal   *schema.Signal
	SignalID string
	Priority schema.Priority
	Reason   string
	Score    float64
	Stage    Stage
	Result   *schema.ProcessingResult
	Err      error
	Count    int
	Active   bool
}
