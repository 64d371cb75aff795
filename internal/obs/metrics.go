package obs

import (
	"sync"
	"sync/atomic"
	"time"

	"paperdesk/internal/event"
)

const maxRejectionReasons = 64

// Metrics aggregates pipeline events into counters and latency stats.
// It is an event.Listener.
type Metrics struct {
	eventCounts [event.MaxKind + 1]uint64

	reasonMu   sync.Mutex
	rejections map[string]uint64
	riskBlocks map[string]uint64

	executionLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts        map[event.Kind]uint64
	Submitted          uint64
	Rejected           uint64
	Executed           uint64
	Failed             uint64
	RiskBlocked        uint64
	QueueDrops         uint64
	CollaboratorErrors uint64
	// SuccessRate is executed / (executed + failed), zero before any outcome.
	SuccessRate      float64
	RejectionReasons map[string]uint64
	RiskBlockReasons map[string]uint64
	ExecutionLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{
		rejections: make(map[string]uint64),
		riskBlocks: make(map[string]uint64),
	}
}

// OnEvent implements event.Listener.
func (m *Metrics) OnEvent(e event.Event) {
	if m == nil {
		return
	}
	idx := int(e.Kind)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}

	switch e.Kind {
	case event.KindRejected:
		m.incReason(m.rejections, e.Reason)
	case event.KindRiskBlocked:
		m.incReason(m.riskBlocks, e.Reason)
	case event.KindExecuted, event.KindFailed:
		if e.Result != nil && e.Result.Duration > 0 {
			m.executionLatency.Observe(e.Result.Duration)
		}
	}
}

func (m *Metrics) incReason(into map[string]uint64, reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	m.reasonMu.Lock()
	defer m.reasonMu.Unlock()
	if _, ok := into[reason]; !ok && len(into) >= maxRejectionReasons {
		reason = "other"
	}
	into[reason]++
}

func (m *Metrics) count(k event.Kind) uint64 {
	return atomic.LoadUint64(&m.eventCounts[int(k)])
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	counts := make(map[event.Kind]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			counts[event.Kind(i)] = v
		}
	}

	m.reasonMu.Lock()
	rejections := make(map[string]uint64, len(m.rejections))
	for k, v := range m.rejections {
		rejections[k] = v
	}
	blocks := make(map[string]uint64, len(m.riskBlocks))
	for k, v := range m.riskBlocks {
		blocks[k] = v
	}
	m.reasonMu.Unlock()

	s := Snapshot{
		EventCounts:        counts,
		Submitted:          m.count(event.KindSubmitted),
		Rejected:           m.count(event.KindRejected),
		Executed:           m.count(event.KindExecuted),
		Failed:             m.count(event.KindFailed),
		RiskBlocked:        m.count(event.KindRiskBlocked),
		QueueDrops:         m.count(event.KindQueueFull),
		CollaboratorErrors: m.count(event.KindCollaboratorError),
		RejectionReasons:   rejections,
		RiskBlockReasons:   blocks,
		ExecutionLatency:   m.executionLatency.Snapshot(),
	}
	if outcomes := s.Executed + s.Failed; outcomes > 0 {
		s.SuccessRate = float64(s.Executed) / float64(outcomes)
	}
	return s
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
