package strategy

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"paperdesk/internal/schema"
)

var randomActions = []schema.Action{
	schema.ActionBuy, schema.ActionBuy, schema.ActionSell, schema.ActionSell,
	schema.ActionHold, schema.ActionClose,
}

// Random emits a seeded mix of signals for one symbol. Buys and sells are
// twice as likely as holds and closes.
type Random struct {
	symbol string

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandom seeds from the clock when seed is zero.
func NewRandom(symbol string, seed int64) *Random {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Random{symbol: symbol, rnd: rand.New(rand.NewSource(seed))}
}

// Next returns a fresh signal stamped now. Quantity is left zero so the
// pipeline default applies.
func (r *Random) Next(now time.Time) schema.Signal {
	r.mu.Lock()
	action := randomActions[r.rnd.Intn(len(randomActions))]
	confidence := 0.4 + 0.6*r.rnd.Float64()
	priority := schema.Priority(1 + r.rnd.Intn(int(schema.PriorityCritical)))
	r.mu.Unlock()

	return schema.Signal{
		ID:         uuid.NewString(),
		Symbol:     r.symbol,
		Action:     action,
		Confidence: confidence,
		Reasoning:  "synthetic",
		StrategyID: "random",
		Priority:   priority,
		Timestamp:  now,
		Metadata:   map[string]string{"source": "strategy.random"},
	}
}
