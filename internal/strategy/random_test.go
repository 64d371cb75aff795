package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomProducesValidSignals(t *testing.T) {
	r := NewRandom("BTCUSDT", 7)
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		sig := r.Next(now)
		require.NotEmpty(t, sig.ID)
		assert.False(t, seen[sig.ID], "duplicate id %s", sig.ID)
		seen[sig.ID] = true

		assert.Equal(t, "BTCUSDT", sig.Symbol)
		assert.True(t, sig.Action.IsAvailable())
		assert.True(t, sig.Priority.IsAvailable(), "priority %d", sig.Priority)
		assert.GreaterOrEqual(t, sig.Confidence, 0.4)
		assert.LessOrEqual(t, sig.Confidence, 1.0)
		assert.True(t, sig.Quantity.IsZero())
		assert.Equal(t, now, sig.Timestamp)
	}
}

func TestRandomIsSeeded(t *testing.T) {
	a, b := NewRandom("ETHUSDT", 42), NewRandom("ETHUSDT", 42)
	now := time.Now()
	for i := 0; i < 20; i++ {
		x, y := a.Next(now), b.Next(now)
		assert.Equal(t, x.Action, y.Action)
		assert.Equal(t, x.Priority, y.Priority)
		assert.InDelta(t, x.Confidence, y.Confidence, 1e-12)
		assert.NotEqual(t, x.ID, y.ID)
	}
}
