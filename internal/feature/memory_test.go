package feature

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/internal/schema"
)

func sig(id, symbol string) schema.Signal {
	return schema.Signal{ID: id, Symbol: symbol, Action: schema.ActionBuy, Confidence: 0.7, Metadata: map[string]string{"k": "v"}}
}

func result(id, symbol string, ok bool, d time.Duration) schema.ProcessingResult {
	return schema.ProcessingResult{SignalID: id, Symbol: symbol, Success: ok, Duration: d}
}

func TestMemoryHistoryNewestFirst(t *testing.T) {
	m := NewMemory(0)
	ctx := t.Context()
	require.NoError(t, m.StoreSignal(ctx, sig("a", "BTCUSDT")))
	require.NoError(t, m.StoreSignal(ctx, sig("b", "ETHUSDT")))
	require.NoError(t, m.StoreSignal(ctx, sig("c", "BTCUSDT")))

	got := m.SignalHistory("btcusdt", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)

	assert.Len(t, m.SignalHistory("", 2), 2)
	assert.Empty(t, m.SignalHistory("DOTUSDT", 0))
}

func TestMemoryStoresCopies(t *testing.T) {
	m := NewMemory(0)
	s := sig("a", "BTCUSDT")
	require.NoError(t, m.StoreSignal(t.Context(), s))
	s.Metadata["k"] = "changed"

	assert.Equal(t, "v", m.SignalHistory("", 1)[0].Metadata["k"])
}

func TestMemoryIsBounded(t *testing.T) {
	m := NewMemory(3)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("s%d", i)
		require.NoError(t, m.StoreSignal(t.Context(), sig(id, "BTCUSDT")))
		require.NoError(t, m.StoreExecutionResult(t.Context(), result(id, "BTCUSDT", true, time.Millisecond)))
	}
	signals, results := m.Len()
	assert.Equal(t, 3, signals)
	assert.Equal(t, 3, results)
	assert.Equal(t, "s2", m.SignalHistory("", 0)[2].ID)

	m.Clear()
	signals, results = m.Len()
	assert.Zero(t, signals)
	assert.Zero(t, results)
}

func TestMemoryExecutionHistoryAndPerformance(t *testing.T) {
	m := NewMemory(0)
	ctx := t.Context()
	require.NoError(t, m.StoreExecutionResult(ctx, result("a", "BTCUSDT", true, 10*time.Millisecond)))
	require.NoError(t, m.StoreExecutionResult(ctx, result("a", "BTCUSDT", false, 30*time.Millisecond)))
	require.NoError(t, m.StoreExecutionResult(ctx, result("b", "ETHUSDT", true, 50*time.Millisecond)))

	hist := m.ExecutionHistory("a", 0)
	require.Len(t, hist, 2)
	assert.False(t, hist[0].Success)

	p := m.Performance("BTCUSDT")
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, 1, p.Succeeded)
	assert.Equal(t, 1, p.Failed)
	assert.InDelta(t, 0.5, p.SuccessRate, 1e-9)
	assert.Equal(t, 20*time.Millisecond, p.AverageDuration)

	all := m.Performance("")
	assert.Equal(t, 3, all.Total)
	assert.Zero(t, m.Performance("ADAUSDT").SuccessRate)
}

type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) StoreSignal(context.Context, schema.Signal) error {
	f.calls++
	return f.err
}

func (f *failingStore) StoreExecutionResult(context.Context, schema.ProcessingResult) error {
	f.calls++
	return f.err
}

func TestFanoutCallsEveryStore(t *testing.T) {
	boom := errors.New("boom")
	bad := &failingStore{err: boom}
	mem := NewMemory(0)
	f := Fanout{bad, nil, mem}

	err := f.StoreSignal(t.Context(), sig("a", "BTCUSDT"))
	assert.ErrorIs(t, err, boom)
	err = f.StoreExecutionResult(t.Context(), result("a", "BTCUSDT", true, 0))
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 2, bad.calls)
	signals, results := mem.Len()
	assert.Equal(t, 1, signals)
	assert.Equal(t, 1, results)

	assert.NoError(t, Fanout{mem}.StoreSignal(t.Context(), sig("b", "BTCUSDT")))
}

func TestRecordConversion(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := sig("a", "BTCUSDT")
	s.Priority = schema.PriorityHigh
	s.Quantity = decimal.RequireFromString("0.25")
	s.Timestamp = at

	rec, err := newSignalRecord(s)
	require.NoError(t, err)
	assert.Equal(t, "buy", rec.Action)
	assert.Equal(t, "high", rec.Priority)
	assert.JSONEq(t, `{"k":"v"}`, rec.Metadata)
	assert.True(t, rec.Quantity.Equal(s.Quantity))
	assert.Equal(t, at, rec.SignalAt)

	er := newExecutionRecord(schema.ProcessingResult{
		SignalID: "a",
		Status:   schema.SignalStatusExecuted,
		Duration: 1500 * time.Millisecond,
	})
	assert.Equal(t, "executed", er.Status)
	assert.Equal(t, int64(1500), er.DurationMs)
}
