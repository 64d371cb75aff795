package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/internal/schema"
)

var now = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func validSignal() schema.Signal {
	return schema.Signal{
		ID:         "sig-1",
		Symbol:     "BTCUSDT",
		Action:     schema.ActionBuy,
		Confidence: 0.8,
		Reasoning:  "breakout above range",
		Timestamp:  now.Add(-5 * time.Second),
	}
}

func newValidator() *Validator {
	return New(DefaultConfig(), func() time.Time { return now })
}

func rejection(t *testing.T, err error) *RejectionError {
	t.Helper()
	var re *RejectionError
	require.True(t, errors.As(err, &re), "want *RejectionError, got %v", err)
	return re
}

func TestValidSignalPasses(t *testing.T) {
	require.NoError(t, newValidator().Validate(t.Context(), validSignal()))
}

func TestRules(t *testing.T) {
	testCases := []struct {
		desc   string
		mutate func(*schema.Signal)
		rule   string
	}{
		{"missing id", func(s *schema.Signal) { s.ID = "" }, RuleBasicFields},
		{"missing reasoning", func(s *schema.Signal) { s.Reasoning = "  " }, RuleBasicFields},
		{"missing timestamp", func(s *schema.Signal) { s.Timestamp = time.Time{} }, RuleBasicFields},
		{"low confidence", func(s *schema.Signal) { s.Confidence = 0.59 }, RuleConfidenceThreshold},
		{"confidence above one", func(s *schema.Signal) { s.Confidence = 1.01 }, RuleConfidenceThreshold},
		{"stale", func(s *schema.Signal) { s.Timestamp = now.Add(-31 * time.Second) }, RuleSignalAge},
		{"bad symbol", func(s *schema.Signal) { s.Symbol = "btc-usd" }, RuleSymbolFormat},
		{"unknown action", func(s *schema.Signal) { s.Action = schema.Action(42) }, RuleActionValidity},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			s := validSignal()
			tc.mutate(&s)
			re := rejection(t, newValidator().Validate(t.Context(), s))
			assert.True(t, re.Failed(tc.rule), re.Error())
			assert.Equal(t, s.ID, re.SignalID)
		})
	}
}

func TestPatternSymbolAccepted(t *testing.T) {
	s := validSignal()
	s.Symbol = "SOLUSDT"
	require.NoError(t, newValidator().Validate(t.Context(), s))
}

func TestCollectsEveryFailure(t *testing.T) {
	s := validSignal()
	s.Confidence = 0.1
	s.Symbol = "nope"
	re := rejection(t, newValidator().Validate(t.Context(), s))
	require.Len(t, re.Failures, 2)
	assert.Equal(t, RuleConfidenceThreshold, re.Reason())
	assert.Contains(t, re.Error(), RuleSymbolFormat)
}

func TestAddAndRemoveRule(t *testing.T) {
	v := newValidator()
	v.AddRule("no_ada", func(_ context.Context, s schema.Signal) error {
		if s.Symbol == "ADAUSDT" {
			return errors.New("ada disabled")
		}
		return nil
	})
	assert.Equal(t, []string{RuleBasicFields, RuleConfidenceThreshold, RuleSignalAge, RuleSymbolFormat, RuleActionValidity, "no_ada"}, v.Rules())

	s := validSignal()
	s.Symbol = "ADAUSDT"
	assert.True(t, rejection(t, v.Validate(t.Context(), s)).Failed("no_ada"))

	assert.True(t, v.RemoveRule("no_ada"))
	assert.False(t, v.RemoveRule("no_ada"))
	require.NoError(t, v.Validate(t.Context(), s))

	require.True(t, v.RemoveRule(RuleSignalAge))
	s.Timestamp = now.Add(-time.Hour)
	require.NoError(t, v.Validate(t.Context(), s))
}

func TestPanickingRuleFails(t *testing.T) {
	v := newValidator()
	v.AddRule("boom", func(context.Context, schema.Signal) error { panic("bad rule") })
	re := rejection(t, v.Validate(t.Context(), validSignal()))
	assert.True(t, re.Failed("boom"))
}

func TestSetMinConfidence(t *testing.T) {
	v := newValidator()
	s := validSignal()
	s.Confidence = 0.4
	require.Error(t, v.Validate(t.Context(), s))

	v.SetMinConfidence(0.3)
	require.NoError(t, v.Validate(t.Context(), s))

	v.SetMinConfidence(5)
	s.Confidence = 0.99
	require.Error(t, v.Validate(t.Context(), s))
}
