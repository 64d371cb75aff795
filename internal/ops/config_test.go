package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/pkg/exception"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	l := Default()
	require.NoError(t, l.Validate())
	assert.Equal(t, 3, l.Pipeline.MaxConcurrent)
	assert.Equal(t, 100, l.Pipeline.QueueCapacity)
	assert.True(t, l.Pipeline.RiskChecks)
	assert.True(t, decimal.NewFromInt(10000).Equal(l.Venue.InitialBalance))
	assert.Equal(t, 10, l.Risk.MaxDailyTrades)
	assert.Nil(t, l.Feature.Postgres)
}

func TestParseOverridesOnlyPresentFields(t *testing.T) {
	l, err := Parse([]byte(`{
		"pipeline": {"maxConcurrent": 5, "interval": "250ms", "riskChecks": false, "defaultQuantity": "0.05"},
		"venue": {"maxLeverage": 3, "symbolAllowlist": ["BTCUSDT"], "feed": {"interval": "2s", "seed": 7}},
		"risk": {"maxDailyTrades": 4, "cooldown": "30s"},
		"validator": {"maxAge": "1m"},
		"featureStore": {"maxHistory": 50}
	}`))
	require.NoError(t, err)

	assert.Equal(t, 5, l.Pipeline.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, l.Pipeline.Interval)
	assert.False(t, l.Pipeline.RiskChecks)
	assert.True(t, decimal.RequireFromString("0.05").Equal(l.Pipeline.DefaultQuantity))
	assert.Equal(t, 100, l.Pipeline.QueueCapacity)

	assert.True(t, decimal.NewFromInt(3).Equal(l.Venue.Risk.MaxLeverage))
	assert.True(t, decimal.NewFromInt(15).Equal(l.Venue.Risk.TakerFeeBps))
	assert.Equal(t, []string{"BTCUSDT"}, l.Venue.Risk.SymbolAllowlist)
	assert.Equal(t, 2*time.Second, l.Venue.Feed.Interval)
	assert.Equal(t, int64(7), l.Venue.Feed.Seed)
	assert.Equal(t, "BTCUSDT", l.Venue.Feed.Symbol)

	assert.Equal(t, 4, l.Risk.MaxDailyTrades)
	assert.Equal(t, 30*time.Second, l.Risk.Cooldown)
	assert.Equal(t, 0.1, l.Risk.MaxDrawdown)

	assert.Equal(t, time.Minute, l.Validator.MaxAge)
	assert.Equal(t, 0.6, l.Validator.MinConfidence)
	assert.Equal(t, 50, l.Feature.MaxHistory)
}

func TestParseRejectsInvalid(t *testing.T) {
	testCases := []struct {
		desc string
		json string
	}{
		{"bad duration", `{"pipeline": {"interval": "soon"}}`},
		{"zero concurrency", `{"pipeline": {"maxConcurrent": 0}}`},
		{"negative balance", `{"venue": {"initialBalance": -1}}`},
		{"drawdown above one", `{"risk": {"maxDrawdown": 2}}`},
		{"confidence above one", `{"validator": {"minConfidence": 1.5}}`},
		{"start outside bounds", `{"venue": {"feed": {"startPrice": 500}}}`},
		{"malformed", `{"pipeline": `},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Parse([]byte(tc.json))
			assert.Error(t, err)
		})
	}
}

func TestPostgresSection(t *testing.T) {
	l, err := Parse([]byte(`{"featureStore": {"postgres": {"enabled": true, "host": "db", "database": "desk", "maxOpenConns": 4}}}`))
	require.NoError(t, err)
	require.NotNil(t, l.Feature.Postgres)
	assert.Equal(t, "db", l.Feature.Postgres.Host)
	assert.Equal(t, 4, l.Feature.Postgres.MaxOpenConns)

	l, err = Parse([]byte(`{"featureStore": {"postgres": {"enabled": false, "host": "db"}}}`))
	require.NoError(t, err)
	assert.Nil(t, l.Feature.Postgres)

	_, err = Parse([]byte(`{"featureStore": {"postgres": {"enabled": true}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), exception.ErrEmptyDSN.Error())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadAllPrecedence(t *testing.T) {
	path := writeFile(t, "config.json", `{"venue": {"maxLeverage": 5, "makerFeeBps": 3}}`)
	t.Setenv("PAPER_MAX_LEVERAGE", "7")
	t.Setenv("PAPER_SYMBOL_ALLOWLIST", "ETHUSDT,ADAUSDT")

	l, err := LoadAll(path, "")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(7).Equal(l.Venue.Risk.MaxLeverage))
	assert.True(t, decimal.NewFromInt(3).Equal(l.Venue.Risk.MakerFeeBps))
	assert.True(t, decimal.NewFromInt(1000).Equal(l.Venue.Risk.MaxPositionSize))
	assert.Equal(t, []string{"ETHUSDT", "ADAUSDT"}, l.Venue.Risk.SymbolAllowlist)
}

func TestApplyEnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "PAPER_TAKER_FEE_BPS=20\nPAPER_POSTGRES_DSN=postgres://paper@localhost/desk\n")

	l := Default()
	require.NoError(t, ApplyEnv(&l, envFile))
	assert.True(t, decimal.NewFromInt(20).Equal(l.Venue.Risk.TakerFeeBps))
	require.NotNil(t, l.Feature.Postgres)
	assert.Equal(t, "postgres://paper@localhost/desk", l.Feature.Postgres.ConnString)
	_, leaked := os.LookupEnv("PAPER_TAKER_FEE_BPS")
	assert.False(t, leaked)
}

func TestApplyEnvFileReloads(t *testing.T) {
	envFile := writeFile(t, ".env", "PAPER_TAKER_FEE_BPS=20\n")
	l := Default()
	require.NoError(t, ApplyEnv(&l, envFile))
	assert.True(t, decimal.NewFromInt(20).Equal(l.Venue.Risk.TakerFeeBps))

	require.NoError(t, os.WriteFile(envFile, []byte("PAPER_TAKER_FEE_BPS=12\n"), 0o600))
	l = Default()
	require.NoError(t, ApplyEnv(&l, envFile))
	assert.True(t, decimal.NewFromInt(12).Equal(l.Venue.Risk.TakerFeeBps))
}

func TestApplyEnvProcessWinsOverFile(t *testing.T) {
	envFile := writeFile(t, ".env", "PAPER_TAKER_FEE_BPS=20\n")
	t.Setenv("PAPER_TAKER_FEE_BPS", "9")
	l := Default()
	require.NoError(t, ApplyEnv(&l, envFile))
	assert.True(t, decimal.NewFromInt(9).Equal(l.Venue.Risk.TakerFeeBps))
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	t.Setenv("PAPER_MAX_DAILY_LOSS", "lots")
	l := Default()
	assert.Error(t, ApplyEnv(&l, ""))

	t.Setenv("PAPER_MAX_DAILY_LOSS", "-5")
	l = Default()
	assert.Error(t, ApplyEnv(&l, ""))

	l = Default()
	assert.Error(t, ApplyEnv(&l, filepath.Join(t.TempDir(), "nope.env")))
}
