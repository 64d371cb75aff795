package venue

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// RiskConfig holds the venue's pre-trade limits and fee schedule. The
// env tags name the PAPER_* overrides applied on top of a loaded config.
type RiskConfig struct {
	MaxPositionSize decimal.Decimal `json:"maxPositionSize" env:"MAX_POSITION_SIZE"`
	MaxDailyLoss    decimal.Decimal `json:"maxDailyLoss" env:"MAX_DAILY_LOSS"`
	MaxLeverage     decimal.Decimal `json:"maxLeverage" env:"MAX_LEVERAGE"`
	SymbolAllowlist []string        `json:"symbolAllowlist" env:"SYMBOL_ALLOWLIST"`
	MakerFeeBps     decimal.Decimal `json:"makerFeeBps" env:"MAKER_FEE_BPS"`
	TakerFeeBps     decimal.Decimal `json:"takerFeeBps" env:"TAKER_FEE_BPS"`
}

// Allows reports whether symbol is on the allow-list.
func (c RiskConfig) Allows(symbol string) bool {
	for _, s := range c.SymbolAllowlist {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

func (c RiskConfig) clone() RiskConfig {
	c.SymbolAllowlist = append([]string(nil), c.SymbolAllowlist...)
	return c
}

// FeedConfig shapes the synthetic price walk.
type FeedConfig struct {
	Symbol     string          `json:"symbol"`
	StartPrice decimal.Decimal `json:"startPrice"`
	Floor      decimal.Decimal `json:"floor"`
	Ceiling    decimal.Decimal `json:"ceiling"`
	// MaxStep is the full width of the uniform step, centred on zero.
	MaxStep  decimal.Decimal `json:"maxStep"`
	Interval time.Duration   `json:"interval"`
	Seed     int64           `json:"seed"`
}

// Config configures an Engine.
type Config struct {
	InitialBalance decimal.Decimal `json:"initialBalance"`
	Risk           RiskConfig      `json:"risk"`
	Feed           FeedConfig      `json:"feed"`
}

// DefaultRiskConfig returns the stock limits.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPositionSize: decimal.NewFromInt(1000),
		MaxDailyLoss:    decimal.NewFromInt(500),
		MaxLeverage:     decimal.NewFromInt(10),
		SymbolAllowlist: []string{"BTCUSDT", "ETHUSDT", "ADAUSDT"},
		MakerFeeBps:     decimal.NewFromInt(10),
		TakerFeeBps:     decimal.NewFromInt(15),
	}
}

// DefaultConfig returns a 10,000 balance venue quoting 50,000.
func DefaultConfig() Config {
	return Config{
		InitialBalance: decimal.NewFromInt(10000),
		Risk:           DefaultRiskConfig(),
		Feed: FeedConfig{
			Symbol:     "BTCUSDT",
			StartPrice: decimal.NewFromInt(50000),
			Floor:      decimal.NewFromInt(1000),
			Ceiling:    decimal.NewFromInt(100000),
			MaxStep:    decimal.NewFromInt(100),
			Interval:   time.Second,
		},
	}
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if !c.InitialBalance.IsPositive() {
		return errors.New("initialBalance must be > 0")
	}
	if c.Risk.MaxLeverage.IsNegative() || c.Risk.MaxPositionSize.IsNegative() || c.Risk.MaxDailyLoss.IsNegative() {
		return errors.New("risk limits must be >= 0")
	}
	if c.Risk.MakerFeeBps.IsNegative() || c.Risk.TakerFeeBps.IsNegative() {
		return errors.New("fee bps must be >= 0")
	}
	if len(c.Risk.SymbolAllowlist) == 0 {
		return errors.New("symbolAllowlist must not be empty")
	}
	f := c.Feed
	if !f.Floor.IsPositive() || f.Ceiling.LessThan(f.Floor) {
		return errors.Errorf("feed bounds invalid: floor=%s ceiling=%s", f.Floor, f.Ceiling)
	}
	if f.StartPrice.LessThan(f.Floor) || f.StartPrice.GreaterThan(f.Ceiling) {
		return errors.Errorf("feed startPrice %s outside [%s, %s]", f.StartPrice, f.Floor, f.Ceiling)
	}
	if f.MaxStep.IsNegative() {
		return errors.New("feed maxStep must be >= 0")
	}
	if f.Interval <= 0 {
		return errors.New("feed interval must be > 0")
	}
	return nil
}
