package pipeline

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Config tunes the dispatch loop.
type Config struct {
	// MaxConcurrent bounds the signals in flight at once.
	MaxConcurrent int           `json:"maxConcurrent"`
	Interval      time.Duration `json:"interval"`
	QueueCapacity int           `json:"queueCapacity"`
	RiskChecks    bool          `json:"riskChecks"`
	// DefaultQuantity is applied to submitted signals without a quantity.
	DefaultQuantity decimal.Decimal `json:"defaultQuantity"`
}

// DefaultConfig returns the stock dispatch settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:   3,
		Interval:        time.Second,
		QueueCapacity:   100,
		RiskChecks:      true,
		DefaultQuantity: decimal.RequireFromString("0.01"),
	}
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.MaxConcurrent <= 0 {
		return errors.New("maxConcurrent must be > 0")
	}
	if c.Interval <= 0 {
		return errors.New("interval must be > 0")
	}
	if c.QueueCapacity <= 0 {
		return errors.New("queueCapacity must be > 0")
	}
	if c.DefaultQuantity.IsNegative() {
		return errors.New("defaultQuantity must be >= 0")
	}
	return nil
}
