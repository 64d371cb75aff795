package risk

import (
	"time"

	"github.com/yanun0323/errors"
)

// Config defines the guard's limits.
type Config struct {
	MaxDailyTrades int     `json:"maxDailyTrades"`
	MaxDrawdown    float64 `json:"maxDrawdown"`
	// MaxPositionSize is the largest order notional as a fraction of balance.
	MaxPositionSize float64 `json:"maxPositionSize"`
	MinConfidence   float64 `json:"minConfidence"`
	// WarnScore is the risk score above which an allowed signal raises a warning.
	WarnScore float64       `json:"warnScore"`
	Cooldown  time.Duration `json:"cooldown"`
	// EmergencyDrawdown engages the emergency stop when reached. Zero disables it.
	EmergencyDrawdown float64 `json:"emergencyDrawdown"`
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxDailyTrades:  10,
		MaxDrawdown:     0.1,
		MaxPositionSize: 0.05,
		MinConfidence:   0.6,
		WarnScore:       0.7,
	}
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.MaxDailyTrades < 0 {
		return errors.New("maxDailyTrades must be >= 0")
	}
	if c.MaxDrawdown < 0 || c.MaxDrawdown > 1 {
		return errors.New("maxDrawdown must be between 0 and 1")
	}
	if c.MaxPositionSize < 0 {
		return errors.New("maxPositionSize must be >= 0")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return errors.New("minConfidence must be between 0 and 1")
	}
	if c.Cooldown < 0 {
		return errors.New("cooldown must be >= 0")
	}
	return nil
}

// ConfigPatch carries a partial update. Nil fields are left unchanged.
type ConfigPatch struct {
	MaxDailyTrades    *int           `json:"maxDailyTrades"`
	MaxDrawdown       *float64       `json:"maxDrawdown"`
	MaxPositionSize   *float64       `json:"maxPositionSize"`
	MinConfidence     *float64       `json:"minConfidence"`
	WarnScore         *float64       `json:"warnScore"`
	Cooldown          *time.Duration `json:"cooldown"`
	EmergencyDrawdown *float64       `json:"emergencyDrawdown"`
}

// Apply returns c with every non-nil field of p applied.
func (p ConfigPatch) Apply(c Config) Config {
	if p.MaxDailyTrades != nil {
		c.MaxDailyTrades = *p.MaxDailyTrades
	}
	if p.MaxDrawdown != nil {
		c.MaxDrawdown = *p.MaxDrawdown
	}
	if p.MaxPositionSize != nil {
		c.MaxPositionSize = *p.MaxPositionSize
	}
	if p.MinConfidence != nil {
		c.MinConfidence = *p.MinConfidence
	}
	if p.WarnScore != nil {
		c.WarnScore = *p.WarnScore
	}
	if p.Cooldown != nil {
		c.Cooldown = *p.Cooldown
	}
	if p.EmergencyDrawdown != nil {
		c.EmergencyDrawdown = *p.EmergencyDrawdown
	}
	return c
}

// PatchFrom builds a patch that sets every field of c.
func PatchFrom(c Config) ConfigPatch {
	return ConfigPatch{
		MaxDailyTrades:    &c.MaxDailyTrades,
		MaxDrawdown:       &c.MaxDrawdown,
		MaxPositionSize:   &c.MaxPositionSize,
		MinConfidence:     &c.MinConfidence,
		WarnScore:         &c.WarnScore,
		Cooldown:          &c.Cooldown,
		EmergencyDrawdown: &c.EmergencyDrawdown,
	}
}
