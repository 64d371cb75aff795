package ops

import (
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"paperdesk/internal/pipeline"
	"paperdesk/internal/risk"
	"paperdesk/internal/validator"
	"paperdesk/internal/venue"
	"paperdesk/pkg/conn"
	"paperdesk/pkg/exception"
)

// FileConfig mirrors the JSON config layout. Nil fields keep their defaults.
type FileConfig struct {
	Pipeline     PipelineConfig     `json:"pipeline"`
	Venue        VenueConfig        `json:"venue"`
	Risk         RiskConfig         `json:"risk"`
	Validator    ValidatorConfig    `json:"validator"`
	FeatureStore FeatureStoreConfig `json:"featureStore"`
}

// PipelineConfig configures dispatch. Durations use time.ParseDuration syntax.
type PipelineConfig struct {
	MaxConcurrent   *int             `json:"maxConcurrent"`
	Interval        *string          `json:"interval"`
	QueueCapacity   *int             `json:"queueCapacity"`
	RiskChecks      *bool            `json:"riskChecks"`
	DefaultQuantity *decimal.Decimal `json:"defaultQuantity"`
}

// VenueConfig configures the simulated venue.
type VenueConfig struct {
	InitialBalance  *decimal.Decimal `json:"initialBalance"`
	MaxPositionSize *decimal.Decimal `json:"maxPositionSize"`
	MaxDailyLoss    *decimal.Decimal `json:"maxDailyLoss"`
	MaxLeverage     *decimal.Decimal `json:"maxLeverage"`
	SymbolAllowlist []string         `json:"symbolAllowlist"`
	MakerFeeBps     *decimal.Decimal `json:"makerFeeBps"`
	TakerFeeBps     *decimal.Decimal `json:"takerFeeBps"`
	Feed            FeedConfig       `json:"feed"`
}

// FeedConfig configures the synthetic price walk.
type FeedConfig struct {
	Symbol     *string          `json:"symbol"`
	StartPrice *decimal.Decimal `json:"startPrice"`
	Floor      *decimal.Decimal `json:"floor"`
	Ceiling    *decimal.Decimal `json:"ceiling"`
	MaxStep    *decimal.Decimal `json:"maxStep"`
	Interval   *string          `json:"interval"`
	Seed       *int64           `json:"seed"`
}

// RiskConfig configures the risk guard.
type RiskConfig struct {
	MaxDailyTrades    *int     `json:"maxDailyTrades"`
	MaxDrawdown       *float64 `json:"maxDrawdown"`
	MaxPositionSize   *float64 `json:"maxPositionSize"`
	MinConfidence     *float64 `json:"minConfidence"`
	WarnScore         *float64 `json:"warnScore"`
	Cooldown          *string  `json:"cooldown"`
	EmergencyDrawdown *float64 `json:"emergencyDrawdown"`
}

// ValidatorConfig configures the submit-time rules.
type ValidatorConfig struct {
	MinConfidence *float64 `json:"minConfidence"`
	MaxAge        *string  `json:"maxAge"`
	Symbols       []string `json:"symbols"`
}

// FeatureStoreConfig configures signal recording.
type FeatureStoreConfig struct {
	MaxHistory *int            `json:"maxHistory"`
	Postgres   *PostgresConfig `json:"postgres"`
}

// PostgresConfig enables the Postgres recorder.
type PostgresConfig struct {
	Enabled      bool              `json:"enabled"`
	DSN          string            `json:"dsn"`
	Host         string            `json:"host"`
	Port         int               `json:"port"`
	User         string            `json:"user"`
	Password     string            `json:"password"`
	Database     string            `json:"database"`
	SSLMode      string            `json:"sslMode"`
	Params       map[string]string `json:"params"`
	MaxOpenConns int               `json:"maxOpenConns"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Pipeline  pipeline.Config
	Venue     venue.Config
	Risk      risk.Config
	Validator validator.Config
	Feature   FeatureStore
}

// FeatureStore is the resolved feature store setup. Postgres is nil when
// the recorder is disabled.
type FeatureStore struct {
	MaxHistory int
	Postgres   *conn.Option
}

// Default returns the built-in configuration.
func Default() Loaded {
	return Loaded{
		Pipeline:  pipeline.DefaultConfig(),
		Venue:     venue.DefaultConfig(),
		Risk:      risk.DefaultConfig(),
		Validator: validator.DefaultConfig(),
		Feature:   FeatureStore{MaxHistory: 10000},
	}
}

// Load reads a JSON config file over the defaults.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config").With("path", path)
	}
	loaded, err := Parse(data)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "parse config").With("path", path)
	}
	return loaded, nil
}

// Parse decodes a JSON config over the defaults and validates the result.
func Parse(data []byte) (Loaded, error) {
	var cfg FileConfig
	if err := sonic.ConfigStd.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	loaded := Default()
	if err := cfg.apply(&loaded); err != nil {
		return Loaded{}, err
	}
	if err := loaded.Validate(); err != nil {
		return Loaded{}, err
	}
	return loaded, nil
}

// Validate checks every section.
func (l Loaded) Validate() error {
	if err := l.Pipeline.Validate(); err != nil {
		return errors.Wrap(err, "pipeline")
	}
	if err := l.Venue.Validate(); err != nil {
		return errors.Wrap(err, "venue")
	}
	if err := l.Risk.Validate(); err != nil {
		return errors.Wrap(err, "risk")
	}
	if l.Validator.MinConfidence < 0 || l.Validator.MinConfidence > 1 {
		return errors.New("validator: minConfidence must be between 0 and 1")
	}
	if l.Validator.MaxAge < 0 {
		return errors.New("validator: maxAge must be >= 0")
	}
	if l.Feature.MaxHistory <= 0 {
		return errors.New("featureStore: maxHistory must be > 0")
	}
	if pg := l.Feature.Postgres; pg != nil && pg.ConnString == "" && pg.Host == "" {
		return fmt.Errorf("featureStore.postgres: %w", exception.ErrEmptyDSN)
	}
	return nil
}

func (fc FileConfig) apply(l *Loaded) error {
	p := fc.Pipeline
	setInt(&l.Pipeline.MaxConcurrent, p.MaxConcurrent)
	setInt(&l.Pipeline.QueueCapacity, p.QueueCapacity)
	if p.RiskChecks != nil {
		l.Pipeline.RiskChecks = *p.RiskChecks
	}
	setDecimal(&l.Pipeline.DefaultQuantity, p.DefaultQuantity)
	if err := setDuration(&l.Pipeline.Interval, p.Interval, "pipeline.interval"); err != nil {
		return err
	}

	v := fc.Venue
	setDecimal(&l.Venue.InitialBalance, v.InitialBalance)
	setDecimal(&l.Venue.Risk.MaxPositionSize, v.MaxPositionSize)
	setDecimal(&l.Venue.Risk.MaxDailyLoss, v.MaxDailyLoss)
	setDecimal(&l.Venue.Risk.MaxLeverage, v.MaxLeverage)
	setDecimal(&l.Venue.Risk.MakerFeeBps, v.MakerFeeBps)
	setDecimal(&l.Venue.Risk.TakerFeeBps, v.TakerFeeBps)
	if len(v.SymbolAllowlist) != 0 {
		l.Venue.Risk.SymbolAllowlist = append([]string(nil), v.SymbolAllowlist...)
	}
	if v.Feed.Symbol != nil {
		l.Venue.Feed.Symbol = *v.Feed.Symbol
	}
	setDecimal(&l.Venue.Feed.StartPrice, v.Feed.StartPrice)
	setDecimal(&l.Venue.Feed.Floor, v.Feed.Floor)
	setDecimal(&l.Venue.Feed.Ceiling, v.Feed.Ceiling)
	setDecimal(&l.Venue.Feed.MaxStep, v.Feed.MaxStep)
	if v.Feed.Seed != nil {
		l.Venue.Feed.Seed = *v.Feed.Seed
	}
	if err := setDuration(&l.Venue.Feed.Interval, v.Feed.Interval, "venue.feed.interval"); err != nil {
		return err
	}

	patch, err := fc.Risk.patch()
	if err != nil {
		return err
	}
	l.Risk = patch.Apply(l.Risk)

	val := fc.Validator
	setFloat(&l.Validator.MinConfidence, val.MinConfidence)
	if len(val.Symbols) != 0 {
		l.Validator.Symbols = append([]string(nil), val.Symbols...)
	}
	if err := setDuration(&l.Validator.MaxAge, val.MaxAge, "validator.maxAge"); err != nil {
		return err
	}

	setInt(&l.Feature.MaxHistory, fc.FeatureStore.MaxHistory)
	if pg := fc.FeatureStore.Postgres; pg != nil && pg.Enabled {
		l.Feature.Postgres = &conn.Option{
			Host:         pg.Host,
			Port:         pg.Port,
			User:         pg.User,
			Password:     pg.Password,
			Database:     pg.Database,
			SSLMode:      pg.SSLMode,
			Params:       pg.Params,
			ConnString:   pg.DSN,
			MaxOpenConns: pg.MaxOpenConns,
		}
	}
	return nil
}

func (rc RiskConfig) patch() (risk.ConfigPatch, error) {
	p := risk.ConfigPatch{
		MaxDailyTrades:    rc.MaxDailyTrades,
		MaxDrawdown:       rc.MaxDrawdown,
		MaxPositionSize:   rc.MaxPositionSize,
		MinConfidence:     rc.MinConfidence,
		WarnScore:         rc.WarnScore,
		EmergencyDrawdown: rc.EmergencyDrawdown,
	}
	if rc.Cooldown != nil {
		var d time.Duration
		if err := setDuration(&d, rc.Cooldown, "risk.cooldown"); err != nil {
			return risk.ConfigPatch{}, err
		}
		p.Cooldown = &d
	}
	return p, nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setDecimal(dst *decimal.Decimal, src *decimal.Decimal) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string, field string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return errors.Wrapf(err, "invalid %s", field)
	}
	*dst = d
	return nil
}
