package feature

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"

	"paperdesk/internal/schema"
	"paperdesk/pkg/exception"
)

// SignalRecord is one stored signal.
type SignalRecord struct {
	gorm.Model
	SignalID   string          `gorm:"index;size:64"`
	Symbol     string          `gorm:"index;size:32"`
	Action     string          `gorm:"size:16"`
	Priority   string          `gorm:"size:16"`
	Confidence float64
	Quantity   decimal.Decimal `gorm:"type:numeric"`
	StrategyID string          `gorm:"size:64"`
	Reasoning  string
	Metadata   string
	SignalAt   time.Time
}

// ExecutionRecord is one stored processing result.
type ExecutionRecord struct {
	gorm.Model
	SignalID   string          `gorm:"index;size:64"`
	Symbol     string          `gorm:"index;size:32"`
	Success    bool
	Status     string          `gorm:"size:16"`
	OrderID    string          `gorm:"size:64"`
	Price      decimal.Decimal `gorm:"type:numeric"`
	Quantity   decimal.Decimal `gorm:"type:numeric"`
	Error      string
	DurationMs int64
	ExecutedAt time.Time
}

// Postgres persists signals and results through gorm.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres wraps db. Call Migrate before first use on a fresh database.
func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if db == nil {
		return nil, exception.ErrNilInstance
	}
	return &Postgres{db: db}, nil
}

// Migrate creates or updates the record tables.
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.db.WithContext(ctx).AutoMigrate(&SignalRecord{}, &ExecutionRecord{}); err != nil {
		return errors.Wrap(err, "auto migrate feature records")
	}
	return nil
}

func (p *Postgres) StoreSignal(ctx context.Context, sig schema.Signal) error {
	rec, err := newSignalRecord(sig)
	if err != nil {
		return err
	}
	if err := p.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrap(err, "insert signal record").With("signal", sig.ID)
	}
	return nil
}

func (p *Postgres) StoreExecutionResult(ctx context.Context, res schema.ProcessingResult) error {
	rec := newExecutionRecord(res)
	if err := p.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrap(err, "insert execution record").With("signal", res.SignalID)
	}
	return nil
}

// RecentSignals returns the newest stored signals for symbol.
func (p *Postgres) RecentSignals(ctx context.Context, symbol string, limit int) ([]SignalRecord, error) {
	var out []SignalRecord
	q := p.db.WithContext(ctx).Order("id desc")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "query signal records")
	}
	return out, nil
}

// ExecutionsFor returns the stored results of one signal, newest first.
func (p *Postgres) ExecutionsFor(ctx context.Context, signalID string) ([]ExecutionRecord, error) {
	var out []ExecutionRecord
	err := p.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("id desc").
		Find(&out).Error
	if err != nil {
		return nil, errors.Wrap(err, "query execution records")
	}
	return out, nil
}

func newSignalRecord(sig schema.Signal) (SignalRecord, error) {
	rec := SignalRecord{
		SignalID:   sig.ID,
		Symbol:     sig.Symbol,
		Action:     sig.Action.String(),
		Priority:   sig.Priority.String(),
		Confidence: sig.Confidence,
		Quantity:   sig.Quantity,
		StrategyID: sig.StrategyID,
		Reasoning:  sig.Reasoning,
		SignalAt:   sig.Timestamp,
	}
	if len(sig.Metadata) != 0 {
		buf, err := sonic.ConfigStd.Marshal(sig.Metadata)
		if err != nil {
			return SignalRecord{}, errors.Wrap(err, "marshal signal metadata")
		}
		rec.Metadata = string(buf)
	}
	return rec, nil
}

func newExecutionRecord(res schema.ProcessingResult) ExecutionRecord {
	return ExecutionRecord{
		SignalID:   res.SignalID,
		Symbol:     res.Symbol,
		Success:    res.Success,
		Status:     res.Status.String(),
		OrderID:    res.OrderID,
		Price:      res.Price,
		Quantity:   res.Quantity,
		Error:      res.Error,
		DurationMs: res.Duration.Milliseconds(),
		ExecutedAt: res.Timestamp,
	}
}
