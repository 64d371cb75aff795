package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"paperdesk/internal/event"
	"paperdesk/internal/ledger"
	"paperdesk/internal/schema"
)

const (
	maxAlerts  = 100
	alertRatio = 0.8
	dayLayout  = "2006-01-02"
)

// Reason explains a risk refusal.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonEmergencyStop
	ReasonDailyTradeLimit
	ReasonDrawdown
	ReasonPositionSize
	ReasonConfidence
	ReasonCooldown
)

func (r Reason) String() string {
	switch r {
	case ReasonEmergencyStop:
		return "emergency_stop"
	case ReasonDailyTradeLimit:
		return "daily_trade_limit"
	case ReasonDrawdown:
		return "drawdown"
	case ReasonPositionSize:
		return "position_size"
	case ReasonConfidence:
		return "confidence"
	case ReasonCooldown:
		return "cooldown"
	default:
		return "none"
	}
}

// Decision is the guard's verdict on one signal.
type Decision struct {
	Allowed bool
	// Reason is the first failed check.
	Reason Reason
	Detail string
	Score  float64
}

// Portfolio is the account view the guard measures against.
type Portfolio interface {
	Account() ledger.Account
	CurrentPrice() decimal.Decimal
}

// Status is a snapshot of the guard.
type Status struct {
	EmergencyStop  bool
	DailyTrades    int
	MaxDailyTrades int
	Drawdown       float64
	PeakEquity     decimal.Decimal
	LastTradeAt    time.Time
	Alerts         []string
	Config         Config
}

type check struct {
	reason Reason
	weight float64
	score  float64
	detail string
	failed bool
}

// Guard applies pre-execution risk checks to signals.
type Guard struct {
	mu          sync.Mutex
	cfg         Config
	portfolio   Portfolio
	hub         *event.Hub
	now         func() time.Time
	emergency   bool
	dailyTrades int
	day         string
	lastTrade   time.Time
	peak        decimal.Decimal
	drawdown    float64
	alerts      []string
}

// NewGuard creates a guard. portfolio and hub may be nil; without a
// portfolio the drawdown and position checks pass with a neutral score.
func NewGuard(cfg Config, portfolio Portfolio, hub *event.Hub, now func() time.Time) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{cfg: cfg, portfolio: portfolio, hub: hub, now: now}, nil
}

// CheckSignal evaluates sig. Every check runs; the decision reports the
// first failure and a weighted score over all of them.
func (g *Guard) CheckSignal(ctx context.Context, sig schema.Signal) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	var alerts []string
	g.mu.Lock()
	if g.emergency {
		g.mu.Unlock()
		return Decision{Reason: ReasonEmergencyStop, Detail: "emergency stop active", Score: 1}, nil
	}

	now := g.now()
	g.roll(now)

	var account ledger.Account
	var price decimal.Decimal
	if g.portfolio != nil {
		account = g.portfolio.Account()
		price = g.portfolio.CurrentPrice()
	}

	checks := []check{
		g.checkDailyTrades(),
		g.checkDrawdown(account, &alerts),
		g.checkPositionSize(sig, account, price),
		g.checkConfidence(sig),
		g.checkCooldown(now),
	}
	drawdown := g.drawdown
	tripped := g.cfg.EmergencyDrawdown > 0 && drawdown >= g.cfg.EmergencyDrawdown
	if tripped {
		g.emergency = true
	}
	cfg := g.cfg
	g.mu.Unlock()

	for _, a := range alerts {
		g.addAlert(a)
	}
	if tripped {
		logs.Errorf("emergency stop engaged by drawdown, drawdown: %.4f", drawdown)
		g.publish(event.Event{Kind: event.KindEmergencyStop, Active: true, Reason: ReasonDrawdown.String()})
	}

	d := Decision{Allowed: true, Score: score(checks, sig.Priority)}
	var details []string
	for _, c := range checks {
		if !c.failed {
			continue
		}
		if d.Allowed {
			d.Allowed = false
			d.Reason = c.reason
		}
		details = append(details, c.detail)
	}
	d.Detail = strings.Join(details, "; ")

	if d.Allowed && cfg.WarnScore > 0 && d.Score > cfg.WarnScore {
		s := sig.Clone()
		g.publish(event.Event{Kind: event.KindRiskWarning, SignalID: sig.ID, Signal: &s, Score: d.Score})
	}
	return d, nil
}

func (g *Guard) roll(now time.Time) {
	day := now.UTC().Format(dayLayout)
	if day != g.day {
		g.day = day
		g.dailyTrades = 0
	}
}

func (g *Guard) checkDailyTrades() check {
	c := check{reason: ReasonDailyTradeLimit, weight: 0.2, score: 0.1}
	if g.cfg.MaxDailyTrades > 0 && g.dailyTrades >= g.cfg.MaxDailyTrades {
		c.failed = true
		c.score = 0.9
		c.detail = fmt.Sprintf("daily trade limit reached (%d/%d)", g.dailyTrades, g.cfg.MaxDailyTrades)
	}
	return c
}

func (g *Guard) checkDrawdown(account ledger.Account, alerts *[]string) check {
	c := check{reason: ReasonDrawdown, weight: 0.3, score: 0.5}
	if g.portfolio == nil || !account.Equity.IsPositive() {
		return c
	}
	if account.Equity.GreaterThan(g.peak) {
		g.peak = account.Equity
	}
	g.drawdown = g.peak.Sub(account.Equity).Div(g.peak).InexactFloat64()
	if g.cfg.MaxDrawdown <= 0 {
		c.score = 0
		return c
	}
	c.score = g.drawdown / g.cfg.MaxDrawdown
	switch {
	case g.drawdown >= g.cfg.MaxDrawdown:
		c.failed = true
		c.score = 0.95
		c.detail = fmt.Sprintf("drawdown %.2f%% >= %.2f%%", g.drawdown*100, g.cfg.MaxDrawdown*100)
	case g.drawdown >= g.cfg.MaxDrawdown*alertRatio:
		*alerts = append(*alerts, fmt.Sprintf("high drawdown warning: %.2f%%", g.drawdown*100))
	}
	return c
}

func (g *Guard) checkPositionSize(sig schema.Signal, account ledger.Account, price decimal.Decimal) check {
	c := check{reason: ReasonPositionSize, weight: 0.2, score: 0.3}
	if g.portfolio == nil || g.cfg.MaxPositionSize <= 0 || !account.Balance.IsPositive() {
		return c
	}
	if sig.Action != schema.ActionBuy && sig.Action != schema.ActionSell {
		c.score = 0
		return c
	}
	ratio := sig.Quantity.Mul(price).Div(account.Balance).InexactFloat64()
	c.score = ratio / g.cfg.MaxPositionSize
	if ratio > g.cfg.MaxPositionSize {
		c.failed = true
		c.score = 0.8
		c.detail = fmt.Sprintf("position size %.2f%% > %.2f%%", ratio*100, g.cfg.MaxPositionSize*100)
	}
	return c
}

func (g *Guard) checkConfidence(sig schema.Signal) check {
	c := check{reason: ReasonConfidence, weight: 0.15, score: 1 - sig.Confidence}
	if sig.Confidence < g.cfg.MinConfidence {
		c.failed = true
		c.score = 0.7
		c.detail = fmt.Sprintf("confidence %.2f < %.2f", sig.Confidence, g.cfg.MinConfidence)
	}
	return c
}

func (g *Guard) checkCooldown(now time.Time) check {
	c := check{reason: ReasonCooldown, weight: 0.05, score: 0.1}
	if g.cfg.Cooldown <= 0 || g.lastTrade.IsZero() {
		return c
	}
	if elapsed := now.Sub(g.lastTrade); elapsed < g.cfg.Cooldown {
		c.failed = true
		c.score = 0.4
		c.detail = fmt.Sprintf("cooldown active (%s remaining)", (g.cfg.Cooldown - elapsed).Round(time.Second))
	}
	return c
}

func score(checks []check, p schema.Priority) float64 {
	var total, weights float64
	for _, c := range checks {
		total += c.score * c.weight
		weights += c.weight
	}
	if weights == 0 {
		return 0
	}
	s := total / weights
	switch p {
	case schema.PriorityCritical:
		s *= 0.8
	case schema.PriorityHigh:
		s *= 0.9
	case schema.PriorityLow:
		s *= 1.2
	}
	return min(max(s, 0), 1)
}

// IncrementTradeCount records one executed trade.
func (g *Guard) IncrementTradeCount() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.roll(now)
	g.dailyTrades++
	g.lastTrade = now
}

// SetEmergencyStop engages or releases the emergency stop.
func (g *Guard) SetEmergencyStop(active bool) {
	g.mu.Lock()
	changed := g.emergency != active
	g.emergency = active
	g.mu.Unlock()

	if !changed {
		return
	}
	if active {
		logs.Errorf("emergency stop engaged")
	} else {
		logs.Info("emergency stop released")
	}
	g.publish(event.Event{Kind: event.KindEmergencyStop, Active: active})
}

// EmergencyStop reports whether the emergency stop is engaged.
func (g *Guard) EmergencyStop() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emergency
}

// Status returns a snapshot of counters, limits and alerts.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roll(g.now())
	return Status{
		EmergencyStop:  g.emergency,
		DailyTrades:    g.dailyTrades,
		MaxDailyTrades: g.cfg.MaxDailyTrades,
		Drawdown:       g.drawdown,
		PeakEquity:     g.peak,
		LastTradeAt:    g.lastTrade,
		Alerts:         append([]string(nil), g.alerts...),
		Config:         g.cfg,
	}
}

// Alerts returns the retained alerts, oldest first.
func (g *Guard) Alerts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.alerts...)
}

// AddAlert records an operator-visible alert.
func (g *Guard) AddAlert(alert string) {
	g.addAlert(alert)
}

func (g *Guard) addAlert(alert string) {
	g.mu.Lock()
	g.alerts = append(g.alerts, alert)
	if over := len(g.alerts) - maxAlerts; over > 0 {
		g.alerts = append([]string(nil), g.alerts[over:]...)
	}
	g.mu.Unlock()
	g.publish(event.Event{Kind: event.KindRiskAlert, Reason: alert})
}

// UpdateConfig applies a partial config update. The update is rejected
// when the result is invalid.
func (g *Guard) UpdateConfig(patch ConfigPatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	next := patch.Apply(g.cfg)
	if err := next.Validate(); err != nil {
		return err
	}
	g.cfg = next
	return nil
}

// Config returns the active limits.
func (g *Guard) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Reset clears counters, alerts and the emergency stop.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.emergency = false
	g.dailyTrades = 0
	g.lastTrade = time.Time{}
	g.alerts = nil
	g.peak = decimal.Zero
	g.drawdown = 0
	g.mu.Unlock()
	logs.Info("risk guard reset")
}

func (g *Guard) publish(e event.Event) {
	if g.hub != nil {
		g.hub.Publish(e)
	}
}
