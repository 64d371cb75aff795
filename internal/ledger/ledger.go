package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"paperdesk/internal/schema"
)

const dayLayout = "2006-01-02"

// Account is the cash view of the simulated venue.
//
// Equity = Balance + UnrealizedPnL - AccruedFees
// TotalPnL = RealizedPnL + UnrealizedPnL
type Account struct {
	Balance       decimal.Decimal `json:"balance"`
	Equity        decimal.Decimal `json:"equity"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	TotalPnL      decimal.Decimal `json:"totalPnl"`
	DailyPnL      decimal.Decimal `json:"dailyPnl"`
	TotalFees     decimal.Decimal `json:"totalFees"`
	AccruedFees   decimal.Decimal `json:"accruedFees"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Trade is a fill as seen by the ledger.
type Trade struct {
	Symbol   string
	Side     schema.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Fee      decimal.Decimal
	At       time.Time
}

// Ledger holds positions and the account. It is not safe for concurrent
// use; the owner serializes access.
type Ledger struct {
	initialBalance decimal.Decimal
	account        Account
	positions      map[string]*Position
	markPrice      decimal.Decimal
	day            string
}

// New creates a flat ledger funded with initialBalance.
func New(initialBalance decimal.Decimal) *Ledger {
	l := &Ledger{initialBalance: initialBalance}
	l.Reset(time.Time{})
	return l
}

// Reset clears positions and restores the initial balance.
func (l *Ledger) Reset(at time.Time) {
	l.positions = make(map[string]*Position)
	l.markPrice = decimal.Zero
	l.day = ""
	l.account = Account{
		Balance:   l.initialBalance,
		Equity:    l.initialBalance,
		UpdatedAt: at,
	}
	if !at.IsZero() {
		l.day = at.UTC().Format(dayLayout)
	}
}

// Roll starts a new daily P&L period when at falls on a later UTC day.
func (l *Ledger) Roll(at time.Time) {
	if at.IsZero() {
		return
	}
	day := at.UTC().Format(dayLayout)
	if day != l.day {
		l.day = day
		l.account.DailyPnL = decimal.Zero
	}
}

// ApplyFill books t and returns the P&L it realized.
func (l *Ledger) ApplyFill(t Trade) decimal.Decimal {
	l.Roll(t.At)

	signed := t.Quantity
	if t.Side == schema.SideSell {
		signed = signed.Neg()
	}

	realized := decimal.Zero
	pos, ok := l.positions[t.Symbol]
	if !ok {
		l.positions[t.Symbol] = &Position{
			Symbol:       t.Symbol,
			Side:         sideOf(signed),
			Quantity:     t.Quantity,
			AveragePrice: t.Price,
			TotalFees:    t.Fee,
			UpdatedAt:    t.At,
		}
	} else {
		cur := pos.Net()
		next := cur.Add(signed)
		switch {
		case next.IsZero():
			realized = pos.pnl(t.Price, pos.Quantity)
			delete(l.positions, t.Symbol)
		case cur.Sign() == signed.Sign():
			cost := pos.AveragePrice.Mul(pos.Quantity).Add(t.Price.Mul(t.Quantity))
			pos.Quantity = next.Abs()
			pos.AveragePrice = cost.Div(pos.Quantity)
		case cur.Sign() == next.Sign():
			realized = pos.pnl(t.Price, t.Quantity)
			pos.Quantity = next.Abs()
			pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		default:
			realized = pos.pnl(t.Price, pos.Quantity)
			pos.RealizedPnL = pos.RealizedPnL.Add(realized)
			pos.Side = sideOf(next)
			pos.Quantity = next.Abs()
			pos.AveragePrice = t.Price
		}
		if p, open := l.positions[t.Symbol]; open {
			p.TotalFees = p.TotalFees.Add(t.Fee)
			p.UpdatedAt = t.At
		}
	}

	l.account.RealizedPnL = l.account.RealizedPnL.Add(realized)
	l.account.DailyPnL = l.account.DailyPnL.Add(realized)
	l.account.TotalFees = l.account.TotalFees.Add(t.Fee)
	l.account.AccruedFees = l.account.AccruedFees.Add(t.Fee)

	mark := l.markPrice
	if mark.IsZero() {
		mark = t.Price
	}
	l.Mark(mark, t.At)
	return realized
}

// Mark revalues every open position at price and refreshes the account.
func (l *Ledger) Mark(price decimal.Decimal, at time.Time) {
	l.Roll(at)
	l.markPrice = price

	unrealized := decimal.Zero
	for _, pos := range l.positions {
		pos.UnrealizedPnL = pos.pnl(price, pos.Quantity)
		unrealized = unrealized.Add(pos.UnrealizedPnL)
	}
	l.account.UnrealizedPnL = unrealized
	l.account.TotalPnL = l.account.RealizedPnL.Add(unrealized)
	l.account.Equity = l.account.Balance.Add(unrealized).Sub(l.account.AccruedFees)
	if !at.IsZero() {
		l.account.UpdatedAt = at
	}
}

// Account returns a copy of the account.
func (l *Ledger) Account() Account {
	return l.account
}

// Position returns a copy of the open position in symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// NetQuantity returns the signed position in symbol, zero when flat.
func (l *Ledger) NetQuantity(symbol string) decimal.Decimal {
	pos, ok := l.positions[symbol]
	if !ok {
		return decimal.Zero
	}
	return pos.Net()
}

// Positions returns copies of every open position ordered by symbol.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
