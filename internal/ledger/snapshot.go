package ledger

import (
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// Snapshot captures the account and open positions at a point in time.
type Snapshot struct {
	Account   Account    `json:"account"`
	Positions []Position `json:"positions"`
}

// Snapshot builds a snapshot of the current state.
func (l *Ledger) Snapshot() Snapshot {
	return Snapshot{
		Account:   l.account,
		Positions: l.Positions(),
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create snapshot dir").With("dir", dir)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "unmarshal snapshot").With("path", path)
	}
	return snap, nil
}

// CompareSnapshots reports the first difference between two snapshots.
// Timestamps are ignored.
func CompareSnapshots(expected, actual Snapshot) error {
	ea, aa := expected.Account, actual.Account
	switch {
	case !ea.Balance.Equal(aa.Balance):
		return errors.Errorf("balance mismatch: expected=%s actual=%s", ea.Balance, aa.Balance)
	case !ea.Equity.Equal(aa.Equity):
		return errors.Errorf("equity mismatch: expected=%s actual=%s", ea.Equity, aa.Equity)
	case !ea.RealizedPnL.Equal(aa.RealizedPnL):
		return errors.Errorf("realized pnl mismatch: expected=%s actual=%s", ea.RealizedPnL, aa.RealizedPnL)
	case !ea.UnrealizedPnL.Equal(aa.UnrealizedPnL):
		return errors.Errorf("unrealized pnl mismatch: expected=%s actual=%s", ea.UnrealizedPnL, aa.UnrealizedPnL)
	case !ea.TotalFees.Equal(aa.TotalFees):
		return errors.Errorf("fees mismatch: expected=%s actual=%s", ea.TotalFees, aa.TotalFees)
	}

	if len(expected.Positions) != len(actual.Positions) {
		return errors.Errorf("position count mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	want := make(map[string]Position, len(expected.Positions))
	for _, p := range expected.Positions {
		want[p.Symbol] = p
	}
	for _, got := range actual.Positions {
		p, ok := want[got.Symbol]
		if !ok {
			return errors.Errorf("snapshot missing symbol: %s", got.Symbol)
		}
		if p.Side != got.Side || !p.Quantity.Equal(got.Quantity) || !p.AveragePrice.Equal(got.AveragePrice) {
			return errors.Errorf("position mismatch: symbol=%s expected=%s %s@%s actual=%s %s@%s",
				got.Symbol, p.Side, p.Quantity, p.AveragePrice, got.Side, got.Quantity, got.AveragePrice)
		}
	}
	return nil
}
