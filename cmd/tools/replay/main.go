package main

import (
	"context"
	"flag"
	"os"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"paperdesk/internal/bus"
	"paperdesk/internal/event"
	"paperdesk/internal/execution"
	"paperdesk/internal/feature"
	"paperdesk/internal/ledger"
	"paperdesk/internal/obs"
	"paperdesk/internal/ops"
	"paperdesk/internal/pipeline"
	"paperdesk/internal/risk"
	"paperdesk/internal/strategy"
	"paperdesk/internal/validator"
	"paperdesk/internal/venue"
)

// replay runs a seeded session on a stepped clock, one signal at a time,
// so the same seed always ends in the same ledger.
func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	envFile := flag.String("env-file", "", "Optional .env file with PAPER_* overrides")
	seed := flag.Int64("seed", 1, "Signal and price feed seed (must be non-zero)")
	count := flag.Int("count", 100, "Number of signals to replay")
	step := flag.Duration("step", time.Second, "Clock advance per signal")
	snapshotOut := flag.String("snapshot-out", "", "Write the final ledger snapshot here")
	verify := flag.String("verify", "", "Compare the final ledger against this snapshot")
	flag.Parse()

	if *seed == 0 || *count <= 0 || *step <= 0 {
		logs.Errorf("seed must be non-zero, count and step must be > 0")
		os.Exit(2)
	}

	loaded, err := ops.LoadAll(*configPath, *envFile)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(1)
	}

	snapshot, err := replay(context.Background(), loaded, *seed, *count, *step)
	if err != nil {
		logs.Errorf("replay failed, err: %+v", err)
		os.Exit(1)
	}

	if *snapshotOut != "" {
		if err := ledger.WriteSnapshot(*snapshotOut, snapshot); err != nil {
			logs.Errorf("snapshot write failed, err: %+v", err)
			os.Exit(1)
		}
		logs.Infof("snapshot written: %s", *snapshotOut)
	}
	if *verify != "" {
		expected, err := ledger.ReadSnapshot(*verify)
		if err != nil {
			logs.Errorf("snapshot read failed, err: %+v", err)
			os.Exit(1)
		}
		if err := ledger.CompareSnapshots(expected, snapshot); err != nil {
			logs.Errorf("snapshot mismatch, err: %+v", err)
			os.Exit(1)
		}
		logs.Infof("snapshot verified: positions=%d", len(snapshot.Positions))
	}
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func replay(ctx context.Context, loaded ops.Loaded, seed int64, count int, step time.Duration) (ledger.Snapshot, error) {
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	loaded.Venue.Feed.Seed = seed
	loaded.Pipeline.MaxConcurrent = 1
	loaded.Pipeline.Interval = time.Millisecond

	hub := event.NewHub(clock.Now)
	settled := make(chan struct{}, 1)
	hub.Subscribe(event.ListenerFunc(func(e event.Event) {
		switch e.Kind {
		case event.KindExecuted, event.KindFailed, event.KindRiskBlocked:
			settled <- struct{}{}
		}
	}))

	engine, err := venue.NewEngine(loaded.Venue, venue.WithClock(clock.Now))
	if err != nil {
		return ledger.Snapshot{}, err
	}
	guard, err := risk.NewGuard(loaded.Risk, engine, hub, clock.Now)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	memory := feature.NewMemory(count)
	metrics := obs.NewMetrics()
	orch, err := pipeline.New(loaded.Pipeline, pipeline.Deps{
		Queue:     bus.NewQueue(loaded.Pipeline.QueueCapacity, hub),
		Validator: validator.New(loaded.Validator, clock.Now),
		Risk:      guard,
		Executor:  execution.NewPaper(engine, clock.Now),
		Store:     memory,
		Hub:       hub,
		Metrics:   metrics,
		Now:       clock.Now,
	})
	if err != nil {
		return ledger.Snapshot{}, err
	}
	if err := orch.Start(ctx); err != nil {
		return ledger.Snapshot{}, err
	}

	src := strategy.NewRandom(loaded.Venue.Feed.Symbol, seed)
	for i := 0; i < count; i++ {
		clock.Advance(step)
		engine.Step(loaded.Venue.Feed.Symbol)
		if err := orch.Submit(ctx, src.Next(clock.Now())); err != nil {
			continue
		}
		select {
		case <-settled:
		case <-time.After(5 * time.Second):
			_ = orch.Stop(ctx)
			return ledger.Snapshot{}, errors.Errorf("signal %d did not settle", i)
		}
	}

	if err := orch.Stop(ctx); err != nil {
		return ledger.Snapshot{}, err
	}
	orch.Wait()

	snap := metrics.Snapshot()
	perf := memory.Performance("")
	logs.Infof("replay done, submitted: %d, rejected: %d, executed: %d, failed: %d, risk_blocked: %d, recorded: %d",
		snap.Submitted, snap.Rejected, snap.Executed, snap.Failed, snap.RiskBlocked, perf.Total)
	return engine.Snapshot(), nil
}
