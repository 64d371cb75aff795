package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"

	"paperdesk/internal/bus"
	"paperdesk/internal/chaos"
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
	"paperdesk/pkg/conn"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	envFile := flag.String("env-file", "", "Optional .env file with PAPER_* overrides")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	metricsAddr := flag.String("metrics-addr", ":9108", "Prometheus listen address (empty=disable)")
	pyroscopeAddr := flag.String("pyroscope-addr", "", "Pyroscope server address (empty=disable)")
	snapshotOut := flag.String("snapshot-out", "", "Ledger snapshot written on exit (empty=skip)")
	signalInterval := flag.Duration("signal-interval", 500*time.Millisecond, "Synthetic signal interval (0=disable)")
	seed := flag.Int64("seed", 0, "Synthetic signal seed (0=time based)")
	duration := flag.Duration("duration", 0, "Stop after this long (0=until interrupted)")
	chaosCfg := chaos.Config{}
	flag.Float64Var(&chaosCfg.DropRate, "chaos-drop-rate", 0, "Drop probability for generated signals [0-1]")
	flag.Float64Var(&chaosCfg.DuplicateRate, "chaos-dup-rate", 0, "Duplicate probability for generated signals [0-1]")
	flag.IntVar(&chaosCfg.ReorderWindow, "chaos-reorder-window", 1, "Reorder window for generated signals (>=1)")
	flag.DurationVar(&chaosCfg.MaxDelay, "chaos-max-delay", 0, "Max age added to generated signals")
	flag.Float64Var(&chaosCfg.FailRate, "chaos-fail-rate", 0, "Injected execution failure probability [0-1]")
	flag.Float64Var(&chaosCfg.PanicRate, "chaos-panic-rate", 0, "Injected executor panic probability [0-1]")
	flag.DurationVar(&chaosCfg.MaxLatency, "chaos-max-latency", 0, "Max injected execution latency")
	flag.Parse()
	chaosCfg.Seed = *seed

	loaded, err := ops.LoadAll(*configPath, *envFile)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "paperdesk.trader",
			ServerAddress:   *pyroscopeAddr,
			Tags:            map[string]string{"symbol": loaded.Venue.Feed.Symbol},
			Logger:          pyroscopeLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed, err: %+v", err)
		} else {
			defer profiler.Stop()
		}
	}

	if err := run(ctx, loaded, options{
		configPath:     *configPath,
		envFile:        *envFile,
		configReload:   *configReload,
		metricsAddr:    *metricsAddr,
		snapshotOut:    *snapshotOut,
		signalInterval: *signalInterval,
		seed:           *seed,
		duration:       *duration,
		chaos:          chaosCfg,
	}); err != nil {
		logs.Errorf("trader failed, err: %+v", err)
		os.Exit(1)
	}
}

type options struct {
	configPath     string
	envFile        string
	configReload   time.Duration
	metricsAddr    string
	snapshotOut    string
	signalInterval time.Duration
	seed           int64
	duration       time.Duration
	chaos          chaos.Config
}

func run(ctx context.Context, loaded ops.Loaded, opt options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := event.NewHub(time.Now)
	hub.Subscribe(event.ListenerFunc(logEvent))
	metrics := obs.NewMetrics()

	engine, err := venue.NewEngine(loaded.Venue)
	if err != nil {
		return err
	}
	guard, err := risk.NewGuard(loaded.Risk, engine, hub, time.Now)
	if err != nil {
		return err
	}
	val := validator.New(loaded.Validator, time.Now)

	memory := feature.NewMemory(loaded.Feature.MaxHistory)
	stores := feature.Fanout{memory}
	if loaded.Feature.Postgres != nil {
		pg, client, err := openPostgres(ctx, *loaded.Feature.Postgres)
		if err != nil {
			return err
		}
		defer client.Close()
		stores = append(stores, pg)
	}

	var faults *chaos.Engine
	if opt.chaos.Enabled() {
		if faults, err = chaos.NewEngine(opt.chaos); err != nil {
			return err
		}
		logs.Infof("chaos enabled, config: %+v", faults.Config())
	}

	orch, err := pipeline.New(loaded.Pipeline, pipeline.Deps{
		Queue:     bus.NewQueue(loaded.Pipeline.QueueCapacity, hub),
		Validator: val,
		Risk:      guard,
		Executor:  chaos.WrapExecutor(execution.NewPaper(engine, time.Now), faults),
		Store:     stores,
		Hub:       hub,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	engine.StartPriceFeed(ctx, loaded.Venue.Feed.Symbol)
	defer engine.StopPriceFeed()

	if err := orch.Start(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	generated := registerMetrics(reg, metrics, engine, orch)

	g, gctx := errgroup.WithContext(ctx)
	if opt.metricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, opt.metricsAddr, reg) })
	}
	if opt.signalInterval > 0 {
		src := strategy.NewRandom(loaded.Venue.Feed.Symbol, opt.seed)
		g.Go(func() error {
			runSource(gctx, orch, src, faults, opt.signalInterval, generated)
			return nil
		})
	}
	if opt.configPath != "" && opt.configReload > 0 {
		g.Go(func() error {
			watchConfig(gctx, opt.configPath, opt.envFile, opt.configReload, func(l ops.Loaded) {
				applyConfig(l, orch, engine, val)
			})
			return nil
		})
	}
	g.Go(func() error {
		var deadline <-chan time.Time
		if opt.duration > 0 {
			timer := time.NewTimer(opt.duration)
			defer timer.Stop()
			deadline = timer.C
		}
		select {
		case <-gctx.Done():
		case <-sys.Shutdown():
		case <-deadline:
		}
		cancel()
		return nil
	})
	groupErr := g.Wait()

	if err := orch.Stop(context.Background()); err != nil {
		logs.Errorf("pipeline stop failed, err: %+v", err)
	}
	orch.Wait()

	status := orch.Status()
	snap := status.Metrics
	logs.Infof("pipeline done, submitted: %d, rejected: %d, executed: %d, failed: %d, risk_blocked: %d, success_rate: %.2f, latency: %+v",
		snap.Submitted, snap.Rejected, snap.Executed, snap.Failed, snap.RiskBlocked, snap.SuccessRate, snap.ExecutionLatency)
	perf := memory.Performance("")
	logs.Infof("feature store, results: %d, succeeded: %d, avg duration: %s", perf.Total, perf.Succeeded, perf.AverageDuration)
	account := engine.Account()
	logs.Infof("account, equity: %s, realized: %s, fees: %s", account.Equity, account.RealizedPnL, account.TotalFees)

	if opt.snapshotOut != "" {
		if err := ledger.WriteSnapshot(opt.snapshotOut, engine.Snapshot()); err != nil {
			return err
		}
		logs.Infof("ledger snapshot written, path: %s", opt.snapshotOut)
	}
	return groupErr
}

func openPostgres(ctx context.Context, opt conn.Option) (*feature.Postgres, *conn.Client, error) {
	client, err := conn.New(opt)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	pg, err := feature.NewPostgres(client.DB())
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	logs.Info("postgres feature store ready")
	return pg, client, nil
}

func applyConfig(l ops.Loaded, orch *pipeline.Orchestrator, engine *venue.Engine, val *validator.Validator) {
	if err := orch.UpdateRiskConfig(risk.PatchFrom(l.Risk)); err != nil {
		logs.Errorf("risk config update failed, err: %+v", err)
		return
	}
	engine.UpdateRiskConfig(l.Venue.Risk)
	val.SetMinConfidence(l.Validator.MinConfidence)
	val.SetMaxAge(l.Validator.MaxAge)
}

func watchConfig(ctx context.Context, path, envFile string, interval time.Duration, update func(ops.Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Errorf("config stat failed, err: %+v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := ops.LoadAll(path, envFile)
			if err != nil {
				logs.Errorf("config reload failed, err: %+v", err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			logs.Infof("config reloaded: %s", path)
		}
	}
}

func logEvent(e event.Event) {
	switch e.Kind {
	case event.KindRejected, event.KindRiskBlocked, event.KindFailed:
		logs.Infof("signal %s, id: %s, reason: %s", e.Kind, e.SignalID, e.Reason)
	case event.KindCollaboratorError:
		logs.Errorf("collaborator error, stage: %s, id: %s, err: %+v", e.Stage, e.SignalID, e.Err)
	case event.KindRiskAlert, event.KindRiskWarning:
		logs.Infof("%s, id: %s, score: %.2f, detail: %s", e.Kind, e.SignalID, e.Score, e.Reason)
	case event.KindEmergencyStop:
		logs.Infof("emergency stop, active: %t", e.Active)
	case event.KindQueueFull:
		logs.Errorf("queue full, id: %s", e.SignalID)
	}
}

type pyroscopeLogger struct{}

func (pyroscopeLogger) Infof(_ string, _ ...interface{})  {}
func (pyroscopeLogger) Debugf(_ string, _ ...interface{}) {}
func (pyroscopeLogger) Errorf(format string, args ...interface{}) {
	logs.Errorf("pyroscope: "+format, args...)
}
