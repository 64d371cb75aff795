package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"

	"paperdesk/internal/obs"
	"paperdesk/internal/pipeline"
	"paperdesk/internal/venue"
)

func registerMetrics(reg *prometheus.Registry, m *obs.Metrics, engine *venue.Engine, orch *pipeline.Orchestrator) *prometheus.CounterVec {
	reg.MustRegister(
		obs.NewCollector(m),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "paperdesk_account_equity",
		Help: "Simulated account equity.",
	}, func() float64 { return engine.Account().Equity.InexactFloat64() })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "paperdesk_venue_price",
		Help: "Last simulated price.",
	}, func() float64 { return engine.CurrentPrice().InexactFloat64() })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "paperdesk_queue_size",
		Help: "Signals waiting for dispatch.",
	}, func() float64 { return float64(orch.Status().QueueSize) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "paperdesk_risk_drawdown_ratio",
		Help: "Drawdown from peak equity.",
	}, func() float64 { return orch.RiskStatus().Drawdown })

	return factory.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdesk_source_signals_total",
		Help: "Synthetic signals generated by action.",
	}, []string{"action"})
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logs.Infof("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
