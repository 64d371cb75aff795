package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"paperdesk/internal/chaos"
	"paperdesk/internal/pipeline"
	"paperdesk/internal/strategy"
)

func runSource(ctx context.Context, orch *pipeline.Orchestrator, src *strategy.Random, faults *chaos.Engine, interval time.Duration, generated *prometheus.CounterVec) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, sig := range faults.Flush() {
				_ = orch.Submit(context.WithoutCancel(ctx), sig)
			}
			return
		case now := <-ticker.C:
			sig := src.Next(now)
			generated.WithLabelValues(sig.Action.String()).Inc()
			// rejections are published on the hub
			for _, out := range faults.Process(sig) {
				_ = orch.Submit(ctx, out)
			}
		}
	}
}
