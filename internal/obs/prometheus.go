package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"paperdesk/internal/event"
)

const namespace = "paperdesk"

// Collector exposes a Metrics snapshot to Prometheus on every scrape.
type Collector struct {
	metrics *Metrics

	events       *prometheus.Desc
	rejections   *prometheus.Desc
	riskBlocks   *prometheus.Desc
	successRate  *prometheus.Desc
	latencyAvg   *prometheus.Desc
	latencyMax   *prometheus.Desc
	latencyCount *prometheus.Desc
}

// NewCollector wraps m.
func NewCollector(m *Metrics) *Collector {
	return &Collector{
		metrics: m,
		events: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", "events_total"),
			"Pipeline lifecycle events by kind.",
			[]string{"kind"}, nil,
		),
		rejections: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", "rejections_total"),
			"Signals refused by the validator by reason.",
			[]string{"reason"}, nil,
		),
		riskBlocks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", "risk_blocks_total"),
			"Signals refused by the risk guard by reason.",
			[]string{"reason"}, nil,
		),
		successRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pipeline", "success_ratio"),
			"Executed signals over executed plus failed.",
			nil, nil,
		),
		latencyAvg: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "execution", "latency_avg_seconds"),
			"Average execution latency.",
			nil, nil,
		),
		latencyMax: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "execution", "latency_max_seconds"),
			"Maximum execution latency.",
			nil, nil,
		),
		latencyCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "execution", "samples_total"),
			"Execution latency samples.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.events
	ch <- c.rejections
	ch <- c.riskBlocks
	ch <- c.successRate
	ch <- c.latencyAvg
	ch <- c.latencyMax
	ch <- c.latencyCount
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()
	for k := event.KindStarted; int(k) <= event.MaxKind; k++ {
		ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue, float64(s.EventCounts[k]), k.String())
	}
	for reason, v := range s.RejectionReasons {
		ch <- prometheus.MustNewConstMetric(c.rejections, prometheus.CounterValue, float64(v), reason)
	}
	for reason, v := range s.RiskBlockReasons {
		ch <- prometheus.MustNewConstMetric(c.riskBlocks, prometheus.CounterValue, float64(v), reason)
	}
	ch <- prometheus.MustNewConstMetric(c.successRate, prometheus.GaugeValue, s.SuccessRate)
	ch <- prometheus.MustNewConstMetric(c.latencyAvg, prometheus.GaugeValue, s.ExecutionLatency.Avg.Seconds())
	ch <- prometheus.MustNewConstMetric(c.latencyMax, prometheus.GaugeValue, s.ExecutionLatency.Max.Seconds())
	ch <- prometheus.MustNewConstMetric(c.latencyCount, prometheus.CounterValue, float64(s.ExecutionLatency.Count))
}
