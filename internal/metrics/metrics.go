package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdviceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_advice_total",
		Help: "Advisory decisions by strategy and outcome",
	}, []string{"strategy", "outcome", "cached"})

	AdviceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridbot_advice_latency_seconds",
		Help:    "Latency of advisory calls including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"strategy"})

	RiskBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_risk_blocks_total",
		Help: "Cycles vetoed by the risk gate",
	}, []string{"reason"})

	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_ledger_persistence_failures_total",
		Help: "Ledger saves that failed after all retries",
	})

	GridEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_grid_events_total",
		Help: "Grid ledger events by kind",
	}, []string{"symbol", "kind"})

	PositionShares = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridbot_position_shares",
		Help: "Shares currently held per symbol",
	}, []string{"symbol"})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_fetch_errors_total",
		Help: "Market data and context fetch failures by source",
	}, []string{"source"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridbot_cycle_duration_seconds",
		Help:    "Wall time of one full decision cycle",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_cycles_skipped_total",
		Help: "Scheduled cycles skipped because the previous one was still running",
	})
)
