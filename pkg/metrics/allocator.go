package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Latency of the public assign handler
	AssignLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "allocator_assign_latency_seconds",
		Help:    "Latency of the variant assignment handler",
		Buckets: prometheus.DefBuckets,
	})

	// Assignments served, by outcome (assigned, fallback)
	AssignmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocator_assignments_total",
		Help: "Total variant assignments served",
	}, []string{"outcome"})

	// Variants retired by the automatic sweep
	SweepKillsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocator_sweep_kills_total",
		Help: "Variants killed by the retirement sweep",
	}, []string{"site"})
)

func Init() {
	prometheus.MustRegister(
		AssignLatency,
		AssignmentsTotal,
		SweepKillsTotal,
	)
}
