package allocator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AllocatorEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocator_events_total",
			Help: "Count of recorded allocator events by site and event_type.",
		},
		[]string{"site", "event_type"},
	)

	ConversionClampTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "allocator_conversion_clamp_total",
			Help: "Conversions clamped because they raced ahead of impression recording.",
		},
	)
)

func init() {
	prometheus.MustRegister(AllocatorEventsTotal, ConversionClampTotal)
}
