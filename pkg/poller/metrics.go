package poller

import "github.com/prometheus/client_golang/prometheus"

var pollCyclesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "freecaster_poll_cycles_total",
		Help: "Total number of completed poll cycles",
	},
)

// pollCyclesSkipped counts cycles abandoned at the internet gate.
var pollCyclesSkipped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "freecaster_poll_cycles_skipped_total",
		Help: "Total number of poll cycles skipped for lack of internet connectivity",
	},
)

var probeFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "freecaster_probe_failures_total",
		Help: "Total number of failed peer probes",
	},
	[]string{
		"peer",
	},
)

func init() {
	prometheus.MustRegister(pollCyclesTotal)
	prometheus.MustRegister(pollCyclesSkipped)
	prometheus.MustRegister(probeFailures)
}
