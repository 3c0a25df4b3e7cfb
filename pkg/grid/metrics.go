package grid

import "github.com/prometheus/client_golang/prometheus"

// activeSilences tracks the current number of non-expired silences held by
// this node.
var activeSilences = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "freecaster_active_silences",
		Help: "Current number of active silences held by this node",
	},
)

func init() {
	prometheus.MustRegister(activeSilences)
}
