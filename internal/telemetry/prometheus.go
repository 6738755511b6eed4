package telemetry

import "github.com/prometheus/client_golang/prometheus"

const screenroomNamespace string = "screenroom"

var (
	promSessionsLive      prometheus.Gauge
	promLivenessConflicts prometheus.Counter
	promSessionsReaped    prometheus.Counter
	promDriftSeeks        prometheus.Counter

	CommandCounter *prometheus.CounterVec
)

func init() {
	promSessionsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: screenroomNamespace,
		Subsystem: "session",
		Name:      "live",
	})

	promLivenessConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: screenroomNamespace,
		Subsystem: "session",
		Name:      "liveness_conflicts_total",
	})

	promSessionsReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: screenroomNamespace,
		Subsystem: "session",
		Name:      "reaped_total",
	})

	promDriftSeeks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: screenroomNamespace,
		Subsystem: "reconciler",
		Name:      "drift_seeks_total",
	})

	CommandCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: screenroomNamespace,
			Subsystem: "host",
			Name:      "commands",
		},
		[]string{"method", "status"},
	)

	prometheus.MustRegister(promSessionsLive)
	prometheus.MustRegister(promLivenessConflicts)
	prometheus.MustRegister(promSessionsReaped)
	prometheus.MustRegister(promDriftSeeks)
	prometheus.MustRegister(CommandCounter)
}

func SessionStarted() {
	promSessionsLive.Inc()
}

func SessionStopped() {
	promSessionsLive.Dec()
}

func LivenessConflict() {
	promLivenessConflicts.Inc()
}

func SessionReaped() {
	promSessionsReaped.Inc()
	promSessionsLive.Dec()
}

func DriftSeek() {
	promDriftSeeks.Inc()
}
