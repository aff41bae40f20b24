package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sessionStartedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "quotawatcher_session_started_total",
		Help: "Total number of sessions observed transitioning to running.",
	},
	[]string{"cluster", "pool", "class"},
)

var sessionResumedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "quotawatcher_session_resumed_total",
		Help: "Total number of sessions observed resuming from hibernation.",
	},
	[]string{"cluster", "pool", "class"},
)

var sessionHibernatedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "quotawatcher_session_hibernated_total",
		Help: "Total number of sessions observed entering hibernation.",
	},
	[]string{"cluster", "pool", "class"},
)

var sessionStoppedTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "quotawatcher_session_stopped_total",
		Help: "Total number of session deletions observed.",
	},
	[]string{"cluster", "pool", "class"},
)

var watchReconnectsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "quotawatcher_watch_reconnects_total",
		Help: "Total number of watch stream reconnects per cluster and resource.",
	},
	[]string{"cluster", "resource"},
)

var fullSyncDurationSeconds = promauto.With(prometheus.DefaultRegisterer).NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "quotawatcher_full_sync_duration_seconds",
		Help:    "Duration of complete full-resync passes per cluster.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	},
	[]string{"cluster"},
)

var cacheObjects = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "quotawatcher_cache_objects",
		Help: "Number of objects currently held in the mirror per cluster and kind.",
	},
	[]string{"cluster", "kind"},
)

var taskRestartsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "quotawatcher_task_restarts_total",
		Help: "Total number of supervised task restarts after failure.",
	},
	[]string{"task"},
)

var sessionCPUUsageCores = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "quotawatcher_session_cpu_usage_cores",
		Help: "Last sampled CPU usage of a running session pod, in cores.",
	},
	[]string{"cluster", "namespace", "session"},
)

var sessionMemoryUsageBytes = promauto.With(prometheus.DefaultRegisterer).NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "quotawatcher_session_memory_usage_bytes",
		Help: "Last sampled memory usage of a running session pod, in bytes.",
	},
	[]string{"cluster", "namespace", "session"},
)

// RecordSessionStarted increments the started counter for one session launch.
func RecordSessionStarted(cluster, pool, class string) {
	sessionStartedTotal.WithLabelValues(cluster, pool, class).Inc()
}

// RecordSessionResumed increments the resumed counter for one wake-up from hibernation.
func RecordSessionResumed(cluster, pool, class string) {
	sessionResumedTotal.WithLabelValues(cluster, pool, class).Inc()
}

// RecordSessionHibernated increments the hibernated counter.
func RecordSessionHibernated(cluster, pool, class string) {
	sessionHibernatedTotal.WithLabelValues(cluster, pool, class).Inc()
}

// RecordSessionStopped increments the stopped counter for one session deletion.
func RecordSessionStopped(cluster, pool, class string) {
	sessionStoppedTotal.WithLabelValues(cluster, pool, class).Inc()
}

// RecordWatchReconnect increments the reconnect counter after a watch stream ends.
func RecordWatchReconnect(cluster, resource string) {
	watchReconnectsTotal.WithLabelValues(cluster, resource).Inc()
}

// ObserveFullSyncDuration records the duration of one completed full sync.
func ObserveFullSyncDuration(cluster string, d time.Duration) {
	fullSyncDurationSeconds.WithLabelValues(cluster).Observe(d.Seconds())
}

// SetCacheObjects sets the mirror size gauge for one (cluster, kind).
func SetCacheObjects(cluster, kind string, n int) {
	cacheObjects.WithLabelValues(cluster, kind).Set(float64(n))
}

// RecordTaskRestart increments the restart counter for a supervised task.
func RecordTaskRestart(task string) {
	taskRestartsTotal.WithLabelValues(task).Inc()
}

// SetSessionUsage sets the sampled resource usage gauges for a running session.
func SetSessionUsage(cluster, namespace, session string, cpuCores, memoryBytes float64) {
	sessionCPUUsageCores.WithLabelValues(cluster, namespace, session).Set(cpuCores)
	sessionMemoryUsageBytes.WithLabelValues(cluster, namespace, session).Set(memoryBytes)
}

// ForgetSessionUsage drops the usage gauges of a stopped session so the
// series does not linger with a stale value.
func ForgetSessionUsage(cluster, namespace, session string) {
	sessionCPUUsageCores.DeleteLabelValues(cluster, namespace, session)
	sessionMemoryUsageBytes.DeleteLabelValues(cluster, namespace, session)
}
