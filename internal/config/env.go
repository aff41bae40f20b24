package config

import "time"

// Env key constants. All watcher configuration env vars use QUOTAWATCHER_
// prefix; duration values support explicit units (e.g. 5m, 40s, 2h).

// Path to the primary cluster's kubeconfig file. If unset, KUBECONFIG is
// used as fallback; in-cluster config applies when both are empty.
const envKeyKubeConfig = "QUOTAWATCHER_KUBECONFIG"

// Kubernetes API server URL override for the primary cluster. If unset,
// KUBERNETES_MASTER is used as fallback.
const envKeyKubeMaster = "QUOTAWATCHER_KUBE_MASTER"

// Directory of additional cluster kubeconfigs; each file is one cluster and
// the file name (without extension) is the cluster id.
const envKeyClusterConfigDir = "QUOTAWATCHER_CLUSTER_CONFIG_DIR"

// Namespace the watcher mirrors and quotas are created in.
const envKeyNamespace = "QUOTAWATCHER_NAMESPACE"

// Cluster backend: live or memory. Memory runs against an in-process fake
// cluster, used for local development and tests.
const envKeyClusterMode = "QUOTAWATCHER_CLUSTER_MODE"

// Log level: debug, info, warn, error.
const envKeyLogLevel = "QUOTAWATCHER_LOG_LEVEL"

// Log format: json or text.
const envKeyLogFormat = "QUOTAWATCHER_LOG_FORMAT"

// Port for health/readiness/introspection HTTP server.
const envKeyHTTPPort = "QUOTAWATCHER_HTTP_PORT"

// Port for Prometheus metrics (GET /metrics).
const envKeyMetricsPort = "QUOTAWATCHER_METRICS_PORT"

// Full-resync interval. Units: s, m, h (e.g. 600s, 10m).
const (
	envKeyResyncInterval = "QUOTAWATCHER_RESYNC_INTERVAL"
	envMinResyncInterval = 30 * time.Second
)

// Optional cron spec for full resyncs; overrides the fixed interval.
const envKeyResyncSchedule = "QUOTAWATCHER_RESYNC_SCHEDULE"

// Timezone for the resync cron spec (IANA, e.g. Europe/Berlin).
const envKeyResyncTZ = "QUOTAWATCHER_RESYNC_TZ"

// Per-call timeout for cluster API calls; watches are exempt.
const (
	envKeyCallTimeout = "QUOTAWATCHER_CALL_TIMEOUT"
	envMinCallTimeout = time.Second
)

// Delay before re-issuing a watch subscription after the stream ends.
const (
	envKeyWatchBackoff = "QUOTAWATCHER_WATCH_BACKOFF"
	envMinWatchBackoff = time.Second
)

// Cap on the supervisor's exponential restart backoff.
const (
	envKeyMaxTaskBackoff = "QUOTAWATCHER_MAX_TASK_BACKOFF"
	envMinMaxTaskBackoff = time.Second
)

// Pinger check interval. Units: s, m, h (e.g. 10s, 1m).
const (
	envKeyPingerInterval = "QUOTAWATCHER_PINGER_INTERVAL"
	envMinPingerInterval = time.Second
)

// Base URL of the read-only resource-pool/class lookup service used to
// enrich session lifecycle metrics. Enrichment is disabled when unset.
const envKeyResourceAPIURL = "QUOTAWATCHER_RESOURCE_API_URL"

// Bearer token for the resource lookup service.
const envKeyResourceAPIToken = "QUOTAWATCHER_RESOURCE_API_TOKEN"

// Standard k8s env keys used as fallback when QUOTAWATCHER_* are unset.
const (
	envKeyKubeConfigFallback = "KUBECONFIG"
	envKeyKubeMasterFallback = "KUBERNETES_MASTER"
)
