package watcher

import "context"

// ClusterClient is the port for read access to one cluster's API.
// Implementations are provided by adapters in the outbound layer.
type ClusterClient interface {
	// ListQuery enumerates currently existing objects matching the filter.
	ListQuery(ctx context.Context, filter ObjectFilter) ([]Object, error)

	// WatchQuery opens a long-lived watch stream. The returned channel is
	// closed when the stream terminates; termination is expected and not
	// an error for the caller's reconnect loop.
	WatchQuery(ctx context.Context, gvk GVK, namespace string) (<-chan WatchEvent, error)
}

// ObjectStore is the port for the persisted object mirror.
type ObjectStore interface {
	Upsert(ctx context.Context, obj Object) error
	Get(ctx context.Context, meta ObjectMeta) (*Object, error)
	Delete(ctx context.Context, meta ObjectMeta) error
	List(ctx context.Context, filter ObjectFilter) ([]Object, error)
}

// EventHandler receives every applied watch event. prev is the previously
// cached object, nil on first observation. Implementations must be idempotent
// under redelivery; errors are logged by the watcher and never stop cache
// maintenance.
type EventHandler interface {
	Handle(ctx context.Context, prev *Object, current Object, clusterID string, eventType EventType) error
}
