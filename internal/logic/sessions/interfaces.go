package sessions

import "context"

// ResourceRepository is the port for the external read-only lookups used to
// enrich session lifecycle metrics with class and pool names.
type ResourceRepository interface {
	GetResourceClassQuery(ctx context.Context, classID string) (*ResourceClass, error)
	GetResourcePoolFromClassQuery(ctx context.Context, classID string) (*ResourcePool, error)
}

// UsageSampler is the port for sampling a running session pod's resource
// usage from the cluster's metrics API.
type UsageSampler interface {
	SessionUsageQuery(ctx context.Context, clusterID, namespace, name string) (*Usage, error)
}

// missingResource is a private interface for classifying unknown-id lookup
// errors without importing the repository's package.
type missingResource interface {
	IsMissingResource()
}
