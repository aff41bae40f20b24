package quota

import "context"

// ResourceQuotaClient is the port for typed ResourceQuota verbs against one
// cluster of the fleet. Implementations are provided by the outbound k8s
// adapter.
type ResourceQuotaClient interface {
	// GetQuery returns the quota or nil when absent. A live object missing
	// required hard-limit keys fails with a validation error.
	GetQuery(ctx context.Context, clusterID, name string) (*Quota, error)

	// CreateCommand creates the ResourceQuota for q, owned by the given
	// PriorityClass so that deleting the class cascades to the quota.
	CreateCommand(ctx context.Context, clusterID string, q Quota, owner PriorityClassRef) error

	// PatchCommand updates only the hard limits and scope selector of the
	// existing ResourceQuota named q.ID.
	PatchCommand(ctx context.Context, clusterID string, q Quota) error
}

// PriorityClassClient is the port for typed PriorityClass verbs.
type PriorityClassClient interface {
	// GetQuery returns the class or nil when absent.
	GetQuery(ctx context.Context, clusterID, name string) (*PriorityClassRef, error)

	// CreateCommand creates the class with the fixed policy attributes
	// (value 100, not global default, never preempting).
	CreateCommand(ctx context.Context, clusterID, name string) (*PriorityClassRef, error)

	// DeleteCommand removes the class with foreground cascade propagation.
	// Deleting an absent class succeeds.
	DeleteCommand(ctx context.Context, clusterID, name string) error
}

// notFound is a private interface for classifying "not found" errors
// without importing the adapter package.
type notFound interface {
	IsNotFound()
}
