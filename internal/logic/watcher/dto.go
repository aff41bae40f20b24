package watcher

import (
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// GVK identifies a Kubernetes object type. An empty Group means the core API group.
type GVK struct {
	Group   string
	Version string
	Kind    string
}

func (g GVK) String() string {
	if g.Group == "" {
		return fmt.Sprintf("%s/%s", g.Version, g.Kind)
	}

	return fmt.Sprintf("%s/%s/%s", g.Group, g.Version, g.Kind)
}

// ObjectMeta is the identity tuple of a mirrored cluster object.
// Lookups match on (ClusterID, Namespace, GVK, Name).
type ObjectMeta struct {
	Name      string
	Namespace string
	ClusterID string
	GVK       GVK
	// UserID attributes the object to its owning user; SystemUserID for
	// kinds that are not user-owned (build runs, quotas).
	UserID string
}

// Object is an observed cluster object: identity plus the raw manifest.
type Object struct {
	Meta     ObjectMeta
	Manifest map[string]any
}

// Labels returns the manifest's metadata.labels, never nil.
func (o Object) Labels() map[string]string {
	labels, _, err := unstructured.NestedStringMap(o.Manifest, "metadata", "labels")
	if err != nil || labels == nil {
		return map[string]string{}
	}

	return labels
}

// HasDeletionTimestamp reports whether the manifest carries a deletion timestamp,
// meaning the object is being torn down even if the event type is not DELETED.
func (o Object) HasDeletionTimestamp() bool {
	ts, found, err := unstructured.NestedString(o.Manifest, "metadata", "deletionTimestamp")

	return err == nil && found && ts != ""
}

// ObjectFilter is a query predicate for cache and cluster listings.
// Zero-valued fields do not constrain the result; GVK is always required.
type ObjectFilter struct {
	GVK       GVK
	Name      string
	Namespace string
	ClusterID string
	// LabelSelector matches objects whose labels are a superset of this map.
	LabelSelector map[string]string
	UserID        string
}

// EventType mirrors the Kubernetes watch event types.
type EventType string

const (
	Added    EventType = "ADDED"
	Modified EventType = "MODIFIED"
	Deleted  EventType = "DELETED"
)

// WatchEvent is one delivered change from a cluster watch stream.
type WatchEvent struct {
	Type   EventType
	Object Object
}

// TrackedKind describes one object kind the watcher mirrors, including the
// plural resource name the API surface uses for it.
type TrackedKind struct {
	GVK           GVK
	Resource      string
	ClusterScoped bool
	// SystemOwned kinds are attributed to SystemUserID instead of the
	// owner label.
	SystemOwned bool
}

// Cluster is one cluster's addressable scope in the fleet.
type Cluster struct {
	ID        string
	Namespace string
	Client    ClusterClient
}
