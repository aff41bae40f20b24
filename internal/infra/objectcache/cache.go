package objectcache

import (
	"context"
	"log/slog"
	"sync"

	"k8s.io/apimachinery/pkg/runtime"

	"github.com/skillcoder/quota-watcher-controller/internal/infra/metrics"
	"github.com/skillcoder/quota-watcher-controller/internal/logic/watcher"
)

type objectKey struct {
	clusterID string
	namespace string
	group     string
	version   string
	kind      string
	name      string
}

func keyFor(meta watcher.ObjectMeta) objectKey {
	return objectKey{
		clusterID: meta.ClusterID,
		namespace: meta.Namespace,
		group:     meta.GVK.Group,
		version:   meta.GVK.Version,
		kind:      meta.GVK.Kind,
		name:      meta.Name,
	}
}

// Cache is the queryable mirror of observed cluster objects. Each call is
// individually atomic; compound read-then-write sequences are not.
type Cache struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	objects map[objectKey]watcher.Object
	// sizes tracks entry counts per (cluster, kind) for the gauge.
	sizes map[[2]string]int
}

// New creates an empty cache.
func New(logger *slog.Logger) *Cache {
	return &Cache{
		logger:  logger,
		objects: make(map[objectKey]watcher.Object),
		sizes:   make(map[[2]string]int),
	}
}

var _ watcher.ObjectStore = (*Cache)(nil)

// Upsert inserts the object or overwrites the stored manifest in place.
// Writes must carry ownership attribution; the system sentinel is legal.
func (c *Cache) Upsert(_ context.Context, obj watcher.Object) error {
	if obj.Meta.UserID == "" {
		return errMissingOwner
	}

	stored := obj
	stored.Manifest = runtime.DeepCopyJSON(obj.Manifest)

	key := keyFor(obj.Meta)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.objects[key]; !exists {
		c.adjustSize(obj.Meta, 1)
	}

	c.objects[key] = stored

	return nil
}

// Get returns the stored object or nil when absent.
func (c *Cache) Get(_ context.Context, meta watcher.ObjectMeta) (*watcher.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stored, ok := c.objects[keyFor(meta)]
	if !ok {
		return nil, nil
	}

	out := stored
	out.Manifest = runtime.DeepCopyJSON(stored.Manifest)

	return &out, nil
}

// Delete removes the entry; deleting a non-existent entry is a no-op.
func (c *Cache) Delete(_ context.Context, meta watcher.ObjectMeta) error {
	key := keyFor(meta)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.objects[key]; !ok {
		return nil
	}

	delete(c.objects, key)
	c.adjustSize(meta, -1)

	return nil
}

// List returns copies of all entries matching the filter.
func (c *Cache) List(_ context.Context, filter watcher.ObjectFilter) ([]watcher.Object, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []watcher.Object

	for key, stored := range c.objects {
		if !matches(key, stored, filter) {
			continue
		}

		obj := stored
		obj.Manifest = runtime.DeepCopyJSON(stored.Manifest)
		out = append(out, obj)
	}

	return out, nil
}

func matches(key objectKey, obj watcher.Object, filter watcher.ObjectFilter) bool {
	// An unset filter group means the core API group, which is also
	// stored as the empty string, so direct comparison holds.
	if key.group != filter.GVK.Group ||
		key.version != filter.GVK.Version ||
		key.kind != filter.GVK.Kind {
		return false
	}

	if filter.Name != "" && key.name != filter.Name {
		return false
	}

	if filter.Namespace != "" && key.namespace != filter.Namespace {
		return false
	}

	if filter.ClusterID != "" && key.clusterID != filter.ClusterID {
		return false
	}

	if filter.UserID != "" && obj.Meta.UserID != filter.UserID {
		return false
	}

	if len(filter.LabelSelector) > 0 {
		labels := obj.Labels()
		for k, v := range filter.LabelSelector {
			if labels[k] != v {
				return false
			}
		}
	}

	return true
}

// adjustSize must be called with c.mu held.
func (c *Cache) adjustSize(meta watcher.ObjectMeta, delta int) {
	sizeKey := [2]string{meta.ClusterID, meta.GVK.Kind}
	c.sizes[sizeKey] += delta
	metrics.SetCacheObjects(meta.ClusterID, meta.GVK.Kind, c.sizes[sizeKey])
}
