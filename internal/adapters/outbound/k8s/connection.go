package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	"k8s.io/client-go/rest"

	"github.com/skillcoder/quota-watcher-controller/internal/logic/watcher"
)

const (
	listPageSize       = 100
	defaultCallTimeout = 10 * time.Second
)

// builtinKinds are always resolvable on a connection, so the typed quota and
// priority-class clients work regardless of the watcher's tracked set.
var builtinKinds = []watcher.TrackedKind{
	{GVK: resourceQuotaGVK, Resource: "resourcequotas", SystemOwned: true},
	{GVK: priorityClassGVK, Resource: "priorityclasses", ClusterScoped: true, SystemOwned: true},
}

// Connection wraps one cluster's API endpoint with GVK-parameterized verbs.
// It is the live implementation of the watcher's ClusterClient port; the
// in-memory variant shares all code and differs only in the underlying
// dynamic client.
type Connection struct {
	logger      *slog.Logger
	client      dynamic.Interface
	clusterID   string
	namespace   string
	callTimeout time.Duration
	// strict listing aborts on a malformed object instead of skipping it;
	// used for the primary cluster where partial cache corruption is
	// unacceptable.
	strict    bool
	resources map[watcher.GVK]schema.GroupVersionResource
	scoped    map[watcher.GVK]bool
}

// NewConnection creates a connection over the given dynamic client. kinds
// must list every GVK the connection will be asked to handle; the builtin
// quota kinds are added implicitly. A callTimeout of zero selects the default.
func NewConnection(
	logger *slog.Logger,
	client dynamic.Interface,
	clusterID string,
	namespace string,
	kinds []watcher.TrackedKind,
	callTimeout time.Duration,
	strict bool,
) *Connection {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	resources := make(map[watcher.GVK]schema.GroupVersionResource)
	scoped := make(map[watcher.GVK]bool)

	for _, kind := range append(append([]watcher.TrackedKind{}, kinds...), builtinKinds...) {
		resources[kind.GVK] = schema.GroupVersionResource{
			Group:    kind.GVK.Group,
			Version:  kind.GVK.Version,
			Resource: kind.Resource,
		}
		scoped[kind.GVK] = kind.ClusterScoped
	}

	return &Connection{
		logger:      logger.With("cluster", clusterID),
		client:      client,
		clusterID:   clusterID,
		namespace:   namespace,
		callTimeout: callTimeout,
		strict:      strict,
		resources:   resources,
		scoped:      scoped,
	}
}

// NewLiveConnection creates a connection against a real cluster endpoint.
func NewLiveConnection(
	logger *slog.Logger,
	restConfig *rest.Config,
	clusterID string,
	namespace string,
	kinds []watcher.TrackedKind,
	callTimeout time.Duration,
	strict bool,
) (*Connection, error) {
	client, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}

	return NewConnection(logger, client, clusterID, namespace, kinds, callTimeout, strict), nil
}

// NewMemoryConnection creates a connection backed by an in-memory cluster,
// optionally pre-seeded with objects. Used in memory mode and in tests.
func NewMemoryConnection(
	logger *slog.Logger,
	clusterID string,
	namespace string,
	kinds []watcher.TrackedKind,
	objects ...runtime.Object,
) *Connection {
	listKinds := make(map[schema.GroupVersionResource]string)

	for _, kind := range append(append([]watcher.TrackedKind{}, kinds...), builtinKinds...) {
		gvr := schema.GroupVersionResource{
			Group:    kind.GVK.Group,
			Version:  kind.GVK.Version,
			Resource: kind.Resource,
		}
		listKinds[gvr] = kind.GVK.Kind + "List"
	}

	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(
		runtime.NewScheme(),
		listKinds,
		objects...,
	)

	return NewConnection(logger, client, clusterID, namespace, kinds, 0, false)
}

var _ watcher.ClusterClient = (*Connection)(nil)

// ClusterID returns the id of the cluster this connection addresses.
func (c *Connection) ClusterID() string {
	return c.clusterID
}

// Namespace returns the cluster's working namespace.
func (c *Connection) Namespace() string {
	return c.namespace
}

func (c *Connection) resourceFor(gvk watcher.GVK, namespace string) (dynamic.ResourceInterface, error) {
	gvr, ok := c.resources[gvk]
	if !ok {
		return nil, fmt.Errorf("unmapped kind %s", gvk)
	}

	if c.scoped[gvk] {
		return c.client.Resource(gvr), nil
	}

	if namespace == "" {
		namespace = c.namespace
	}

	return c.client.Resource(gvr).Namespace(namespace), nil
}

func (c *Connection) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

// ListQuery enumerates currently existing objects matching the filter,
// paginating internally and returning a flat slice. Malformed objects are
// skipped with a warning unless the connection is strict.
func (c *Connection) ListQuery(ctx context.Context, filter watcher.ObjectFilter) ([]watcher.Object, error) {
	res, err := c.resourceFor(filter.GVK, filter.Namespace)
	if err != nil {
		return nil, err
	}

	opts := metav1.ListOptions{Limit: listPageSize}
	if len(filter.LabelSelector) > 0 {
		opts.LabelSelector = labels.Set(filter.LabelSelector).String()
	}

	var out []watcher.Object

	for {
		page, err := c.listPage(ctx, res, opts)
		if err != nil {
			return nil, classify("list objects", err)
		}

		for i := range page.Items {
			obj, err := c.toObject(&page.Items[i], filter.GVK)
			if err != nil {
				if c.strict {
					return nil, fmt.Errorf("list objects: %w", err)
				}

				c.logger.WarnContext(ctx, "skipping malformed object in listing",
					"gvk", filter.GVK.String(),
					"reason", err,
				)

				continue
			}

			if filter.Name != "" && obj.Meta.Name != filter.Name {
				continue
			}

			out = append(out, obj)
		}

		if page.GetContinue() == "" {
			return out, nil
		}

		opts.Continue = page.GetContinue()
	}
}

func (c *Connection) listPage(
	ctx context.Context,
	res dynamic.ResourceInterface,
	opts metav1.ListOptions,
) (*unstructured.UnstructuredList, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	return res.List(callCtx, opts)
}

// WatchQuery opens a long-lived watch stream for the kind. The returned
// channel is closed when the server ends the stream or the context is
// cancelled; both are expected, not errors. Watches are exempt from the
// per-call timeout.
func (c *Connection) WatchQuery(
	ctx context.Context,
	gvk watcher.GVK,
	namespace string,
) (<-chan watcher.WatchEvent, error) {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return nil, err
	}

	stream, err := res.Watch(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify("open watch", err)
	}

	events := make(chan watcher.WatchEvent)

	go c.pumpEvents(ctx, gvk, stream, events)

	return events, nil
}

func (c *Connection) pumpEvents(
	ctx context.Context,
	gvk watcher.GVK,
	stream watch.Interface,
	events chan<- watcher.WatchEvent,
) {
	defer close(events)
	defer stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-stream.ResultChan():
			if !ok {
				return
			}

			var eventType watcher.EventType

			switch event.Type {
			case watch.Added:
				eventType = watcher.Added
			case watch.Modified:
				eventType = watcher.Modified
			case watch.Deleted:
				eventType = watcher.Deleted
			default:
				// Bookmarks and stream errors carry no object state.
				continue
			}

			raw, ok := event.Object.(*unstructured.Unstructured)
			if !ok {
				c.logger.WarnContext(ctx, "skipping non-object watch payload", "gvk", gvk.String())

				continue
			}

			obj, err := c.toObject(raw, gvk)
			if err != nil {
				c.logger.WarnContext(ctx, "skipping malformed watch event",
					"gvk", gvk.String(),
					"reason", err,
				)

				continue
			}

			select {
			case <-ctx.Done():
				return
			case events <- watcher.WatchEvent{Type: eventType, Object: obj}:
			}
		}
	}
}

func (c *Connection) toObject(raw *unstructured.Unstructured, gvk watcher.GVK) (watcher.Object, error) {
	if raw.GetName() == "" {
		return watcher.Object{}, &MalformedObjectError{Reason: "missing metadata.name"}
	}

	return watcher.Object{
		Meta: watcher.ObjectMeta{
			Name:      raw.GetName(),
			Namespace: raw.GetNamespace(),
			ClusterID: c.clusterID,
			GVK:       gvk,
		},
		Manifest: raw.Object,
	}, nil
}

func (c *Connection) getRaw(
	ctx context.Context,
	gvk watcher.GVK,
	namespace, name string,
) (*unstructured.Unstructured, error) {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	obj, err := res.Get(callCtx, name, metav1.GetOptions{})
	if err != nil {
		return nil, classify("get object", err)
	}

	return obj, nil
}

func (c *Connection) createRaw(
	ctx context.Context,
	gvk watcher.GVK,
	namespace string,
	obj *unstructured.Unstructured,
) (*unstructured.Unstructured, error) {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	created, err := res.Create(callCtx, obj, metav1.CreateOptions{})
	if err != nil {
		return nil, classify("create object", err)
	}

	return created, nil
}

func (c *Connection) patchRaw(
	ctx context.Context,
	gvk watcher.GVK,
	namespace, name string,
	patch []byte,
) (*unstructured.Unstructured, error) {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	patched, err := res.Patch(callCtx, name, types.MergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return nil, classify("patch object", err)
	}

	return patched, nil
}

func (c *Connection) deleteRaw(
	ctx context.Context,
	gvk watcher.GVK,
	namespace, name string,
	foreground bool,
) error {
	res, err := c.resourceFor(gvk, namespace)
	if err != nil {
		return err
	}

	opts := metav1.DeleteOptions{}
	if foreground {
		propagation := metav1.DeletePropagationForeground
		opts.PropagationPolicy = &propagation
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if err := res.Delete(callCtx, name, opts); err != nil {
		return classify("delete object", err)
	}

	return nil
}
