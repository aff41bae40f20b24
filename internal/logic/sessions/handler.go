package sessions

import (
	"context"
	"errors"
	"log/slog"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/skillcoder/quota-watcher-controller/internal/infra/metrics"
	"github.com/skillcoder/quota-watcher-controller/internal/logic/watcher"
)

// LabelResourceClassID carries the id of the resource class a session was
// launched with.
const LabelResourceClassID = "workbench.dev/resource-class-id"

const unknownLabel = "unknown"

// Handler reports session lifecycle transitions to the metrics sink,
// enriched with resource class and pool names. It implements the watcher's
// event-handler contract: lookup and sampling failures are logged, the
// metric is still recorded unenriched, and no error ever reaches the
// watcher's cache maintenance.
type Handler struct {
	logger     *slog.Logger
	resources  ResourceRepository
	usage      UsageSampler
	sessionGVK watcher.GVK
}

// NewHandler creates a session lifecycle handler for the given session kind.
func NewHandler(
	logger *slog.Logger,
	resources ResourceRepository,
	usage UsageSampler,
	sessionGVK watcher.GVK,
) *Handler {
	return &Handler{
		logger:     logger,
		resources:  resources,
		usage:      usage,
		sessionGVK: sessionGVK,
	}
}

var _ watcher.EventHandler = (*Handler)(nil)

// Handle inspects one applied watch event. Non-session kinds are ignored.
func (h *Handler) Handle(
	ctx context.Context,
	prev *watcher.Object,
	current watcher.Object,
	clusterID string,
	eventType watcher.EventType,
) error {
	if current.Meta.GVK != h.sessionGVK {
		return nil
	}

	pool, class := h.enrich(ctx, current)

	if eventType == watcher.Deleted {
		// A deletion signal for a session the mirror no longer held was
		// already counted, typically when the deletionTimestamp appeared
		// and the final DELETED event is redelivering the same death.
		if prev != nil {
			metrics.RecordSessionStopped(clusterID, pool, class)
		}

		metrics.ForgetSessionUsage(clusterID, current.Meta.Namespace, current.Meta.Name)

		return nil
	}

	prevState := StateNotReady
	if prev != nil {
		prevState = stateOf(*prev)
	}

	currentState := stateOf(current)
	if prevState == currentState {
		return nil
	}

	switch currentState {
	case StateRunning:
		if prevState == StateHibernated {
			metrics.RecordSessionResumed(clusterID, pool, class)
		} else {
			metrics.RecordSessionStarted(clusterID, pool, class)
		}

		h.sampleUsage(ctx, clusterID, current)
	case StateHibernated:
		metrics.RecordSessionHibernated(clusterID, pool, class)
		metrics.ForgetSessionUsage(clusterID, current.Meta.Namespace, current.Meta.Name)
	}

	return nil
}

func stateOf(obj watcher.Object) State {
	state, found, err := unstructured.NestedString(obj.Manifest, "status", "state")
	if err != nil || !found {
		return StateNotReady
	}

	return State(state)
}

// enrich resolves the class and pool names behind the session's resource
// class label. An unknown id is logged and the sentinel label is used, since
// one failed lookup must not lose the lifecycle count.
func (h *Handler) enrich(ctx context.Context, obj watcher.Object) (pool, class string) {
	classID, ok := obj.Labels()[LabelResourceClassID]
	if !ok || classID == "" {
		return unknownLabel, unknownLabel
	}

	resourceClass, err := h.resources.GetResourceClassQuery(ctx, classID)
	if err != nil {
		h.logMissing(ctx, "resource class", classID, err)

		return unknownLabel, unknownLabel
	}

	resourcePool, err := h.resources.GetResourcePoolFromClassQuery(ctx, classID)
	if err != nil {
		h.logMissing(ctx, "resource pool", classID, err)

		return unknownLabel, resourceClass.Name
	}

	return resourcePool.Name, resourceClass.Name
}

func (h *Handler) logMissing(ctx context.Context, what, classID string, err error) {
	var missing missingResource
	if errors.As(err, &missing) {
		h.logger.WarnContext(ctx, "unknown resource class id on session",
			"lookup", what,
			"classID", classID,
		)

		return
	}

	h.logger.ErrorContext(ctx, "resource lookup failed",
		"lookup", what,
		"classID", classID,
		"reason", err,
	)
}

func (h *Handler) sampleUsage(ctx context.Context, clusterID string, obj watcher.Object) {
	if h.usage == nil {
		return
	}

	usage, err := h.usage.SessionUsageQuery(ctx, clusterID, obj.Meta.Namespace, obj.Meta.Name)
	if err != nil {
		h.logger.DebugContext(ctx, "session usage sample failed",
			"cluster", clusterID,
			"session", obj.Meta.Name,
			"reason", err,
		)

		return
	}

	metrics.SetSessionUsage(clusterID, obj.Meta.Namespace, obj.Meta.Name, usage.CPUCores, usage.MemoryBytes)
}
