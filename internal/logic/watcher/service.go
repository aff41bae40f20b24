package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skillcoder/quota-watcher-controller/internal/infra/metrics"
)

// ScheduleParser computes cron occurrences for the periodic full resync.
type ScheduleParser interface {
	NextAfter(spec, tz string, after time.Time) (time.Time, error)
}

// Service mirrors tracked kinds from a fleet of clusters into the object
// store and dispatches every applied event to the handler. One watch task
// runs per (cluster, kind) and one resync task per cluster; the service
// itself is driven by a task supervisor.
type Service struct {
	logger         *slog.Logger
	store          ObjectStore
	clusters       map[string]Cluster
	kinds          []TrackedKind
	handler        EventHandler
	resyncInterval time.Duration
	resyncSchedule string
	resyncTZ       string
	scheduleParser ScheduleParser
	watchBackoff   time.Duration

	mu           sync.RWMutex
	lastFullSync map[string]time.Time
	// syncMu serializes full-sync against watch-event application per
	// cluster so a stale event cannot clobber a fresher full-sync view.
	syncMu map[string]*sync.Mutex
}

// New creates a new watcher service. scheduleParser may be nil when
// resyncSchedule is empty; the fixed resyncInterval then applies.
func New(
	logger *slog.Logger,
	store ObjectStore,
	clusters map[string]Cluster,
	kinds []TrackedKind,
	handler EventHandler,
	resyncInterval time.Duration,
	watchBackoff time.Duration,
	resyncSchedule string,
	resyncTZ string,
	scheduleParser ScheduleParser,
) *Service {
	syncMu := make(map[string]*sync.Mutex, len(clusters))
	for id := range clusters {
		syncMu[id] = &sync.Mutex{}
	}

	return &Service{
		logger:         logger,
		store:          store,
		clusters:       clusters,
		kinds:          kinds,
		handler:        handler,
		resyncInterval: resyncInterval,
		resyncSchedule: resyncSchedule,
		resyncTZ:       resyncTZ,
		scheduleParser: scheduleParser,
		watchBackoff:   watchBackoff,
		lastFullSync:   make(map[string]time.Time, len(clusters)),
		syncMu:         syncMu,
	}
}

// Kinds returns the tracked kinds, for task registration.
func (s *Service) Kinds() []TrackedKind {
	return s.kinds
}

// Clusters returns the fleet, for task registration.
func (s *Service) Clusters() map[string]Cluster {
	return s.clusters
}

// WatchTaskName names the supervised watch task for one (cluster, kind).
func WatchTaskName(clusterID string, kind TrackedKind) string {
	return fmt.Sprintf("watch/%s/%s", clusterID, kind.Resource)
}

// ResyncTaskName names the supervised resync task for one cluster.
func ResyncTaskName(clusterID string) string {
	return fmt.Sprintf("resync/%s", clusterID)
}

// Name returns the name of the watcher component.
func (s *Service) Name() string {
	return "watcher"
}

// Ping reports unhealthy when any cluster has not completed a full sync
// within twice the resync interval.
func (s *Service) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for id := range s.clusters {
		last, ok := s.lastFullSync[id]
		if !ok {
			return fmt.Errorf("cluster %s has not completed its first full sync", id)
		}

		if age := time.Since(last); age > 2*s.resyncInterval {
			return fmt.Errorf("cluster %s last full sync was too long ago: %s", id, age.Round(time.Second))
		}
	}

	return nil
}

// RunWatchCommand runs the watch loop for one (cluster, kind) until the
// context is cancelled. Stream termination is the expected steady-state
// failure mode: the loop backs off and resubscribes. Store failures
// propagate so the supervisor restarts the task with backoff.
func (s *Service) RunWatchCommand(ctx context.Context, clusterID string, kind TrackedKind) error {
	cluster, ok := s.clusters[clusterID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCluster, clusterID)
	}

	logger := s.logger.With("cluster", clusterID, "kind", kind.GVK.Kind)

	namespace := cluster.Namespace
	if kind.ClusterScoped {
		namespace = ""
	}

	for {
		// Each subscription gets its own context so a failed task run
		// releases its stream; a supervisor restart must not layer a new
		// subscription over a surviving one.
		streamCtx, cancelStream := context.WithCancel(ctx)

		events, err := cluster.Client.WatchQuery(streamCtx, kind.GVK, namespace)
		if err != nil {
			cancelStream()

			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("open watch: %w", err)
		}

		logger.DebugContext(ctx, "watch stream open")

		for event := range events {
			if err := s.applyEvent(ctx, cluster, kind, event); err != nil {
				cancelStream()

				return fmt.Errorf("apply event: %w", err)
			}
		}

		cancelStream()

		if ctx.Err() != nil {
			return nil
		}

		metrics.RecordWatchReconnect(clusterID, kind.Resource)
		logger.InfoContext(ctx, "watch stream ended, reconnecting", "backoff", s.watchBackoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.watchBackoff):
		}
	}
}

func (s *Service) applyEvent(ctx context.Context, cluster Cluster, kind TrackedKind, event WatchEvent) error {
	// Held by a running full sync for the same cluster; events queue here
	// instead of being dropped.
	mu := s.clusterMutex(cluster.ID)
	mu.Lock()
	defer mu.Unlock()

	obj := event.Object
	obj.Meta.ClusterID = cluster.ID
	obj.Meta.UserID = s.ownership(kind, obj)

	prev, err := s.store.Get(ctx, obj.Meta)
	if err != nil {
		return fmt.Errorf("read previous object: %w", err)
	}

	eventType := event.Type
	if eventType == Deleted || obj.HasDeletionTimestamp() {
		eventType = Deleted

		if err := s.store.Delete(ctx, obj.Meta); err != nil {
			return fmt.Errorf("delete object: %w", err)
		}
	} else {
		if err := s.store.Upsert(ctx, obj); err != nil {
			return fmt.Errorf("upsert object: %w", err)
		}
	}

	// One handler failure must not stop cache maintenance.
	if err := s.handler.Handle(ctx, prev, obj, cluster.ID, eventType); err != nil {
		s.logger.WarnContext(ctx, "event handler failed",
			"cluster", cluster.ID,
			"kind", kind.GVK.Kind,
			"name", obj.Meta.Name,
			"eventType", string(eventType),
			"reason", err,
		)
	}

	return nil
}

// RunResyncCommand runs the periodic full-resync loop for one cluster until
// the context is cancelled, starting with an immediate sync.
func (s *Service) RunResyncCommand(ctx context.Context, clusterID string) error {
	for {
		if err := s.FullSyncCommand(ctx, clusterID); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}

		wait, err := s.nextResyncDelay(time.Now())
		if err != nil {
			return fmt.Errorf("compute next resync: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (s *Service) nextResyncDelay(now time.Time) (time.Duration, error) {
	if s.resyncSchedule == "" || s.scheduleParser == nil {
		return s.resyncInterval, nil
	}

	next, err := s.scheduleParser.NextAfter(s.resyncSchedule, s.resyncTZ, now)
	if err != nil {
		return 0, err
	}

	return next.Sub(now), nil
}

// FullSyncCommand lists every tracked kind from the cluster, upserts all
// observed objects and deletes cache entries that were not observed in this
// pass. Watch-event application for the same cluster blocks for the
// duration.
func (s *Service) FullSyncCommand(ctx context.Context, clusterID string) error {
	cluster, ok := s.clusters[clusterID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCluster, clusterID)
	}

	mu := s.clusterMutex(clusterID)
	mu.Lock()
	defer mu.Unlock()

	logger := s.logger.With("cluster", clusterID)
	start := time.Now()

	for _, kind := range s.kinds {
		if err := s.fullSyncKind(ctx, cluster, kind); err != nil {
			return fmt.Errorf("%w: %s %s: %w", ErrFullSync, clusterID, kind.GVK.Kind, err)
		}
	}

	s.mu.Lock()
	s.lastFullSync[clusterID] = time.Now()
	s.mu.Unlock()

	metrics.ObserveFullSyncDuration(clusterID, time.Since(start))
	logger.InfoContext(ctx, "full sync complete", "duration", time.Since(start))

	return nil
}

func (s *Service) fullSyncKind(ctx context.Context, cluster Cluster, kind TrackedKind) error {
	namespace := cluster.Namespace
	if kind.ClusterScoped {
		namespace = ""
	}

	observed, err := cluster.Client.ListQuery(ctx, ObjectFilter{
		GVK:       kind.GVK,
		Namespace: namespace,
		ClusterID: cluster.ID,
	})
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}

	seen := make(map[string]struct{}, len(observed))

	for i := range observed {
		obj := observed[i]
		obj.Meta.ClusterID = cluster.ID
		obj.Meta.UserID = s.ownership(kind, obj)

		if err := s.store.Upsert(ctx, obj); err != nil {
			return fmt.Errorf("upsert object %s: %w", obj.Meta.Name, err)
		}

		seen[obj.Meta.Namespace+"/"+obj.Meta.Name] = struct{}{}
	}

	cached, err := s.store.List(ctx, ObjectFilter{
		GVK:       kind.GVK,
		ClusterID: cluster.ID,
	})
	if err != nil {
		return fmt.Errorf("list cached objects: %w", err)
	}

	// Cache entries not observed in this pass were deleted upstream while
	// the watch was disconnected.
	for i := range cached {
		meta := cached[i].Meta
		if _, ok := seen[meta.Namespace+"/"+meta.Name]; ok {
			continue
		}

		if err := s.store.Delete(ctx, meta); err != nil {
			return fmt.Errorf("delete stale object %s: %w", meta.Name, err)
		}

		s.logger.DebugContext(ctx, "removed stale cache entry",
			"cluster", cluster.ID,
			"kind", kind.GVK.Kind,
			"name", meta.Name,
		)
	}

	return nil
}

// LastFullSync returns the completion time of the cluster's most recent full
// sync, zero if none completed yet.
func (s *Service) LastFullSync(clusterID string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastFullSync[clusterID]
}

func (s *Service) clusterMutex(clusterID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.syncMu[clusterID]
	if !ok {
		mu = &sync.Mutex{}
		s.syncMu[clusterID] = mu
	}

	return mu
}

func (s *Service) ownership(kind TrackedKind, obj Object) string {
	if kind.SystemOwned {
		return SystemUserID
	}

	if userID, ok := obj.Labels()[LabelOwnerUserID]; ok && userID != "" {
		return userID
	}

	return SystemUserID
}
