package sessions_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/skillcoder/quota-watcher-controller/internal/logic/sessions"
	"github.com/skillcoder/quota-watcher-controller/internal/logic/watcher"
)

var sessionGVK = watcher.GVK{Group: "workbench.dev", Version: "v1alpha1", Kind: "Session"}

type fakeRepository struct {
	mu      sync.Mutex
	classes map[string]sessions.ResourceClass
	pools   map[string]sessions.ResourcePool
	lookups int
	err     error
}

type missingError struct{ id string }

func (e *missingError) Error() string      { return "resource class " + e.id + " not found" }
func (e *missingError) IsMissingResource() {}

func (r *fakeRepository) GetResourceClassQuery(_ context.Context, classID string) (*sessions.ResourceClass, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lookups++

	if r.err != nil {
		return nil, r.err
	}

	class, ok := r.classes[classID]
	if !ok {
		return nil, &missingError{id: classID}
	}

	return &class, nil
}

func (r *fakeRepository) GetResourcePoolFromClassQuery(_ context.Context, classID string) (*sessions.ResourcePool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	pool, ok := r.pools[classID]
	if !ok {
		return nil, &missingError{id: classID}
	}

	return &pool, nil
}

type fakeSampler struct {
	mu      sync.Mutex
	samples []string
	usage   sessions.Usage
	err     error
}

func (s *fakeSampler) SessionUsageQuery(_ context.Context, _, _, name string) (*sessions.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, name)

	if s.err != nil {
		return nil, s.err
	}

	usage := s.usage

	return &usage, nil
}

func (s *fakeSampler) sampled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string{}, s.samples...)
}

func sessionObject(name, state, classID string) watcher.Object {
	labels := map[string]any{}
	if classID != "" {
		labels[sessions.LabelResourceClassID] = classID
	}

	return watcher.Object{
		Meta: watcher.ObjectMeta{
			Name:      name,
			Namespace: "workbench",
			ClusterID: "cluster-a",
			UserID:    "user-1",
			GVK:       sessionGVK,
		},
		Manifest: map[string]any{
			"apiVersion": "workbench.dev/v1alpha1",
			"kind":       "Session",
			"metadata": map[string]any{
				"name":      name,
				"namespace": "workbench",
				"labels":    labels,
			},
			"status": map[string]any{"state": state},
		},
	}
}

func newTestHandler(repo sessions.ResourceRepository, sampler sessions.UsageSampler) *sessions.Handler {
	return sessions.NewHandler(slog.Default(), repo, sampler, sessionGVK)
}

// counterValue reads one counter series from the default registry, zero when
// the series does not exist yet.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}

		for _, metric := range family.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}

	return 0
}

func labelsMatch(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) != len(want) {
		return false
	}

	for _, pair := range got {
		if want[pair.GetName()] != pair.GetValue() {
			return false
		}
	}

	return true
}

func TestHandler_IgnoresOtherKinds(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	sampler := &fakeSampler{}
	handler := newTestHandler(repo, sampler)

	obj := sessionObject("build-1", "Running", "class-1")
	obj.Meta.GVK = watcher.GVK{Group: "shipwright.io", Version: "v1beta1", Kind: "BuildRun"}

	require.NoError(t, handler.Handle(t.Context(), nil, obj, "cluster-a", watcher.Added))
	require.Zero(t, repo.lookups)
	require.Empty(t, sampler.sampled())
}

func TestHandler_StartedOnTransitionToRunning(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{
		classes: map[string]sessions.ResourceClass{"class-1": {ID: "class-1", Name: "small"}},
		pools:   map[string]sessions.ResourcePool{"class-1": {ID: "pool-1", Name: "shared"}},
	}
	sampler := &fakeSampler{usage: sessions.Usage{CPUCores: 0.5, MemoryBytes: 1 << 30}}
	handler := newTestHandler(repo, sampler)

	labels := map[string]string{"cluster": "started-test", "pool": "shared", "class": "small"}
	before := counterValue(t, "quotawatcher_session_started_total", labels)

	prev := sessionObject("sess-1", "NotReady", "class-1")
	current := sessionObject("sess-1", "Running", "class-1")

	require.NoError(t, handler.Handle(t.Context(), &prev, current, "started-test", watcher.Modified))

	require.InDelta(t, before+1, counterValue(t, "quotawatcher_session_started_total", labels), 1e-9)
	require.Equal(t, []string{"sess-1"}, sampler.sampled())
}

func TestHandler_ResumedFromHibernation(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{
		classes: map[string]sessions.ResourceClass{"class-1": {ID: "class-1", Name: "small"}},
		pools:   map[string]sessions.ResourcePool{"class-1": {ID: "pool-1", Name: "shared"}},
	}
	handler := newTestHandler(repo, &fakeSampler{})

	labels := map[string]string{"cluster": "resumed-test", "pool": "shared", "class": "small"}
	before := counterValue(t, "quotawatcher_session_resumed_total", labels)

	prev := sessionObject("sess-1", "Hibernated", "class-1")
	current := sessionObject("sess-1", "Running", "class-1")

	require.NoError(t, handler.Handle(t.Context(), &prev, current, "resumed-test", watcher.Modified))

	require.InDelta(t, before+1, counterValue(t, "quotawatcher_session_resumed_total", labels), 1e-9)
}

func TestHandler_HibernatedSkipsSampling(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{
		classes: map[string]sessions.ResourceClass{"class-1": {ID: "class-1", Name: "small"}},
		pools:   map[string]sessions.ResourcePool{"class-1": {ID: "pool-1", Name: "shared"}},
	}
	sampler := &fakeSampler{}
	handler := newTestHandler(repo, sampler)

	labels := map[string]string{"cluster": "hibernated-test", "pool": "shared", "class": "small"}
	before := counterValue(t, "quotawatcher_session_hibernated_total", labels)

	prev := sessionObject("sess-1", "Running", "class-1")
	current := sessionObject("sess-1", "Hibernated", "class-1")

	require.NoError(t, handler.Handle(t.Context(), &prev, current, "hibernated-test", watcher.Modified))

	require.InDelta(t, before+1, counterValue(t, "quotawatcher_session_hibernated_total", labels), 1e-9)
	require.Empty(t, sampler.sampled())
}

func TestHandler_UnchangedStateIsNotCounted(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{
		classes: map[string]sessions.ResourceClass{"class-1": {ID: "class-1", Name: "small"}},
		pools:   map[string]sessions.ResourcePool{"class-1": {ID: "pool-1", Name: "shared"}},
	}
	sampler := &fakeSampler{}
	handler := newTestHandler(repo, sampler)

	labels := map[string]string{"cluster": "unchanged-test", "pool": "shared", "class": "small"}
	before := counterValue(t, "quotawatcher_session_started_total", labels)

	prev := sessionObject("sess-1", "Running", "class-1")
	current := sessionObject("sess-1", "Running", "class-1")

	require.NoError(t, handler.Handle(t.Context(), &prev, current, "unchanged-test", watcher.Modified))

	require.InDelta(t, before, counterValue(t, "quotawatcher_session_started_total", labels), 1e-9)
	require.Empty(t, sampler.sampled())
}

func TestHandler_DeletedCountsStopped(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{
		classes: map[string]sessions.ResourceClass{"class-1": {ID: "class-1", Name: "small"}},
		pools:   map[string]sessions.ResourcePool{"class-1": {ID: "pool-1", Name: "shared"}},
	}
	sampler := &fakeSampler{}
	handler := newTestHandler(repo, sampler)

	labels := map[string]string{"cluster": "stopped-test", "pool": "shared", "class": "small"}
	before := counterValue(t, "quotawatcher_session_stopped_total", labels)

	prev := sessionObject("sess-1", "Running", "class-1")
	current := sessionObject("sess-1", "Running", "class-1")

	require.NoError(t, handler.Handle(t.Context(), &prev, current, "stopped-test", watcher.Deleted))

	require.InDelta(t, before+1, counterValue(t, "quotawatcher_session_stopped_total", labels), 1e-9)
	require.Empty(t, sampler.sampled())
}

func TestHandler_FinalizedDeletionCountsOneStop(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{
		classes: map[string]sessions.ResourceClass{"class-1": {ID: "class-1", Name: "small"}},
		pools:   map[string]sessions.ResourcePool{"class-1": {ID: "pool-1", Name: "shared"}},
	}
	handler := newTestHandler(repo, &fakeSampler{})

	labels := map[string]string{"cluster": "finalized-test", "pool": "shared", "class": "small"}
	before := counterValue(t, "quotawatcher_session_stopped_total", labels)

	// A finalized session dies twice on the wire: first a MODIFIED carrying
	// the deletionTimestamp, which the watcher applies as a deletion with the
	// cached previous object, then the real DELETED for an object the mirror
	// no longer holds.
	prev := sessionObject("sess-1", "Running", "class-1")
	terminating := sessionObject("sess-1", "Running", "class-1")
	metadata, ok := terminating.Manifest["metadata"].(map[string]any)
	require.True(t, ok)
	metadata["deletionTimestamp"] = "2026-08-29T10:00:00Z"

	require.NoError(t, handler.Handle(t.Context(), &prev, terminating, "finalized-test", watcher.Deleted))
	require.NoError(t, handler.Handle(t.Context(), nil, terminating, "finalized-test", watcher.Deleted))

	require.InDelta(t, before+1, counterValue(t, "quotawatcher_session_stopped_total", labels), 1e-9)
}

func TestHandler_LookupFailureDegradesToUnknown(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	handler := newTestHandler(repo, &fakeSampler{})

	labels := map[string]string{"cluster": "degrade-test", "pool": "unknown", "class": "unknown"}
	before := counterValue(t, "quotawatcher_session_started_total", labels)

	current := sessionObject("sess-1", "Running", "class-ghost")

	require.NoError(t, handler.Handle(t.Context(), nil, current, "degrade-test", watcher.Added))

	require.InDelta(t, before+1, counterValue(t, "quotawatcher_session_started_total", labels), 1e-9)
}

func TestHandler_MissingClassLabelDegradesToUnknown(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{}
	handler := newTestHandler(repo, &fakeSampler{})

	labels := map[string]string{"cluster": "nolabel-test", "pool": "unknown", "class": "unknown"}
	before := counterValue(t, "quotawatcher_session_started_total", labels)

	current := sessionObject("sess-1", "Running", "")

	require.NoError(t, handler.Handle(t.Context(), nil, current, "nolabel-test", watcher.Added))

	require.InDelta(t, before+1, counterValue(t, "quotawatcher_session_started_total", labels), 1e-9)
	require.Zero(t, repo.lookups)
}

func TestHandler_SamplerFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{
		classes: map[string]sessions.ResourceClass{"class-1": {ID: "class-1", Name: "small"}},
		pools:   map[string]sessions.ResourcePool{"class-1": {ID: "pool-1", Name: "shared"}},
	}
	sampler := &fakeSampler{err: errors.New("metrics API down")}
	handler := newTestHandler(repo, sampler)

	current := sessionObject("sess-1", "Running", "class-1")

	require.NoError(t, handler.Handle(t.Context(), nil, current, "sampler-fail-test", watcher.Added))
	require.Equal(t, []string{"sess-1"}, sampler.sampled())
}

func TestHandler_RepositoryErrorIsNonFatal(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{err: errors.New("resources API down")}
	handler := newTestHandler(repo, &fakeSampler{})

	current := sessionObject("sess-1", "Running", "class-1")

	require.NoError(t, handler.Handle(t.Context(), nil, current, "repo-fail-test", watcher.Added))
}
