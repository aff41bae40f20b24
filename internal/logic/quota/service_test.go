package quota_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillcoder/quota-watcher-controller/internal/logic/quota"
)

type absentError struct{ name string }

func (e *absentError) Error() string { return "priorityclass " + e.name + " not found" }
func (e *absentError) IsNotFound()   {}

// fakeCluster simulates one cluster's PriorityClass and ResourceQuota store,
// including the owner-reference cascade that the real API server performs.
type fakeCluster struct {
	classes map[string]quota.PriorityClassRef
	quotas  map[string]quota.Quota
	owners  map[string]string // quota id -> owning class name

	classCreateErr error
	quotaCreateErr error
	patchErr       error
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		classes: make(map[string]quota.PriorityClassRef),
		quotas:  make(map[string]quota.Quota),
		owners:  make(map[string]string),
	}
}

type fakeQuotaClient struct{ cluster *fakeCluster }

func (f *fakeQuotaClient) GetQuery(_ context.Context, _, name string) (*quota.Quota, error) {
	q, ok := f.cluster.quotas[name]
	if !ok {
		return nil, nil
	}

	return &q, nil
}

func (f *fakeQuotaClient) CreateCommand(_ context.Context, _ string, q quota.Quota, owner quota.PriorityClassRef) error {
	if f.cluster.quotaCreateErr != nil {
		return f.cluster.quotaCreateErr
	}

	f.cluster.quotas[q.ID] = q
	f.cluster.owners[q.ID] = owner.Name

	return nil
}

func (f *fakeQuotaClient) PatchCommand(_ context.Context, _ string, q quota.Quota) error {
	if f.cluster.patchErr != nil {
		return f.cluster.patchErr
	}

	if _, ok := f.cluster.quotas[q.ID]; !ok {
		return &absentError{name: q.ID}
	}

	f.cluster.quotas[q.ID] = q

	return nil
}

type fakeClassClient struct{ cluster *fakeCluster }

func (f *fakeClassClient) GetQuery(_ context.Context, _, name string) (*quota.PriorityClassRef, error) {
	pc, ok := f.cluster.classes[name]
	if !ok {
		return nil, nil
	}

	return &pc, nil
}

func (f *fakeClassClient) CreateCommand(_ context.Context, _, name string) (*quota.PriorityClassRef, error) {
	if f.cluster.classCreateErr != nil {
		return nil, f.cluster.classCreateErr
	}

	pc := quota.PriorityClassRef{Name: name, UID: "uid-" + name}
	f.cluster.classes[name] = pc

	return &pc, nil
}

func (f *fakeClassClient) DeleteCommand(_ context.Context, _, name string) error {
	if _, ok := f.cluster.classes[name]; !ok {
		return &absentError{name: name}
	}

	delete(f.cluster.classes, name)

	// Foreground cascade: owned quotas go with the class.
	for id, owner := range f.cluster.owners {
		if owner == name {
			delete(f.cluster.quotas, id)
			delete(f.cluster.owners, id)
		}
	}

	return nil
}

func newTestService(cluster *fakeCluster) *quota.Service {
	return quota.New(
		slog.Default(),
		&fakeQuotaClient{cluster: cluster},
		&fakeClassClient{cluster: cluster},
	)
}

func TestCreateQuota_GeneratesID(t *testing.T) {
	t.Parallel()

	cluster := newFakeCluster()
	svc := newTestService(cluster)

	created, err := svc.CreateQuotaCommand(t.Context(), quota.Quota{CPU: 4, MemoryGB: 16}, "cluster-a")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(created.ID, "quota-"))
	require.Len(t, created.ID, len("quota-")+8)

	require.Contains(t, cluster.classes, created.ID)
	require.Contains(t, cluster.quotas, created.ID)
	require.Equal(t, created.ID, cluster.owners[created.ID])
}

func TestCreateQuota_KeepsProvidedID(t *testing.T) {
	t.Parallel()

	cluster := newFakeCluster()
	svc := newTestService(cluster)

	created, err := svc.CreateQuotaCommand(t.Context(), quota.Quota{ID: "quota-fixed01", CPU: 2}, "cluster-a")
	require.NoError(t, err)
	require.Equal(t, "quota-fixed01", created.ID)
}

func TestCreateQuota_ReusesLeftoverPriorityClass(t *testing.T) {
	t.Parallel()

	cluster := newFakeCluster()
	svc := newTestService(cluster)

	// First attempt creates the class but fails on the quota step.
	cluster.quotaCreateErr = errors.New("apiserver unavailable")

	_, err := svc.CreateQuotaCommand(t.Context(), quota.Quota{ID: "quota-retry001", CPU: 2}, "cluster-a")
	require.ErrorIs(t, err, quota.ErrCreateQuota)
	require.Contains(t, cluster.classes, "quota-retry001")
	require.NotContains(t, cluster.quotas, "quota-retry001")

	// The retry must not trip over the leftover class.
	cluster.quotaCreateErr = nil
	cluster.classCreateErr = errors.New("class create must not be called again")

	created, err := svc.CreateQuotaCommand(t.Context(), quota.Quota{ID: "quota-retry001", CPU: 2}, "cluster-a")
	require.NoError(t, err)
	require.Equal(t, "quota-retry001", created.ID)
	require.Contains(t, cluster.quotas, "quota-retry001")
}

func TestCreateQuota_PriorityClassFailure(t *testing.T) {
	t.Parallel()

	cluster := newFakeCluster()
	cluster.classCreateErr = errors.New("webhook denied")
	svc := newTestService(cluster)

	_, err := svc.CreateQuotaCommand(t.Context(), quota.Quota{CPU: 1}, "cluster-a")
	require.ErrorIs(t, err, quota.ErrCreateQuota)
	require.Empty(t, cluster.quotas)
}

func TestUpdateQuota_RequiresID(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeCluster())

	_, err := svc.UpdateQuotaCommand(t.Context(), quota.Quota{CPU: 2}, "cluster-a")
	require.ErrorIs(t, err, quota.ErrUpdateQuota)
	require.ErrorIs(t, err, quota.ErrMissingID)
}

func TestUpdateQuota_PatchesHardLimits(t *testing.T) {
	t.Parallel()

	cluster := newFakeCluster()
	svc := newTestService(cluster)

	created, err := svc.CreateQuotaCommand(t.Context(), quota.Quota{CPU: 2, MemoryGB: 8}, "cluster-a")
	require.NoError(t, err)

	updated, err := svc.UpdateQuotaCommand(t.Context(), quota.Quota{
		ID:       created.ID,
		CPU:      6,
		MemoryGB: 32,
		GPU:      1,
		GPUKind:  quota.GPUKindNVIDIA,
	}, "cluster-a")
	require.NoError(t, err)
	require.InEpsilon(t, 6.0, updated.CPU, 1e-9)

	stored := cluster.quotas[created.ID]
	require.EqualValues(t, 32, stored.MemoryGB)
	require.EqualValues(t, 1, stored.GPU)
}

func TestUpdateQuota_MissingObject(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeCluster())

	_, err := svc.UpdateQuotaCommand(t.Context(), quota.Quota{ID: "quota-ghost001", CPU: 1}, "cluster-a")
	require.ErrorIs(t, err, quota.ErrUpdateQuota)
}

func TestDeleteQuota_CascadesToResourceQuota(t *testing.T) {
	t.Parallel()

	cluster := newFakeCluster()
	svc := newTestService(cluster)

	created, err := svc.CreateQuotaCommand(t.Context(), quota.Quota{CPU: 2}, "cluster-a")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteQuotaCommand(t.Context(), created.ID, "cluster-a"))
	require.NotContains(t, cluster.classes, created.ID)
	require.NotContains(t, cluster.quotas, created.ID)
}

func TestDeleteQuota_AbsentIsSuccess(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeCluster())

	require.NoError(t, svc.DeleteQuotaCommand(t.Context(), "quota-gone0001", "cluster-a"))
}

func TestGetQuota_AbsentYieldsNil(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeCluster())

	q, err := svc.GetQuotaQuery(t.Context(), "quota-none0001", "cluster-a")
	require.NoError(t, err)
	require.Nil(t, q)
}

func TestGetQuota_ReturnsStored(t *testing.T) {
	t.Parallel()

	cluster := newFakeCluster()
	svc := newTestService(cluster)

	created, err := svc.CreateQuotaCommand(t.Context(), quota.Quota{
		CPU:      3,
		MemoryGB: 12,
		GPU:      2,
		GPUKind:  quota.GPUKindAMD,
	}, "cluster-a")
	require.NoError(t, err)

	got, err := svc.GetQuotaQuery(t.Context(), created.ID, "cluster-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, quota.GPUKindAMD, got.GPUKind)
}
