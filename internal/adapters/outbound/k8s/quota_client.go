package k8s

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skillcoder/quota-watcher-controller/internal/logic/quota"
)

type resourceQuotaAdapter struct {
	logger *slog.Logger
	fleet  *Fleet
}

// NewResourceQuotaClient creates the typed ResourceQuota client over the fleet.
func NewResourceQuotaClient(logger *slog.Logger, fleet *Fleet) quota.ResourceQuotaClient {
	return &resourceQuotaAdapter{
		logger: logger,
		fleet:  fleet,
	}
}

var _ quota.ResourceQuotaClient = (*resourceQuotaAdapter)(nil)

func (a *resourceQuotaAdapter) GetQuery(ctx context.Context, clusterID, name string) (*quota.Quota, error) {
	conn, err := a.fleet.Connection(clusterID)
	if err != nil {
		return nil, err
	}

	raw, err := conn.getRaw(ctx, resourceQuotaGVK, conn.Namespace(), name)
	if err != nil {
		var absent *NotFoundError
		if errors.As(err, &absent) {
			return nil, nil
		}

		return nil, fmt.Errorf("get resource quota: %w", err)
	}

	q, err := quotaFromUnstructured(raw)
	if err != nil {
		return nil, fmt.Errorf("translate resource quota %s: %w", name, err)
	}

	return q, nil
}

func (a *resourceQuotaAdapter) CreateCommand(
	ctx context.Context,
	clusterID string,
	q quota.Quota,
	owner quota.PriorityClassRef,
) error {
	conn, err := a.fleet.Connection(clusterID)
	if err != nil {
		return err
	}

	obj, err := resourceQuotaFor(q, conn.Namespace(), owner)
	if err != nil {
		return fmt.Errorf("build resource quota: %w", err)
	}

	if _, err := conn.createRaw(ctx, resourceQuotaGVK, conn.Namespace(), obj); err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			// A retried create after a partial prior failure; the quota is
			// already in place.
			a.logger.DebugContext(ctx, "resource quota already exists",
				"cluster", clusterID,
				"quota", q.ID,
			)

			return nil
		}

		return fmt.Errorf("create resource quota: %w", err)
	}

	return nil
}

func (a *resourceQuotaAdapter) PatchCommand(ctx context.Context, clusterID string, q quota.Quota) error {
	conn, err := a.fleet.Connection(clusterID)
	if err != nil {
		return err
	}

	patch, err := quotaPatch(q)
	if err != nil {
		return err
	}

	if _, err := conn.patchRaw(ctx, resourceQuotaGVK, conn.Namespace(), q.ID, patch); err != nil {
		return fmt.Errorf("patch resource quota: %w", err)
	}

	return nil
}
