package k8s

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skillcoder/quota-watcher-controller/internal/logic/quota"
)

type priorityClassAdapter struct {
	logger *slog.Logger
	fleet  *Fleet
}

// NewPriorityClassClient creates the typed PriorityClass client over the fleet.
func NewPriorityClassClient(logger *slog.Logger, fleet *Fleet) quota.PriorityClassClient {
	return &priorityClassAdapter{
		logger: logger,
		fleet:  fleet,
	}
}

var _ quota.PriorityClassClient = (*priorityClassAdapter)(nil)

func (a *priorityClassAdapter) GetQuery(ctx context.Context, clusterID, name string) (*quota.PriorityClassRef, error) {
	conn, err := a.fleet.Connection(clusterID)
	if err != nil {
		return nil, err
	}

	raw, err := conn.getRaw(ctx, priorityClassGVK, "", name)
	if err != nil {
		var absent *NotFoundError
		if errors.As(err, &absent) {
			return nil, nil
		}

		return nil, fmt.Errorf("get priority class: %w", err)
	}

	return &quota.PriorityClassRef{Name: raw.GetName(), UID: string(raw.GetUID())}, nil
}

func (a *priorityClassAdapter) CreateCommand(ctx context.Context, clusterID, name string) (*quota.PriorityClassRef, error) {
	conn, err := a.fleet.Connection(clusterID)
	if err != nil {
		return nil, err
	}

	obj, err := priorityClassFor(name)
	if err != nil {
		return nil, fmt.Errorf("build priority class: %w", err)
	}

	created, err := conn.createRaw(ctx, priorityClassGVK, "", obj)
	if err != nil {
		var conflict *ConflictError
		if !errors.As(err, &conflict) {
			return nil, fmt.Errorf("create priority class: %w", err)
		}

		// Lost a race with a concurrent create of the same name; the
		// existing class serves equally well.
		a.logger.DebugContext(ctx, "priority class already exists", "cluster", clusterID, "name", name)

		existing, err := a.GetQuery(ctx, clusterID, name)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			return nil, fmt.Errorf("create priority class %s: %w", name, errConflict)
		}

		return existing, nil
	}

	return &quota.PriorityClassRef{Name: created.GetName(), UID: string(created.GetUID())}, nil
}

func (a *priorityClassAdapter) DeleteCommand(ctx context.Context, clusterID, name string) error {
	conn, err := a.fleet.Connection(clusterID)
	if err != nil {
		return err
	}

	// Foreground cascade removes the owned ResourceQuota with the class.
	if err := conn.deleteRaw(ctx, priorityClassGVK, "", name, true); err != nil {
		return fmt.Errorf("delete priority class: %w", err)
	}

	return nil
}
