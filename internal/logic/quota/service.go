package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	utilrand "k8s.io/apimachinery/pkg/util/rand"
)

const generatedIDSuffixLength = 8

// Service manages the paired (PriorityClass, ResourceQuota) lifecycle that
// implements a tenant's compute ceiling plus its scheduling priority.
// Creation is a two-step, non-atomic protocol: a partial failure leaves the
// PriorityClass behind and a retry finds and reuses it.
type Service struct {
	logger          *slog.Logger
	resourceQuotas  ResourceQuotaClient
	priorityClasses PriorityClassClient
}

// New creates a new quota repository service.
func New(
	logger *slog.Logger,
	resourceQuotas ResourceQuotaClient,
	priorityClasses PriorityClassClient,
) *Service {
	return &Service{
		logger:          logger,
		resourceQuotas:  resourceQuotas,
		priorityClasses: priorityClasses,
	}
}

// CreateQuotaCommand creates the paired PriorityClass and ResourceQuota in
// the target cluster. The quota's id, generated when absent, becomes the
// PriorityClass name. An already existing PriorityClass with that name is
// reused, which makes retry after a partial prior failure safe.
func (s *Service) CreateQuotaCommand(ctx context.Context, newQuota Quota, clusterID string) (*Quota, error) {
	q := newQuota
	if q.ID == "" {
		q.ID = "quota-" + utilrand.String(generatedIDSuffixLength)
	}

	logger := s.logger.With("cluster", clusterID, "quota", q.ID)

	pc, err := s.priorityClasses.GetQuery(ctx, clusterID, q.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup priority class: %w", ErrCreateQuota, err)
	}

	if pc == nil {
		pc, err = s.priorityClasses.CreateCommand(ctx, clusterID, q.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: create priority class: %w", ErrCreateQuota, err)
		}

		logger.InfoContext(ctx, "priority class created")
	} else {
		// Left behind by a previously failed create; reusing it keeps the
		// operation retryable.
		logger.InfoContext(ctx, "priority class already exists, reusing")
	}

	if err := s.resourceQuotas.CreateCommand(ctx, clusterID, q, *pc); err != nil {
		return nil, fmt.Errorf("%w: create resource quota: %w", ErrCreateQuota, err)
	}

	logger.InfoContext(ctx, "resource quota created",
		"cpu", q.CPU,
		"memoryGB", q.MemoryGB,
		"gpu", q.GPU,
	)

	return &q, nil
}

// UpdateQuotaCommand patches the existing ResourceQuota's hard limits and
// scope selector. The PriorityClass is never mutated by update.
func (s *Service) UpdateQuotaCommand(ctx context.Context, q Quota, clusterID string) (*Quota, error) {
	if q.ID == "" {
		return nil, fmt.Errorf("%w: %w", ErrUpdateQuota, ErrMissingID)
	}

	if err := s.resourceQuotas.PatchCommand(ctx, clusterID, q); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpdateQuota, err)
	}

	s.logger.InfoContext(ctx, "resource quota updated", "cluster", clusterID, "quota", q.ID)

	return &q, nil
}

// DeleteQuotaCommand deletes the PriorityClass with foreground cascade
// propagation, which transitively removes the owned ResourceQuota. Deleting
// a name that does not exist is success: the net effect already holds.
func (s *Service) DeleteQuotaCommand(ctx context.Context, name, clusterID string) error {
	err := s.priorityClasses.DeleteCommand(ctx, clusterID, name)
	if err != nil {
		var absent notFound
		if errors.As(err, &absent) {
			s.logger.DebugContext(ctx, "quota already absent", "cluster", clusterID, "quota", name)

			return nil
		}

		return fmt.Errorf("%w: %w", ErrDeleteQuota, err)
	}

	s.logger.InfoContext(ctx, "quota deleted", "cluster", clusterID, "quota", name)

	return nil
}

// GetQuotaQuery reads the live ResourceQuota and translates it back to the
// domain model; a missing object yields nil rather than an error.
func (s *Service) GetQuotaQuery(ctx context.Context, name, clusterID string) (*Quota, error) {
	q, err := s.resourceQuotas.GetQuery(ctx, clusterID, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGetQuota, err)
	}

	return q, nil
}
