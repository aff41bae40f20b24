package k8s

import (
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// NotFoundError represents a "not found" case that is usually not an error.
type NotFoundError struct{}

func (e *NotFoundError) Error() string {
	return "object not found"
}

func (e *NotFoundError) IsNotFound() {}

var errNotFound = &NotFoundError{}

// ConflictError represents an "already exists" or write-conflict case.
type ConflictError struct{}

func (e *ConflictError) Error() string {
	return "object already exists"
}

func (e *ConflictError) IsConflict() {}

var errConflict = &ConflictError{}

// RemoteUnavailableError represents an unreachable or timed-out cluster endpoint.
type RemoteUnavailableError struct{}

func (e *RemoteUnavailableError) Error() string {
	return "cluster endpoint unavailable"
}

func (e *RemoteUnavailableError) IsRemoteUnavailable() {}

var errRemoteUnavailable = &RemoteUnavailableError{}

// ForeignQuotaError represents a live ResourceQuota not created by this
// subsystem: required hard-limit keys are missing or unparseable.
type ForeignQuotaError struct {
	Reason string
}

func (e *ForeignQuotaError) Error() string {
	return fmt.Sprintf("incompatible resource quota: %s", e.Reason)
}

func (e *ForeignQuotaError) IsValidation() {}

// MalformedObjectError represents a listed or watched object that cannot be
// translated to the domain model.
type MalformedObjectError struct {
	Reason string
}

func (e *MalformedObjectError) Error() string {
	return fmt.Sprintf("malformed object: %s", e.Reason)
}

func (e *MalformedObjectError) IsValidation() {}

// classify translates client-go API errors into the adapter's marker errors.
func classify(verb string, err error) error {
	switch {
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%s: %w", verb, errNotFound)
	case apierrors.IsAlreadyExists(err) || apierrors.IsConflict(err):
		return fmt.Errorf("%s: %w", verb, errConflict)
	case apierrors.IsTimeout(err),
		apierrors.IsServerTimeout(err),
		apierrors.IsServiceUnavailable(err),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", verb, errRemoteUnavailable, err)
	}

	return fmt.Errorf("%s: %w", verb, err)
}
