package memory

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for backend operations.
var (
	// ErrBackendUnavailable indicates a tier could not be reached or is
	// misconfigured. Constructors absorb it by substituting the baseline.
	ErrBackendUnavailable = errors.New("memory: backend unavailable")

	// ErrUnknownBackend indicates the configured backend name is not known.
	ErrUnknownBackend = errors.New("memory: unknown backend")

	// ErrEmbedding indicates the content could not be vectorized.
	ErrEmbedding = errors.New("memory: embedding failed")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("memory: record not found")

	// ErrCapacity indicates the backend rejected a write (quota, disk).
	ErrCapacity = errors.New("memory: capacity exceeded")

	// ErrTransient indicates a retryable I/O failure.
	ErrTransient = errors.New("memory: transient failure")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the dimension fixed for the collection.
	ErrDimensionMismatch = errors.New("memory: embedding dimension mismatch")

	// ErrInvalidEntry indicates a malformed entry (empty content,
	// non-scalar metadata).
	ErrInvalidEntry = errors.New("memory: invalid entry")

	// ErrInvalidFilter indicates a filter expression that does not compile.
	ErrInvalidFilter = errors.New("memory: invalid filter")

	// ErrUnauthorized indicates a running tier rejected its credentials.
	ErrUnauthorized = errors.New("memory: credentials rejected")

	// ErrClosed indicates an operation on a closed backend.
	ErrClosed = errors.New("memory: backend closed")
)

// IsTransient reports whether the error is retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Transient marks err as retryable, keeping the cause in the chain.
// Errors already classified as transient are returned unchanged.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Unavailable marks err as a construction-time availability failure.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
