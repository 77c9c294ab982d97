// Package shared contains the error vocabulary used by the storage, cache and
// configuration layers.
//
// Errors raised by operations wrapped in the retry executor are never
// classified or rewritten: the executor surfaces them as-is. The kinds below
// describe failures of the supporting infrastructure only (settings store,
// cache backends, process configuration).
//
//	switch shared.KindOf(err) {
//	case shared.KindValidation:
//	    // bad process configuration or settings seed file
//	case shared.KindConflict:
//	    // settings update lost too many optimistic races
//	case shared.KindDependencyFailure:
//	    // backend (sqlite, postgres, redis) unreachable or misbehaving
//	}
package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors that can be used across the application
var (
	// ErrValidation indicates that input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates a concurrent modification that could not be resolved
	ErrConflict = errors.New("conflict")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrDependencyFailure indicates that an external dependency failed
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindValidation represents input validation errors
	KindValidation
	// KindConflict represents concurrent modification errors
	KindConflict
	// KindTimeout represents timeout errors
	KindTimeout
	// KindDependencyFailure represents external dependency failures
	KindDependencyFailure
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindConflict:
		return "Conflict"
	case KindTimeout:
		return "Timeout"
	case KindDependencyFailure:
		return "DependencyFailure"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// kindPriorities defines the deterministic order for error classification.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},
	{KindTimeout, ErrTimeout},
	{KindValidation, ErrValidation},
	{KindConflict, ErrConflict},
	{KindDependencyFailure, ErrDependencyFailure},
}

// KindOf returns the Kind of the given error by checking against known sentinel errors.
// Cancellation wins over timeouts, timeouts win over everything else.
// Returns KindUnknown for unrecognized errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, priority := range kindPriorities {
		switch priority.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if errors.Is(err, priority.err) {
				return priority.kind
			}
		}
	}

	return KindUnknown
}

// MarkKind wraps err with the sentinel of kind so that KindOf reports it,
// while errors.Is(result, err) stays true. Marking is idempotent.
func MarkKind(err error, kind Kind) error {
	var sentinel error
	for _, p := range kindPriorities {
		if p.kind == kind {
			sentinel = p.err
		}
	}
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap wraps an error with additional context.
// If err is nil, Wrap returns nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Dependency marks err as a dependency failure and prefixes it with the backend name.
func Dependency(backend string, err error) error {
	if err == nil {
		return nil
	}
	return MarkKind(Wrap(err, backend), KindDependencyFailure)
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
// It checks for context.DeadlineExceeded, net.Error timeouts, and ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsValidation reports whether the error indicates input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
