package treehaus

import (
	"errors"
	"fmt"
)

// rejection taxonomy. Validation failures leave the shared collection
// untouched; persistence and transport failures are surfaced to the
// requester and are never fatal to the process.

var (
	ErrInvalidPosition   = errors.New("invalid position")
	ErrCycle             = errors.New("move would create a cycle")
	ErrTargetNotFound    = errors.New("target not found")
	ErrInvalidCollection = errors.New("invalid collection")
	ErrPersistence       = errors.New("persistence failure")
	ErrTransport         = errors.New("transport unavailable")
)

func errInvalidPosition(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPosition, fmt.Sprintf(format, a...))
}

func errCycle(draggedId string, targetId string) error {
	return fmt.Errorf("%w: %s into %s", ErrCycle, draggedId, targetId)
}

func errTargetNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrTargetNotFound, id)
}

func errInvalidCollection(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCollection, fmt.Sprintf(format, a...))
}

func errPersistence(err error) error {
	return fmt.Errorf("%w: %s", ErrPersistence, err)
}

// whether the requester can fix the rejection by changing the request
func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidPosition) ||
		errors.Is(err, ErrCycle) ||
		errors.Is(err, ErrTargetNotFound) ||
		errors.Is(err, ErrInvalidCollection)
}
