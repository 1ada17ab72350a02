package fulfillment

import (
	"errors"
	"fmt"
)

var (
	ErrRequestNotFound  = errors.New("fulfillment request not found")
	ErrDuplicateRequest = errors.New("an active fulfillment request already exists for this prescription")
	ErrFeedbackRequired = errors.New("feedback naming the unavailable items is required")
	ErrInvalidState     = errors.New("operation not permitted in the current status")
	ErrVersionConflict  = errors.New("fulfillment request was modified concurrently")
	ErrNoItems          = errors.New("a fulfillment request needs at least one item")
	ErrInvalidType      = errors.New("invalid fulfillment request type")
	ErrProviderRequired = errors.New("a provider id is required")
	ErrNothingToApply   = errors.New("fulfill request carries neither items nor a status")
)

// TransitionError is returned when a status change is not a legal edge of the
// request state machine.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func invalidTransition(from, to Status) error {
	return &TransitionError{From: from, To: to}
}
