package fulfillment

import "strings"

// Status is the request-level state of a fulfillment request.
//
// State transition possibilities:
//
//	pending → confirmed | ready_for_pickup | cancelled | partially_fulfilled | out_of_stock | pending_patient_confirmation
//	pending_patient_confirmation → partially_fulfilled | cancelled
//	confirmed → ready_for_pickup | cancelled
//	partially_fulfilled → ready_for_pickup | cancelled
//	out_of_stock → cancelled
//	ready_for_pickup → completed | cancelled
type Status string

const (
	StatusPending                    Status = "pending"
	StatusPendingPatientConfirmation Status = "pending_patient_confirmation"
	StatusConfirmed                  Status = "confirmed"
	StatusPartiallyFulfilled         Status = "partially_fulfilled"
	StatusOutOfStock                 Status = "out_of_stock"
	StatusReadyForPickup             Status = "ready_for_pickup"
	StatusCompleted                  Status = "completed"
	StatusCancelled                  Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPendingPatientConfirmation, StatusConfirmed,
		StatusPartiallyFulfilled, StatusOutOfStock, StatusReadyForPickup,
		StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) CanTransitionTo(target Status) bool {
	allowed := map[Status][]Status{
		StatusPending: {
			StatusConfirmed, StatusReadyForPickup, StatusCancelled,
			StatusPartiallyFulfilled, StatusOutOfStock, StatusPendingPatientConfirmation,
		},
		StatusPendingPatientConfirmation: {StatusPartiallyFulfilled, StatusCancelled},
		StatusConfirmed:                  {StatusReadyForPickup, StatusCancelled},
		StatusPartiallyFulfilled:         {StatusReadyForPickup, StatusCancelled},
		StatusOutOfStock:                 {StatusCancelled},
		StatusReadyForPickup:             {StatusCompleted, StatusCancelled},
		StatusCompleted:                  {},
		StatusCancelled:                  {},
	}

	for _, t := range allowed[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsCancellable reports whether the patient may still cancel from this status.
func (s Status) IsCancellable() bool {
	switch s {
	case StatusPending, StatusReadyForPickup, StatusPartiallyFulfilled,
		StatusOutOfStock, StatusPendingPatientConfirmation:
		return true
	}
	return false
}

// IsReassignable reports whether the patient may hand the request to a
// different provider from this status.
func (s Status) IsReassignable() bool {
	return s == StatusPartiallyFulfilled || s == StatusOutOfStock
}

// requiresFeedback reports whether entering target from from needs provider
// feedback naming the unavailable items.
func requiresFeedback(from, target Status) bool {
	if from != StatusPending {
		return false
	}
	switch target {
	case StatusPartiallyFulfilled, StatusOutOfStock, StatusPendingPatientConfirmation:
		return true
	}
	return false
}

// AggregateItems folds per-item availability into a request-level status
// recommendation and the feedback text that goes with it. All items available
// yields confirmed; none available yields out_of_stock with every item named;
// a mix yields pending_patient_confirmation naming only the unavailable items.
func AggregateItems(items LineItems) (Status, string) {
	var unavailable []string
	for _, it := range items {
		if !it.Available {
			unavailable = append(unavailable, it.Name)
		}
	}

	switch {
	case len(unavailable) == 0:
		return StatusConfirmed, ""
	case len(unavailable) == len(items):
		return StatusOutOfStock, strings.Join(unavailable, ", ")
	default:
		return StatusPendingPatientConfirmation, strings.Join(unavailable, ", ")
	}
}
