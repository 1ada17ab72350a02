package fulfillment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create persists a new request. Returns ErrDuplicateRequest when a
	// non-cancelled medication request already exists for the same
	// prescription and patient.
	Create(ctx context.Context, r *Request) error

	// GetByID returns ErrRequestNotFound if no request matches.
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)

	// Update writes the mutated aggregate back, guarded by compare-and-swap
	// on Version. Returns ErrVersionConflict if another writer got there
	// first.
	Update(ctx context.Context, r *Request) error

	// List returns a paginated, filtered view of requests.
	List(ctx context.Context, q *ListRequestsQuery) (*PagedRequests, error)

	// HasActiveForPrescription checks the duplicate guard without fetching
	// the full rows.
	HasActiveForPrescription(ctx context.Context, prescriptionID, patientID uuid.UUID) (bool, error)
}
