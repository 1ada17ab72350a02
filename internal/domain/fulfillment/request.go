package fulfillment

import (
	"time"

	"github.com/google/uuid"
)

// RequestType identifies which provider kind a request is routed to. Fixed at
// creation.
type RequestType string

const (
	TypeMedication RequestType = "medication"
	TypeLabResult  RequestType = "lab_result"
	TypeImaging    RequestType = "imaging"
)

func (t RequestType) IsValid() bool {
	switch t {
	case TypeMedication, TypeLabResult, TypeImaging:
		return true
	}
	return false
}

// ProviderKind is the capability a provider account must hold to act on a
// request of the matching type.
type ProviderKind string

const (
	KindPharmacy    ProviderKind = "pharmacy"
	KindLab         ProviderKind = "lab"
	KindRadiologist ProviderKind = "radiologist"
)

// ProviderKind returns the provider capability responsible for this type.
func (t RequestType) ProviderKind() ProviderKind {
	switch t {
	case TypeLabResult:
		return KindLab
	case TypeImaging:
		return KindRadiologist
	default:
		return KindPharmacy
	}
}

// Request is the workflow aggregate tracking one prescription component's
// provider assignment and completion state.
type Request struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	Type      RequestType `gorm:"column:type;type:varchar(20);not null;index"`
	PatientID uuid.UUID   `gorm:"column:patient_id;type:uuid;not null;index"`

	// AssignedProviderID is mutable only via reassignment.
	AssignedProviderID uuid.UUID `gorm:"column:assigned_provider_id;type:uuid;not null;index"`

	// PrescriptionID links back to the originating prescription. At most one
	// non-cancelled medication request may exist per prescription and patient.
	PrescriptionID *uuid.UUID `gorm:"column:prescription_id;type:uuid;index"`

	Status Status    `gorm:"column:status;type:varchar(40);not null;default:'pending';index"`
	Items  LineItems `gorm:"column:items;serializer:json;not null"`

	Feedback      string `gorm:"column:feedback;type:text"`
	ResultFileURL string `gorm:"column:result_file_url;type:text"`

	// AwaitingReport marks the aggregation phase: set at creation and on
	// reassignment, cleared by the first availability report or any explicit
	// transition. While set, item availability drives the request status.
	AwaitingReport bool `gorm:"column:awaiting_report;not null;default:true"`

	// Version guards every read-modify-write with compare-and-swap.
	Version int64 `gorm:"column:version;not null;default:0"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Request) TableName() string {
	return "clinical.fulfillment_requests"
}

// New builds a pending request from a creation command. Items start available
// with pending status; duplicate names collapse last-write-wins.
func New(cmd *CreateRequestCommand) (*Request, error) {
	if !cmd.Type.IsValid() {
		return nil, ErrInvalidType
	}
	if cmd.AssignedProviderID == uuid.Nil {
		return nil, ErrProviderRequired
	}
	if len(cmd.Items) == 0 {
		return nil, ErrNoItems
	}

	r := &Request{
		Type:               cmd.Type,
		PatientID:          cmd.PatientID,
		AssignedProviderID: cmd.AssignedProviderID,
		PrescriptionID:     cmd.PrescriptionID,
		Status:             StatusPending,
		Items:              LineItems{}.merge(cmd.Items),
		AwaitingReport:     true,
		CreatedBy:          cmd.CreatedBy,
	}
	if len(r.Items) == 0 {
		return nil, ErrNoItems
	}
	r.syncItemStatuses()
	return r, nil
}

// syncItemStatuses re-derives every item's status: unavailable wins outright,
// otherwise the item tracks the request-level status.
func (r *Request) syncItemStatuses() {
	for i := range r.Items {
		if !r.Items[i].Available {
			r.Items[i].Status = ItemUnavailable
		} else {
			r.Items[i].Status = itemStatusFor(r.Status)
		}
	}
}

// transition applies a validated status change and its side effects on
// feedback and item statuses.
func (r *Request) transition(target Status, feedback string) error {
	if !r.Status.CanTransitionTo(target) {
		return invalidTransition(r.Status, target)
	}
	if requiresFeedback(r.Status, target) && feedback == "" {
		return ErrFeedbackRequired
	}

	r.Status = target
	if feedback != "" {
		r.Feedback = feedback
	}
	if target == StatusReadyForPickup {
		r.Feedback = ""
	}
	r.AwaitingReport = false
	r.syncItemStatuses()
	return nil
}

// ApplyReport merges a provider's availability report into the item list and
// advances the request status. While the request is awaiting its first report
// and no explicit status is given, the aggregated item availability decides
// the target; afterwards the report only updates items unless an explicit
// status accompanies it.
func (r *Request) ApplyReport(reports []ItemReport, explicit *Status, feedback string) error {
	if r.Status.IsTerminal() {
		return invalidTransition(r.Status, r.Status)
	}

	merged := r.Items.merge(reports)

	var target Status
	switch {
	case explicit != nil:
		target = *explicit
	case r.AwaitingReport:
		// The aggregator only recommends a target; the provider still has to
		// name the unavailable items in feedback, which the transition
		// validator enforces.
		target, _ = AggregateItems(merged)
	default:
		// Item-only update after an explicit transition: availability changes
		// no longer recompute the request status.
		r.Items = merged
		r.syncItemStatuses()
		return nil
	}

	if !target.IsValid() {
		return invalidTransition(r.Status, target)
	}

	prev := r.Items
	r.Items = merged
	if err := r.transition(target, feedback); err != nil {
		r.Items = prev
		return err
	}
	return nil
}

// ApplyStatus is the provider's explicit transition path, bypassing
// aggregation. Patient-only edges are rejected here; they go through
// ConfirmPartial, Cancel, and Reassign.
func (r *Request) ApplyStatus(target Status, feedback string) error {
	if !target.IsValid() {
		return invalidTransition(r.Status, target)
	}
	if target == StatusCancelled {
		return invalidTransition(r.Status, target)
	}
	if r.Status == StatusPendingPatientConfirmation && target == StatusPartiallyFulfilled {
		return invalidTransition(r.Status, target)
	}
	return r.transition(target, feedback)
}

// ConfirmPartial is the patient accepting a partially available request.
func (r *Request) ConfirmPartial() error {
	if r.Status != StatusPendingPatientConfirmation {
		return invalidTransition(r.Status, StatusPartiallyFulfilled)
	}
	return r.transition(StatusPartiallyFulfilled, "")
}

// Cancel is the patient's terminal exit, allowed until completion.
func (r *Request) Cancel() error {
	if !r.Status.IsCancellable() {
		return ErrInvalidState
	}
	return r.transition(StatusCancelled, "")
}

// Reassign hands the request to a new provider and resets the request-level
// state to pending. Item availability and statuses persist so the new
// provider sees the prior round's findings.
func (r *Request) Reassign(newProviderID uuid.UUID) error {
	if newProviderID == uuid.Nil {
		return ErrProviderRequired
	}
	if !r.Status.IsReassignable() {
		return ErrInvalidState
	}

	r.AssignedProviderID = newProviderID
	r.Status = StatusPending
	r.Feedback = ""
	r.ResultFileURL = ""
	r.AwaitingReport = true
	return nil
}

type CreateRequestCommand struct {
	Type               RequestType
	PatientID          uuid.UUID
	AssignedProviderID uuid.UUID
	PrescriptionID     *uuid.UUID
	Items              []ItemReport
	CreatedBy          uuid.UUID
}

type FulfillCommand struct {
	Items         []ItemReport
	Status        *Status
	Feedback      string
	ResultFileURL string
}

type ListRequestsQuery struct {
	PatientID  *uuid.UUID
	ProviderID *uuid.UUID
	Type       *RequestType
	Status     *Status
	Page       int
	PageSize   int
}

type PagedRequests struct {
	Requests   []*Request
	TotalCount int64
	Page       int
	PageSize   int
	TotalPages int
}
