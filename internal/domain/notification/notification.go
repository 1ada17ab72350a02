package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind labels why the recipient is being notified.
type Kind string

const (
	KindMedicationAssignment    Kind = "medication_assignment"
	KindLabResultAssignment     Kind = "lab_result_assignment"
	KindImagingAssignment       Kind = "imaging_assignment"
	KindPatientConfirmedPartial Kind = "patient_confirmed_partial"
)

// AssignmentKind returns the assignment notification kind for a request type
// string ("medication", "lab_result", "imaging").
func AssignmentKind(requestType string) Kind {
	return Kind(requestType + "_assignment")
}

// Notification is one outbound state-change event. The workflow fires these
// and never reads them back; delivery is someone else's problem.
type Notification struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	Recipient        uuid.UUID `gorm:"column:recipient;type:uuid;not null;index"`
	Kind             Kind      `gorm:"column:kind;type:varchar(40);not null"`
	RelatedRequestID uuid.UUID `gorm:"column:related_request_id;type:uuid;not null;index"`
	RelatedType      string    `gorm:"column:related_type;type:varchar(20)"`

	Read bool `gorm:"column:read;default:false"`
}

func (Notification) TableName() string {
	return "clinical.notifications"
}

// Notifier is invoked, never queried. Implementations must not fail the
// calling operation: delivery errors are logged and swallowed.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Repository persists notifications for later delivery or display.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
}
