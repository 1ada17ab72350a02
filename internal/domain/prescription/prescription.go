package prescription

import (
	"time"

	"github.com/google/uuid"
)

type PrescriptionStatus string

const (
	StatusActive    PrescriptionStatus = "active"
	StatusCancelled PrescriptionStatus = "cancelled"
	StatusExpired   PrescriptionStatus = "expired"
)

// MedicationComponent is one prescribed drug; it becomes a line item of the
// medication fulfillment request.
type MedicationComponent struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`    // e.g. "500mg"
	Frequency string `json:"frequency"` // e.g. "twice daily"
	Duration  string `json:"duration"`  // e.g. "7 days"
}

// TestComponent is one ordered lab test or radiology exam.
type TestComponent struct {
	Name  string `json:"name"`
	Notes string `json:"notes,omitempty"`
}

type Prescription struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	PatientID uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	DoctorID  uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`

	Medications []MedicationComponent `gorm:"column:medications;serializer:json"`
	LabTests    []TestComponent       `gorm:"column:lab_tests;serializer:json"`
	Exams       []TestComponent       `gorm:"column:exams;serializer:json"`

	Diagnosis    string `gorm:"column:diagnosis;type:text"`
	Instructions string `gorm:"column:instructions;type:text"`

	IssuedAt  time.Time `gorm:"column:issued_at;not null;index"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null;index"`

	Status PrescriptionStatus `gorm:"column:status;type:varchar(30);not null;default:'active';index"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Prescription) TableName() string {
	return "clinical.prescriptions"
}

func (p *Prescription) IsExpired() bool {
	return time.Now().After(p.ExpiresAt)
}

// HasComponents reports whether the prescription orders anything at all.
func (p *Prescription) HasComponents() bool {
	return len(p.Medications) > 0 || len(p.LabTests) > 0 || len(p.Exams) > 0
}

type CreatePrescriptionCommand struct {
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	Medications  []MedicationComponent
	LabTests     []TestComponent
	Exams        []TestComponent
	Diagnosis    string
	Instructions string
	IssuedAt     time.Time
	ExpiresAt    time.Time

	// Providers the spawned fulfillment requests are assigned to; required
	// for each non-empty component class.
	PharmacyID    *uuid.UUID
	LabID         *uuid.UUID
	RadiologistID *uuid.UUID

	CreatedBy uuid.UUID
}

type ListPrescriptionsQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *PrescriptionStatus
	Page      int
	PageSize  int
}

type PagedPrescriptions struct {
	Prescriptions []*Prescription
	TotalCount    int64
	Page          int
	PageSize      int
	TotalPages    int
}
