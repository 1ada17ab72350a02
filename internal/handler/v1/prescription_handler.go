package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/carefill/carefill/internal/domain/prescription"
	"github.com/carefill/carefill/internal/service"
)

type PrescriptionHandler struct {
	svc *service.PrescriptionService
}

func NewPrescriptionHandler(svc *service.PrescriptionService) *PrescriptionHandler {
	return &PrescriptionHandler{svc: svc}
}

type issuePrescriptionBody struct {
	PatientID    uuid.UUID                          `json:"patientId" binding:"required"`
	Medications  []prescription.MedicationComponent `json:"medications,omitempty"`
	LabTests     []prescription.TestComponent       `json:"labTests,omitempty"`
	Exams        []prescription.TestComponent       `json:"exams,omitempty"`
	Diagnosis    string                             `json:"diagnosis,omitempty"`
	Instructions string                             `json:"instructions,omitempty"`
	ExpiresAt    time.Time                          `json:"expiresAt" binding:"required"`

	PharmacyID    *uuid.UUID `json:"pharmacyId,omitempty"`
	LabID         *uuid.UUID `json:"labId,omitempty"`
	RadiologistID *uuid.UUID `json:"radiologistId,omitempty"`
}

// Issue creates the prescription and spawns its fulfillment requests.
func (h *PrescriptionHandler) Issue(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}

	var body issuePrescriptionBody
	if !bindJSON(c, &body) {
		return
	}

	p, err := h.svc.Issue(c.Request.Context(), &prescription.CreatePrescriptionCommand{
		PatientID:     body.PatientID,
		DoctorID:      claims.UserID,
		Medications:   body.Medications,
		LabTests:      body.LabTests,
		Exams:         body.Exams,
		Diagnosis:     body.Diagnosis,
		Instructions:  body.Instructions,
		IssuedAt:      time.Now(),
		ExpiresAt:     body.ExpiresAt,
		PharmacyID:    body.PharmacyID,
		LabID:         body.LabID,
		RadiologistID: body.RadiologistID,
		CreatedBy:     claims.UserID,
	}, claims, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, p)
}

func (h *PrescriptionHandler) Get(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	p, err := h.svc.GetPrescription(c.Request.Context(), id, claims, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, p)
}

func (h *PrescriptionHandler) List(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}

	q := &prescription.ListPrescriptionsQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status := prescription.PrescriptionStatus(raw)
		q.Status = &status
	}

	page, err := h.svc.ListPrescriptions(c.Request.Context(), q, claims)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, page)
}
